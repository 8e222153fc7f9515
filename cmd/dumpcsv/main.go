// Command dumpcsv exports every table of a store file to <table>.csv in the
// working directory, streaming one row at a time so large caches do not get
// loaded into memory.
package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/logger"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := flag.String("db", "stock_data.db", "path of the store file to dump (stock_data.db or user_data.db)")
	flag.Parse()

	log, err := logger.NewLogger()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	if err := dump(*dbPath, log.Logger); err != nil {
		log.Fatal("dump failed", zap.Error(err))
	}
	log.Info("done dumping", zap.String("db", *dbPath))
}

func dump(dbPath string, log *zap.Logger) error {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer conn.Close()

	rows, err := conn.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'schema_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, table := range tables {
		if err := dumpTable(conn, table); err != nil {
			return fmt.Errorf("dump %s: %w", table, err)
		}
		log.Info("dumped table", zap.String("table", table), zap.String("file", table+".csv"))
	}
	return nil
}

func dumpTable(conn *sql.DB, table string) error {
	rows, err := conn.Query("SELECT * FROM " + table)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	f, err := os.Create(table + ".csv")
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return err
	}

	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	record := make([]string, len(columns))

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, v := range values {
			if v == nil {
				record[i] = ""
				continue
			}
			if b, ok := v.([]byte); ok {
				record[i] = string(b)
				continue
			}
			record[i] = fmt.Sprint(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}
