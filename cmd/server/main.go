package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/api"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/auth"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/config"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/database"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/histcache"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/kafka"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/logger"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/marketdata"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/ssdp"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/trading"
)

func main() {
	log, err := logger.NewLogger()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load()

	priceCache, err := database.OpenPriceCache(cfg.Stores.StockDataPath)
	if err != nil {
		log.Fatal("open price cache", zap.Error(err))
	}
	defer priceCache.Close()

	ledger, err := database.OpenLedger(cfg.Stores.UserDataPath)
	if err != nil {
		log.Fatal("open ledger", zap.Error(err))
	}
	defer ledger.Close()

	provider := marketdata.NewYahooProvider(cfg.Fetch.Timeout)
	history := histcache.New(priceCache, provider, log.Logger)

	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		log.Info("kafka producer enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	trader := trading.New(ledger, history, producer, log.Logger)
	authSvc := auth.NewService(ledger)

	handler := api.NewHandler(history, trader, authSvc, log.Logger)
	router := api.SetupRoutes(handler)

	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, cfg.Server.Port))
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}
	port := listener.Addr().(*net.TCPAddr).Port
	log.Info("http server listening", zap.Int("port", port))

	srv := &http.Server{Handler: router}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatal("serve", zap.Error(err))
		}
	}()

	var announcer *ssdp.Announcer
	if cfg.SSDP.Enabled {
		location := "http://" + net.JoinHostPort(localIP().String(), strconv.Itoa(port))
		announcer, err = ssdp.Announce(location, log.Logger)
		if err != nil {
			log.Warn("ssdp announcement failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")

	if announcer != nil {
		announcer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

// localIP returns the outbound IPv4 of this host. The UDP dial never sends
// a packet; it only resolves the preferred route.
func localIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP
}
