// Package ssdp announces the REST endpoint on the local network so game
// clients can discover the server without configuration.
package ssdp

import (
	"fmt"
	"os"
	"time"

	"github.com/koron/go-ssdp"
	"go.uber.org/zap"
)

// ServiceType is the SSDP search target clients look for.
const ServiceType = "urn:schemas-upnp-org:service:StockSim-Server:1"

const (
	maxAge        = 1800
	aliveInterval = 30 * time.Second
)

// Announcer advertises the server location over SSDP until stopped.
type Announcer struct {
	ad   *ssdp.Advertiser
	done chan struct{}
	log  *zap.Logger
}

// Announce starts advertising location (the full http://ip:port of the REST
// API) and keeps sending alive notifications on an interval.
func Announce(location string, log *zap.Logger) (*Announcer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "stocksim"
	}
	usn := fmt.Sprintf("name:%s::%s", hostname, ServiceType)

	ad, err := ssdp.Advertise(ServiceType, usn, location, hostname, maxAge)
	if err != nil {
		return nil, fmt.Errorf("ssdp advertise: %w", err)
	}

	a := &Announcer{ad: ad, done: make(chan struct{}), log: log}
	go a.aliveLoop()
	log.Info("ssdp announcement started", zap.String("location", location))
	return a, nil
}

func (a *Announcer) aliveLoop() {
	ticker := time.NewTicker(aliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.ad.Alive(); err != nil {
				a.log.Warn("ssdp alive failed", zap.Error(err))
			}
		case <-a.done:
			return
		}
	}
}

// Stop sends a byebye notification and releases the advertiser.
func (a *Announcer) Stop() {
	close(a.done)
	if err := a.ad.Bye(); err != nil {
		a.log.Warn("ssdp bye failed", zap.Error(err))
	}
	a.ad.Close()
}
