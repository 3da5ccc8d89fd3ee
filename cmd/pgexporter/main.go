/*
 * Copyright 2025 The pgexporter Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Command pgexporter is the exporter process: it loads configuration
// and the catalog, dials every configured server lazily on first
// scrape, and serves the metrics/bridge/management surfaces until
// signalled to stop. Flag parsing follows
// rapidloop-pgmetrics/cmd/pgmetrics/main.go's options struct +
// getopt.New() idiom verbatim.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/pgexporter/pgexporter"
	"github.com/pgexporter/pgexporter/bridge"
	"github.com/pgexporter/pgexporter/cache"
	"github.com/pgexporter/pgexporter/catalog"
	"github.com/pgexporter/pgexporter/collector"
	"github.com/pgexporter/pgexporter/httpsrv"
	"github.com/pgexporter/pgexporter/mgmt"
	"github.com/pgexporter/pgexporter/pgxconf"
	"github.com/pgexporter/pgexporter/pgxlog"
	"github.com/pgexporter/pgexporter/scrape"
)

var version string // set during build

func main() {
	var o options
	o.defaults()
	o.parse()

	log := pgxlog.Default()

	cfg, err := pgxconf.LoadFile(o.configFile)
	if err != nil {
		log.Fatal("loading %s: %v", o.configFile, err)
	}

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		log.Fatal("loading catalog %s: %v", cfg.CatalogPath, err)
	}
	var atomicCat catalog.AtomicCatalog
	atomicCat.Store(cat)

	masterKey, err := loadMasterKey(o.masterKeyFile)
	if err != nil {
		log.Fatal("loading master key: %v", err)
	}
	creds, err := pgxconf.LoadUsers(cfg.UsersFilePath, masterKey)
	if err != nil {
		log.Fatal("loading users file: %v", err)
	}

	targets := buildTargets(cfg, creds)
	store := pgxconf.NewStore(o.configFile, cfg)

	orchestrator := &scrape.Orchestrator{
		Catalog:         &atomicCat,
		Targets:         targets,
		Concurrency:     cfg.WorkerPoolSize,
		PerQueryTimeout: cfg.BlockingTimeout,
		ScrapeTimeout:   cfg.BlockingTimeout,
		Log:             log,
	}

	metricsCache := cache.New(cfg.CacheMaxSize)

	var bridgeSvc *bridge.Service
	if len(cfg.BridgeEndpoints) > 0 {
		endpoints, err := bridge.Dedup(cfg.BridgeEndpoints)
		if err != nil {
			log.Fatal("bridge endpoints: %v", err)
		}
		bridgeSvc = &bridge.Service{
			Fetcher:   &bridge.Fetcher{Timeout: cfg.BlockingTimeout},
			Endpoints: endpoints,
			TextCache: cache.New(cfg.BridgeCacheMaxSize),
			MaxAge:    cfg.BridgeCacheMaxAge,
			Log:       log,
		}
		if cfg.BridgeJSONCacheMaxSize > 0 {
			bridgeSvc.JSONCache = cache.New(cfg.BridgeJSONCacheMaxSize)
		}
	}

	httpServer := &httpsrv.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort),
		TLS:          tlsConfigFor(cfg.MetricsTLS),
		Orchestrator: orchestrator,
		Cache:        metricsCache,
		CacheMaxAge:  cfg.CacheMaxAge,
		Bridge:       bridgeSvc,
		GzipEnabled:  cfg.Compression,
		Log:          log,
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgmtListener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.ManagementPort))
	if err != nil {
		log.Fatal("listening for management on port %d: %v", cfg.ManagementPort, err)
	}
	reloadableStore := &epochBumpingStore{Store: store, epoch: &httpServer.Epoch}

	mgmtServer := &mgmt.Server{
		Listener: mgmtListener,
		Conf:     reloadableStore,
		Cache:    metricsCache,
		Status:   func() mgmt.StatusInfo { return statusOf(targets) },
		Shutdown: cancel,
		Log:      log,
	}

	go func() {
		if err := mgmtServer.Serve(ctx); err != nil {
			log.Error("management server: %v", err)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigc {
			if sig == syscall.SIGHUP {
				if err := reloadableStore.Reload(); err != nil {
					log.Warn("reload: %v", err)
				}
				continue
			}
			cancel()
			return
		}
	}()

	log.Info("pgexporter %s listening on %s", versionString(), httpServer.Addr)
	if err := httpServer.Run(ctx); err != nil {
		log.Fatal("http server: %v", err)
	}
}

func versionString() string {
	if version == "" {
		return "devel"
	}
	return version
}

func buildTargets(cfg *pgxconf.Configuration, creds map[string]pgexporter.Credential) []*scrape.Target {
	targets := make([]*scrape.Target, 0, len(cfg.Servers))
	for _, sc := range cfg.Servers {
		cred := creds[sc.User]
		var tlsCfg *tls.Config
		if sc.TLS.Enabled {
			tlsCfg = &tls.Config{InsecureSkipVerify: sc.TLS.CAFile == ""}
		}
		targets = append(targets, &scrape.Target{
			Server: sc,
			State:  pgexporter.NewServerState(sc.Name),
			Pool:   collector.NewPool(sc, cred, tlsCfg, cfg.BlockingTimeout),
		})
	}
	return targets
}

// epochBumpingStore wraps *pgxconf.Store so a successful reload — whether
// triggered by SIGHUP or a "conf reload" management request — bumps the
// /metrics cache fingerprint's epoch, invalidating cached bytes without an
// explicit cache.Clear (spec.md §4.5).
type epochBumpingStore struct {
	*pgxconf.Store
	epoch *atomic.Int64
}

func (s *epochBumpingStore) Reload() error {
	if err := s.Store.Reload(); err != nil {
		return err
	}
	s.epoch.Add(1)
	return nil
}

func statusOf(targets []*scrape.Target) mgmt.StatusInfo {
	info := mgmt.StatusInfo{}
	for _, t := range targets {
		info.Servers = append(info.Servers, mgmt.ServerStatus{
			Name:    t.Server.Name,
			Healthy: t.State.Healthy(),
			Version: t.State.Version(),
			Role:    t.State.Role().String(),
		})
	}
	return info
}

func tlsConfigFor(cfg pgexporter.TLSConfig) *tls.Config {
	if !cfg.Enabled {
		return nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}
}

func loadMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("master key file %s must contain exactly 32 bytes, got %d", path, len(data))
	}
	return data, nil
}
