// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Command gatewayd runs the harnessd control-plane daemon: it loads
// configuration, restores the Domain Store snapshot, spawns the Session
// Registry and Subscription Multiplexer, serves the NDJSON control-plane
// listener and the additive admin HTTP surface, and performs a graceful
// shutdown on SIGINT/SIGTERM (spec §5, §6).
package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tailscale/tscert"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/groupsio/harnessd/internal/adminhttp"
	"github.com/groupsio/harnessd/internal/config"
	"github.com/groupsio/harnessd/internal/gateway"
	"github.com/groupsio/harnessd/internal/ptysession"
	"github.com/groupsio/harnessd/internal/seed"
	"github.com/groupsio/harnessd/internal/store"
	"github.com/groupsio/harnessd/internal/subscribe"
	"github.com/groupsio/harnessd/internal/watcher"
)

const version = "0.1.0"

func main() {
	var configPath string
	var port int
	flag.StringVar(&configPath, "config", "", "path to harness.hjson/harness.json")
	flag.IntVar(&port, "port", 0, "override listen port (0 = use config/default)")
	flag.Parse()

	if err := run(configPath, port); err != nil {
		log.Fatalf("gatewayd: %v", err)
	}
}

func run(configPath string, portOverride int) error {
	loader := config.NewLoader()
	if configPath == "" {
		configPath = loader.FindConfig()
	}
	cfg, err := loader.LoadWithDefaults(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()
	if portOverride > 0 {
		cfg.Listen.Network = "tcp"
		cfg.Listen.Address = fmt.Sprintf("127.0.0.1:%d", portOverride)
	}
	if cfg.Auth.Token == "" {
		token, err := randomToken()
		if err != nil {
			return fmt.Errorf("generate auth token: %w", err)
		}
		cfg.Auth.Token = token
	}

	domainStore := store.New()
	if cfg.SnapshotPath != "" {
		if err := domainStore.Restore(cfg.SnapshotPath); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
	}
	if cfg.SeedFile != "" {
		res, err := seed.Apply(domainStore, cfg.SeedFile)
		if err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
		log.Printf("gatewayd: seeded %d directories, %d repositories, %d tasks from %s",
			res.Directories, res.Repositories, res.Tasks, cfg.SeedFile)
	}

	mux := subscribe.NewMultiplexer(subscribe.Options{
		RetentionPerSubscription: cfg.RetentionPerSub,
		QueueDepth:               cfg.SubscriptionQueue,
	})
	publisher := gateway.NewStoreSyncPublisher(domainStore, mux)

	builder := &gateway.AgentBuilder{Cwd: func(adapterState map[string]interface{}) string {
		if dir, ok := adapterState["cwd"].(string); ok && dir != "" {
			return dir
		}
		return "."
	}}

	sessions := ptysession.NewManager(ptysession.Options{
		RingBytes:    cfg.RingBufferBytes,
		ExitGraceTTL: cfg.ExitGraceTTL,
		Builder:      builder,
		Publisher:    publisher,
		Reducer:      ptysession.NewPhaseStatusReducer(),
	})

	srv := gateway.NewServer(gateway.Options{
		AuthToken:     cfg.Auth.Token,
		ShutdownGrace: cfg.ShutdownGrace,
		Store:         domainStore,
		Sessions:      sessions,
		Mux:           mux,
	})

	listener, err := net.Listen(cfg.Listen.Network, cfg.Listen.Address)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", cfg.Listen.Network, cfg.Listen.Address, err)
	}
	actualPort := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		actualPort = tcpAddr.Port
	}

	recordPath := cfg.GatewayRecordPath()
	rec := gateway.NewRecord(actualPort, cfg.Auth.Token, version)
	if err := gateway.WriteRecord(recordPath, rec); err != nil {
		return fmt.Errorf("write gateway record: %w", err)
	}
	defer gateway.RemoveRecord(recordPath)

	tailBuf := adminhttp.NewTailBuffer(500)
	log.SetOutput(io.MultiWriter(os.Stderr, tailBuf))

	admin := adminhttp.NewServer(adminhttp.Options{
		Store: domainStore, Sessions: sessions, Version: version, TailLog: tailBuf,
	})
	adminSrv, err := startAdminServer(cfg.Admin, admin)
	if err != nil {
		return fmt.Errorf("start admin http: %w", err)
	}

	stopWatch, err := watchConfig(configPath, cfg, func(updated *config.Config) {
		log.Printf("gatewayd: config reloaded from %s", configPath)
	})
	if err != nil {
		log.Printf("gatewayd: config watch disabled: %v", err)
	} else {
		defer stopWatch()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	log.Printf("gatewayd: listening on %s %s (admin :%d)", cfg.Listen.Network, listener.Addr(), cfg.Admin.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, listener)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		if adminSrv != nil {
			_ = adminSrv.Shutdown(shutdownCtx)
		}
		if cfg.SnapshotPath != "" {
			if err := domainStore.Snapshot(cfg.SnapshotPath); err != nil {
				log.Printf("gatewayd: snapshot on shutdown: %v", err)
			}
		}
		return nil
	})
	return g.Wait()
}

func startAdminServer(cfg config.AdminConfig, handler http.Handler) (*http.Server, error) {
	if cfg.Port <= 0 {
		return nil, nil
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: handler}

	switch {
	case cfg.TLSTailscale:
		srv.TLSConfig = &tls.Config{GetCertificate: tscert.GetCertificate}
		go func() {
			if err := srv.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				log.Printf("gatewayd: admin https: %v", err)
			}
		}()
	case cfg.TLSCert != "" && cfg.TLSKey != "":
		go func() {
			if err := srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey); err != nil && err != http.ErrServerClosed {
				log.Printf("gatewayd: admin https: %v", err)
			}
		}()
	default:
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("gatewayd: admin http: %v", err)
			}
		}()
	}
	return srv, nil
}

// watchConfig watches the config file's directory and, on a debounced
// change to the file, re-reads it and copies the ring-buffer cap,
// retention window, and seed file path into cfg. The running session
// manager and multiplexer keep the values they were built with, and the
// seed file is not re-read; live sessions are never restarted.
func watchConfig(path string, cfg *config.Config, onChange func(*config.Config)) (func(), error) {
	if path == "" {
		return nil, fmt.Errorf("no config file to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	debouncer := watcher.NewDebouncer(250 * time.Millisecond)
	loader := config.NewLoader()
	done := make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				debouncer.Debounce(watcher.ConfigKey, func() {
					updated, err := loader.Load(path)
					if err != nil {
						log.Printf("gatewayd: config reload failed: %v", err)
						return
					}
					cfg.RingBufferBytes = updated.RingBufferBytes
					cfg.RetentionPerSub = updated.RetentionPerSub
					cfg.SeedFile = updated.SeedFile
					onChange(updated)
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("gatewayd: config watch error: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		debouncer.Stop()
		w.Close()
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
