// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package homeserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keystone-hs/keystone/lib/clock"
	"github.com/keystone-hs/keystone/lib/config"
	"github.com/keystone-hs/keystone/lib/eventstore"
	"github.com/keystone-hs/keystone/lib/federation"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/room"
	"github.com/keystone-hs/keystone/lib/signing"
	"github.com/keystone-hs/keystone/lib/store"
	"github.com/keystone-hs/keystone/lib/version"
)

// Options carries the process-level collaborators that do not come
// from the config file.
type Options struct {
	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// Clock defaults to the real clock.
	Clock clock.Clock

	// HTTPClient overrides the federation client, for example to trust
	// a test certificate.
	HTTPClient *http.Client
}

// Server is a wired homeserver core.
type Server struct {
	Name       ref.ServerName
	Key        *signing.Key
	Records    store.Store
	Federation *federation.Transport
	Events     *eventstore.Store
	Rooms      *room.Manager
	Registry   *prometheus.Registry

	config *config.Config
	clock  clock.Clock
	logger *slog.Logger
	close  []func() error
}

// New builds a Server from cfg, which must already be validated. The
// signing key is generated on first start.
func New(cfg *config.Config, options Options) (*Server, error) {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	logger := options.Logger

	name, err := ref.ParseServerName(cfg.ServerName)
	if err != nil {
		return nil, fmt.Errorf("homeserver: server_name: %w", err)
	}
	server := &Server{
		Name:     name,
		Registry: prometheus.NewRegistry(),
		config:   cfg,
		clock:    options.Clock,
		logger:   logger,
	}
	if err := server.registerProcessMetrics(); err != nil {
		return nil, err
	}

	key, generated, err := signing.LoadOrGenerateKeyFile(cfg.Signing.KeyFile, name, cfg.Signing.AgeIdentityFile)
	if err != nil {
		return nil, fmt.Errorf("homeserver: signing key: %w", err)
	}
	server.Key = key
	server.close = append(server.close, key.Close)
	if generated {
		logger.Info("generated signing key", "path", cfg.Signing.KeyFile, "key_id", key.KeyID(),
			"sealed", cfg.Signing.AgeIdentityFile != "")
	}

	if err := server.openRecords(); err != nil {
		server.Close()
		return nil, err
	}

	resolver := federation.Resolver(federation.DefaultResolver{Port: cfg.Federation.DefaultPort})
	if len(cfg.Federation.StaticHosts) > 0 {
		resolver = federation.StaticResolver{Hosts: cfg.Federation.StaticHosts, Fallback: resolver}
	}
	server.Federation, err = federation.New(federation.Config{
		Signer:     key,
		Resolver:   resolver,
		HTTPClient: options.HTTPClient,
		Timeout:    cfg.FederationTimeout(),
		WireScheme: cfg.Federation.WireScheme,
		RateLimit: federation.RateLimit{
			RequestsPerSecond: cfg.Federation.RequestsPerSecond,
			Burst:             cfg.Federation.Burst,
		},
		Logger:     logger.With("component", "federation"),
		Registerer: server.Registry,
	})
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("homeserver: %w", err)
	}

	server.Events, err = eventstore.New(eventstore.Config{
		Signer:     key,
		Clock:      options.Clock,
		Logger:     logger.With("component", "eventstore"),
		Registerer: server.Registry,
	})
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("homeserver: %w", err)
	}

	server.Rooms, err = room.NewManager(room.Config{
		Events:      server.Events,
		Store:       server.Records,
		Federation:  server.Federation,
		Clock:       options.Clock,
		IdleTimeout: cfg.CacheIdle(),
		Logger:      logger.With("component", "rooms"),
		Registerer:  server.Registry,
	})
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("homeserver: %w", err)
	}

	logger.Info("homeserver ready",
		"server_name", name.String(),
		"key_id", key.KeyID(),
		"storage", cfg.Storage.Driver,
		"version", version.Info(),
	)
	return server, nil
}

func (s *Server) openRecords() error {
	switch s.config.Storage.Driver {
	case config.DriverMemory:
		s.Records = store.NewMemory()
		return nil
	case config.DriverSQLite:
		sqlite, err := store.OpenSQLite(store.SQLiteConfig{
			Path:     s.config.Storage.Path,
			PoolSize: s.config.Storage.PoolSize,
			Clock:    s.clock,
			Logger:   s.logger.With("component", "store"),
		})
		if err != nil {
			return fmt.Errorf("homeserver: %w", err)
		}
		s.Records = sqlite
		s.close = append(s.close, sqlite.Close)
		return nil
	}
	return fmt.Errorf("homeserver: unknown storage driver %q", s.config.Storage.Driver)
}

func (s *Server) registerProcessMetrics() error {
	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "keystone",
		Name:      "build_info",
		Help:      "Build information; the value is always 1.",
	}, []string{"version", "commit"})
	build := version.Current()
	buildInfo.WithLabelValues(build.Version, build.Commit).Set(1)

	for _, collector := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
	} {
		if err := s.Registry.Register(collector); err != nil {
			return fmt.Errorf("homeserver: registering metrics: %w", err)
		}
	}
	return nil
}

// JoinRoomByAlias resolves alias through the directory of the server
// that owns it and joins userID to the room it names.
func (s *Server) JoinRoomByAlias(ctx context.Context, alias ref.RoomAlias, userID ref.UserID) (*room.Room, error) {
	lookup, err := s.Federation.QueryDirectory(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("homeserver: resolving %s: %w", alias, err)
	}
	return s.Rooms.JoinFederatedRoom(ctx, lookup, userID)
}

// MetricsHandler serves the registry in the Prometheus exposition
// format.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{Registry: s.Registry})
}

// Run evicts idle rooms every sweep interval and, when metrics are
// enabled, serves /metrics. It returns when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	var metricsServer *http.Server
	serveErrors := make(chan error, 1)
	if s.config.Metrics.Enabled {
		listener, err := net.Listen("tcp", s.config.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("homeserver: metrics listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.MetricsHandler())
		metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		s.logger.Info("serving metrics", "address", listener.Addr().String())
		go func() { serveErrors <- metricsServer.Serve(listener) }()
	}

	interval := s.config.SweepInterval()
	for {
		select {
		case <-ctx.Done():
			if metricsServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("homeserver: metrics shutdown: %w", err)
				}
			}
			return nil
		case err := <-serveErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("homeserver: metrics server: %w", err)
			}
		case <-s.clock.After(interval):
			if evicted := s.Rooms.Sweep(); evicted > 0 {
				s.logger.Debug("swept idle rooms", "evicted", evicted)
			}
		}
	}
}

// Close releases the signing key and the room store.
func (s *Server) Close() error {
	var errs []error
	for index := len(s.close) - 1; index >= 0; index-- {
		if err := s.close[index](); err != nil {
			errs = append(errs, err)
		}
	}
	s.close = nil
	return errors.Join(errs...)
}
