// Command providerd is the provider daemon's single binary entry point
// (spec §8): it loads configuration, wires the Store/Detail
// Registry/Chain/Indexer facades, builds one Provider Runtime per
// configured provider tag, and starts the Reconciler, Balance Sweeper, and
// Request Router transports under the Lifecycle Supervisor.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/config"
	"github.com/R3E-Network/provider-daemon/internal/details"
	"github.com/R3E-Network/provider-daemon/internal/health"
	"github.com/R3E-Network/provider-daemon/internal/indexer"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/metrics"
	"github.com/R3E-Network/provider-daemon/internal/middleware"
	"github.com/R3E-Network/provider-daemon/internal/plugin"
	"github.com/R3E-Network/provider-daemon/internal/provider"
	"github.com/R3E-Network/provider-daemon/internal/reconciler"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/router"
	"github.com/R3E-Network/provider-daemon/internal/store"
	"github.com/R3E-Network/provider-daemon/internal/supervisor"
	"github.com/R3E-Network/provider-daemon/internal/sweeper"
	"github.com/R3E-Network/provider-daemon/internal/watcher"

	_ "github.com/R3E-Network/provider-daemon/internal/backend/httpforward"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("providerd", cfg.Daemon.LogLevel)

	st, err := openStore(cfg.Daemon.DatabaseURL)
	if err != nil {
		logger.WithError(err).Errorf("open store")
		return 1
	}
	if closer, ok := st.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	chain := chainiface.NewHTTPClient(cfg.Daemon.RPCHost)
	idx := indexer.NewHTTPClient(cfg.Daemon.IndexerEndpoint)
	detailsReg := details.NewRegistry(st)

	interval, err := config.ParseDuration(cfg.Daemon.AgreementCheckInterval)
	if err != nil {
		logger.WithError(err).Errorf("parse AGREEMENT_CHECK_INTERVAL")
		return 1
	}
	balanceInterval, err := config.ParseDuration(cfg.Daemon.AgreementBalanceCheckInterval)
	if err != nil {
		logger.WithError(err).Errorf("parse AGREEMENT_BALANCE_CHECK_INTERVAL")
		return 1
	}

	tracker := health.NewTracker()
	sup := supervisor.New(logger, reg, fmt.Sprintf(":%d", cfg.Daemon.Port))
	ctx := sup.Context()

	backendKind := os.Getenv("BACKEND_KIND")
	if backendKind == "" {
		backendKind = "http-forward"
	}
	backendFactory := plugin.MustGet(backendKind)

	runtimes := make([]*provider.Runtime, 0, len(cfg.Providers))
	shutdowns := make([]func() error, 0, len(cfg.Providers))

	for _, pc := range cfg.Providers {
		be, err := backendFactory(backendConfig(pc.Tag))
		if err != nil {
			logger.WithError(err).Errorf("build backend for provider tag %s", pc.Tag)
			return 1
		}

		ownerAddr, err := chainiface.AddressFromPrivateKey(pc.ProviderPrivateKey)
		if err != nil {
			logger.WithError(err).Errorf("resolve owner address for tag %s", pc.Tag)
			return 1
		}
		operatorAddr, err := chainiface.AddressFromPrivateKey(pc.OperatorPrivateKey)
		if err != nil {
			logger.WithError(err).Errorf("resolve operator address for tag %s", pc.Tag)
			return 1
		}
		var protocolAddr chainiface.Address
		if pc.ProtocolAddress != "" {
			protocolAddr, err = chainiface.ParseAddress(pc.ProtocolAddress)
			if err != nil {
				logger.WithError(err).Errorf("parse PROTOCOL_ADDRESS for tag %s", pc.Tag)
				return 1
			}
		}

		rt := router.New(logger.With(map[string]any{"providerTag": pc.Tag}))

		runtime, err := provider.New(ctx, provider.Config{
			OwnerAddress:    ownerAddr,
			OperatorAddress: operatorAddr,
			Endpoint:        fmt.Sprintf("http://0.0.0.0:%d", pc.OperatorPipePort),
			Gateway:         pc.Gateway,
			ProtocolAddress: protocolAddr,
			DataDir:         fmt.Sprintf("data/%s", pc.Tag),
		}, chain, st, detailsReg, be, rt.Table, logger)
		if err != nil {
			logger.WithError(err).Errorf("start provider runtime for tag %s", pc.Tag)
			return 1
		}
		runtime.SetHealthTracker(tracker)
		runtimes = append(runtimes, runtime)

		auth := middleware.NewWalletAuthMiddleware(logger, []string{"/spec"})
		limiter := middleware.NewRateLimiter(cfg.Daemon.RateLimit, rateLimitWindow(cfg), logger)
		tracer := middleware.NewTracingMiddleware(logger)
		cors := middleware.NewCORSMiddleware(splitOrigins(cfg.Daemon.CORSAllowedOrigins))

		httpAddr := fmt.Sprintf(":%d", pc.OperatorPipePort)
		httpTransport := router.NewHTTPTransport(httpAddr, rt, auth, limiter, tracer, cors, middleware.MetricsMiddleware(m))

		wsTransport := router.NewWSTransport(rt, logger)
		wsServer := &http.Server{Addr: fmt.Sprintf(":%d", pc.OperatorPipePort+1), Handler: wsTransport}

		sup.Spawn(func(ctx context.Context) {
			if err := httpTransport.ListenAndServe(); err != nil {
				logger.WithError(err).Errorf("operator HTTP transport for tag %s stopped", pc.Tag)
			}
		})
		sup.Spawn(func(ctx context.Context) {
			if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Errorf("operator WS transport for tag %s stopped", pc.Tag)
			}
		})

		shutdowns = append(shutdowns, httpTransport.Shutdown, wsServer.Close)
	}

	spawnWatcher := func(key resource.Key, protocolAddress chainiface.Address, be backend.ServiceBackend) {
		sup.Spawn(func(ctx context.Context) {
			watcher.New(key, protocolAddress, chain, st, be, logger).Run(ctx)
		})
	}

	rec := reconciler.New(idx, chain, st, detailsReg, runtimes, uint64(cfg.Daemon.BlockProcessRange), interval, logger, spawnWatcher, tracker, m)
	sup.Spawn(func(ctx context.Context) { rec.Run(ctx) })

	sw := sweeper.New(idx, chain, runtimes, logger, tracker, m)
	sup.Spawn(func(ctx context.Context) {
		if err := sw.Run(ctx, balanceInterval); err != nil {
			logger.WithError(err).Errorf("balance sweeper stopped")
		}
	})

	logger.Infof("providerd started: %d provider runtime(s)", len(runtimes))
	code := sup.Run(30 * time.Second)
	for _, shutdown := range shutdowns {
		_ = shutdown()
	}
	return code
}

func openStore(dsn string) (store.Store, error) {
	if dsn == "" || dsn == "memory" {
		return store.NewMemory(), nil
	}
	return store.Open(dsn)
}

func rateLimitWindow(cfg *config.Config) time.Duration {
	d, err := config.ParseDuration(cfg.Daemon.RateLimitWindow)
	if err != nil {
		return time.Second
	}
	return d
}

// splitOrigins parses CORS_ALLOWED_ORIGINS (comma-separated, default "*")
// into the list middleware.NewCORSMiddleware expects.
func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

func backendConfig(tag string) map[string]string {
	prefix := "BACKEND_CONFIG_" + tag + "_"
	out := map[string]string{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key := kv[:i]
				if len(key) > len(prefix) && key[:len(prefix)] == prefix {
					out[key[len(prefix):]] = kv[i+1:]
				}
				break
			}
		}
	}
	return out
}

