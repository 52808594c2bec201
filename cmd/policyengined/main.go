// Command policyengined wires the policy engine core — Persistent Store
// Gateway, Bloom Pre-filter, LRU Disposition Cache, Regex Bucket Engine,
// Policy Pipeline, Post-resolution IP Rewriter, and Refresh Controller —
// into a standalone process exposing a Prometheus /metrics endpoint and a
// /healthz liveness probe. DNS wire I/O and upstream forwarding are out of
// scope (spec.md §1 Non-goals); an embedding front-end is expected to call
// into Pipeline.Classify and Rewriter.Rewrite directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrel-dns/policyengine/internal/policy/common/log"
	"github.com/kestrel-dns/policyengine/internal/policy/config"
	"github.com/kestrel-dns/policyengine/internal/policy/infra/metrics"
	"github.com/kestrel-dns/policyengine/internal/policy/repos/bloom"
	"github.com/kestrel-dns/policyengine/internal/policy/repos/lru"
	"github.com/kestrel-dns/policyengine/internal/policy/repos/regex"
	"github.com/kestrel-dns/policyengine/internal/policy/repos/store"
	"github.com/kestrel-dns/policyengine/internal/policy/services/pipeline"
	"github.com/kestrel-dns/policyengine/internal/policy/services/refresh"
	"github.com/kestrel-dns/policyengine/internal/policy/services/rewriter"
)

const (
	appName = "policyengined"

	httpAddr            = ":9090"
	defaultShutdownWait = 10 * time.Second
)

// Application holds every wired component, including the HTTP sidecar.
type Application struct {
	cfg        *config.AppConfig
	store      *store.Gateway
	pipeline   *pipeline.Pipeline
	rewriter   *rewriter.Rewriter
	refresh    *refresh.Controller
	httpServer *http.Server
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"env":        cfg.Env,
		"store_path": cfg.Store.Path,
		"pool_size":  cfg.Store.PoolSize,
	}, "starting policy engine core")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "shutdown signal received")
		cancel()
	}()

	go app.refresh.ListenForReload(ctx)

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "policy engine core exited with error")
	}

	log.Info(nil, "policy engine core stopped gracefully")
}

func buildApplication(cfg *config.AppConfig) (*Application, error) {
	reg := prometheus.NewRegistry()
	mtx := metrics.New(reg)

	gw, err := store.Open(store.Config{
		Path:           cfg.Store.Path,
		PoolSize:       cfg.Store.PoolSize,
		PageCacheBytes: cfg.Store.PageCacheBytes,
	})
	if err != nil {
		log.Error(map[string]any{"error": err}, "store open degraded: every query will PASSTHROUGH for the rest of the process lifetime")
	}

	lruCache, err := lru.New(cfg.LRU.Capacity, cfg.LRU.Shards)
	if err != nil {
		return nil, fmt.Errorf("failed to construct lru cache: %w", err)
	}

	bloomFactory := bloom.NewFactory()
	bloomSlot := refresh.NewBloomSlot(buildInitialBloom(gw, bloomFactory, cfg.Bloom.Capacity, cfg.Bloom.FPRate))
	regexSlot := refresh.NewRegexSlot(buildInitialRegex(gw, cfg.Regex))

	pl := pipeline.New(pipeline.Options{
		LRU:           lruCache,
		Bloom:         bloomSlot,
		Regex:         regexSlot,
		Store:         gw,
		Metrics:       mtx,
		MaxAliasDepth: uint8(cfg.Alias.MaxDepth),
		BloomReady:    bloomSlot.Ready,
		RegexReady:    regexSlot.Ready,
	})

	rw := rewriter.New(rewriter.Options{Store: gw, Metrics: mtx})

	refreshCtl := refresh.New(refresh.Options{
		LRU:           lruCache,
		Store:         gw,
		Metrics:       mtx,
		BloomSlot:     bloomSlot,
		RegexSlot:     regexSlot,
		BloomFactory:  bloomFactory,
		BloomCapacity: cfg.Bloom.Capacity,
		BloomFPRate:   cfg.Bloom.FPRate,
		RegexConfig:   regex.Config{HardCap: cfg.Regex.HardCap, WarnAt: cfg.Regex.WarnAt},
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if gw.Degraded() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "store degraded")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return &Application{
		cfg:      cfg,
		store:    gw,
		pipeline: pl,
		rewriter: rw,
		refresh:  refreshCtl,
		httpServer: &http.Server{
			Addr:    httpAddr,
			Handler: mux,
		},
	}, nil
}

// buildInitialBloom performs the one-time startup load of block_exact into a
// Bloom filter sized for the configured expected capacity (spec.md §4.3),
// not the current key count, so NeedsRebuild's 70% threshold reflects
// provisioned headroom rather than tripping immediately after boot. A
// degraded store yields a nil filter; the slot then reports not-ready and
// the Pipeline skips the stage until a successful reload rebuilds it.
func buildInitialBloom(gw *store.Gateway, factory bloom.Factory, capacity uint64, fpRate float64) bloom.Filter {
	if gw == nil || gw.Degraded() {
		return nil
	}
	var keys []string
	err := gw.StreamExactKeys(context.Background(), func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		log.Error(map[string]any{"error": err}, "initial bloom load failed, pre-filter starts disabled")
		return nil
	}
	if fpRate <= 0 {
		fpRate = 0.01
	}
	if capacity == 0 {
		capacity = uint64(len(keys))
	}
	f := factory.New(capacity, fpRate)
	for _, key := range keys {
		f.Add([]byte(key))
	}
	return f
}

// buildInitialRegex performs the one-time startup load of block_regex
// (spec.md §4.5).
func buildInitialRegex(gw *store.Gateway, cfg config.RegexConfig) regex.Engine {
	if gw == nil || gw.Degraded() {
		return nil
	}
	patterns, err := gw.LoadRegexPatterns(context.Background())
	if err != nil {
		log.Error(map[string]any{"error": err}, "initial regex load failed, regex stage starts disabled")
		return nil
	}
	engine, errs := regex.Build(patterns, regex.Config{HardCap: cfg.HardCap, WarnAt: cfg.WarnAt})
	for _, e := range errs {
		log.Warn(map[string]any{"error": e}, "regex load warning")
	}
	return engine
}

// Run serves the HTTP sidecar until ctx is cancelled, then drains it within
// the shutdown grace window.
func (app *Application) Run(ctx context.Context) error {
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(map[string]any{"error": err}, "http sidecar failed")
		}
	}()
	log.Info(map[string]any{"addr": app.httpServer.Addr}, "http sidecar listening (/metrics, /healthz)")

	<-ctx.Done()
	log.Info(nil, "shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownWait)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err}, "http sidecar shutdown error")
	}
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "store close error")
	}
	return nil
}
