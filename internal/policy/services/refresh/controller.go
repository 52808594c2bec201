// Package refresh implements the Refresh Controller of spec.md §4.8: it
// handles an out-of-band reload signal (conventionally SIGHUP), drains
// in-flight queries, purges the LRU, and rebuilds the Bloom Pre-filter and
// Regex Bucket Engine in the background while the Pipeline transparently
// skips those stages.
package refresh

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kestrel-dns/policyengine/internal/policy/common/log"
	"github.com/kestrel-dns/policyengine/internal/policy/repos/bloom"
	"github.com/kestrel-dns/policyengine/internal/policy/repos/regex"
)

var logger = log.Component("refresh")

// var-seamed for test injection, following the teacher's function-pointer
// convention (see repos/lru's newLRU).
var regexBuildFn = regex.Build

// Controller owns the BloomSlot and RegexSlot the Pipeline was constructed
// with, and drives their lifecycle across reloads.
type Controller struct {
	lru     Cache
	store   Store
	metrics Metrics

	bloomFactory  bloom.Factory
	bloomCapacity uint64
	bloomFPRate   float64
	regexConfig   regex.Config

	bloomSlot *BloomSlot
	regexSlot *RegexSlot

	clock Clock

	// gate is held for read by every in-flight classification (via Enter
	// and the func it returns) and taken exclusively by Reload to drain them first
	// (spec.md §4.8 step 1).
	gate sync.RWMutex
}

// Options configures a new Controller.
type Options struct {
	LRU       Cache
	Store     Store
	Metrics   Metrics
	BloomSlot *BloomSlot
	RegexSlot *RegexSlot

	BloomFactory  bloom.Factory
	BloomCapacity uint64
	BloomFPRate   float64
	RegexConfig   regex.Config

	// Clock is used to time rebuild duration for logging. Defaults to
	// RealClock{} when unset.
	Clock Clock
}

// New constructs a Controller.
func New(opts Options) *Controller {
	c := opts.Clock
	if c == nil {
		c = RealClock{}
	}
	return &Controller{
		lru:           opts.LRU,
		store:         opts.Store,
		metrics:       opts.Metrics,
		bloomFactory:  opts.BloomFactory,
		bloomCapacity: opts.BloomCapacity,
		bloomFPRate:   opts.BloomFPRate,
		regexConfig:   opts.RegexConfig,
		bloomSlot:     opts.BloomSlot,
		regexSlot:     opts.RegexSlot,
		clock:         c,
	}
}

// Enter registers an in-flight classification with the drain gate. The
// returned func must be called when the classification completes. Front-end
// callers wrap every Pipeline.Classify call with Enter and the returned func
// so Reload can drain cleanly.
func (c *Controller) Enter() func() {
	c.gate.RLock()
	return c.gate.RUnlock
}

// Reload implements spec.md §4.8's three-step reload sequence: drain, purge,
// then schedule an asynchronous Bloom/Regex rebuild. It returns once the
// drain and purge have completed; the rebuild continues in the background.
func (c *Controller) Reload(ctx context.Context) error {
	logger.Info(nil, "reload: draining in-flight queries")
	c.gate.Lock()
	if c.lru != nil {
		c.lru.Purge()
	}
	c.gate.Unlock()
	logger.Info(nil, "reload: lru purged")

	go c.rebuild(context.Background())

	c.observeReload()
	return nil
}

// rebuild reconstructs the Bloom filter from the current block_exact table
// and the Regex engine from the current block_regex table, swapping each
// into its slot only once fully built. Each stage gates its own Ready()
// independently, so a slow regex rebuild doesn't hold back a fast bloom one.
func (c *Controller) rebuild(ctx context.Context) {
	c.rebuildBloom(ctx)
	c.rebuildRegex(ctx)
}

func (c *Controller) rebuildBloom(ctx context.Context) {
	if c.bloomSlot == nil || c.bloomFactory == nil || c.store == nil {
		return
	}
	c.bloomSlot.markNotReady()
	started := c.clock.Now()

	keys := make([]string, 0, 1024)
	err := c.store.StreamExactKeys(ctx, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		logger.Error(map[string]any{"error": err}, "bloom rebuild failed to stream block_exact keys")
		c.observeRebuildError("bloom")
		return
	}

	fpRate := c.bloomFPRate
	if fpRate <= 0 {
		fpRate = 0.01
	}
	capacity := c.bloomCapacity
	if capacity == 0 {
		capacity = uint64(len(keys))
	}
	f := c.bloomFactory.New(capacity, fpRate)
	for _, key := range keys {
		f.Add([]byte(key))
	}
	c.bloomSlot.swap(f)
	logger.Info(map[string]any{"keys": len(keys), "took": c.clock.Now().Sub(started).String()}, "bloom rebuild complete")
}

func (c *Controller) rebuildRegex(ctx context.Context) {
	if c.regexSlot == nil || c.store == nil {
		return
	}
	c.regexSlot.markNotReady()
	started := c.clock.Now()

	patterns, err := c.store.LoadRegexPatterns(ctx)
	if err != nil {
		logger.Error(map[string]any{"error": err}, "regex rebuild failed to load block_regex patterns")
		c.observeRebuildError("regex")
		return
	}

	engine, errs := regexBuildFn(patterns, c.regexConfig)
	for _, e := range errs {
		logger.Warn(map[string]any{"error": e}, "regex rebuild pattern warning")
	}
	c.regexSlot.swap(engine)
	logger.Info(map[string]any{"patterns": len(patterns), "took": c.clock.Now().Sub(started).String()}, "regex rebuild complete")
}

// ListenForReload blocks, triggering Reload on every SIGHUP, until ctx is
// cancelled. Intended to run in its own goroutine from cmd/policyengined.
func (c *Controller) ListenForReload(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			logger.Info(map[string]any{"signal": sig.String()}, "reload signal received")
			if err := c.Reload(ctx); err != nil {
				logger.Error(map[string]any{"error": err}, "reload failed")
			}
		}
	}
}

func (c *Controller) observeReload() {
	if c.metrics != nil {
		c.metrics.ObserveReload()
	}
}

func (c *Controller) observeRebuildError(component string) {
	if c.metrics != nil {
		c.metrics.ObserveRebuildError(component)
	}
}
