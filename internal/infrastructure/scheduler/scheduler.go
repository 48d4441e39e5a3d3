// Package scheduler runs periodic background maintenance for the ledger,
// currently the stock cache verification pass.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"go.uber.org/zap"
)

// Verifier checks cached aggregates against the movement store
type Verifier interface {
	VerifyAll(ctx context.Context, limit int) (appledger.VerifyReport, error)
}

// CacheVerifierConfig holds configuration for the cache verification scheduler
type CacheVerifierConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// Interval between verification passes
	Interval time.Duration

	// Sample is the maximum number of entries checked per pass; <= 0 checks all
	Sample int

	// Timeout is the maximum time for a single pass
	Timeout time.Duration

	// RunOnStart triggers a pass immediately after Start
	RunOnStart bool
}

// DefaultCacheVerifierConfig returns default configuration
func DefaultCacheVerifierConfig() CacheVerifierConfig {
	return CacheVerifierConfig{
		Enabled:  true,
		Interval: 10 * time.Minute,
		Sample:   100,
		Timeout:  2 * time.Minute,
	}
}

// Validate checks the configuration
func (c CacheVerifierConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 || c.Timeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// RunStats summarizes the passes executed so far
type RunStats struct {
	Runs         int64
	Failures     int64
	Inconsistent int64
	LastRunAt    time.Time
	LastReport   appledger.VerifyReport
}

// CacheVerifier periodically verifies cached stock aggregates and rebuilds
// the ones that drifted from the store.
type CacheVerifier struct {
	verifier  Verifier
	logger    *zap.Logger
	config    CacheVerifierConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	running   atomic.Bool

	statsMu sync.Mutex
	stats   RunStats
}

// NewCacheVerifier creates a new cache verification scheduler
func NewCacheVerifier(verifier Verifier, logger *zap.Logger, config CacheVerifierConfig) *CacheVerifier {
	return &CacheVerifier{
		verifier: verifier,
		logger:   logger.Named("cache-verifier"),
		config:   config,
	}
}

// Start starts the scheduler
func (s *CacheVerifier) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Cache verifier is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Cache verifier started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("sample", s.config.Sample),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *CacheVerifier) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Cache verifier stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Cache verifier stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler loop is active
func (s *CacheVerifier) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Stats returns a snapshot of the run statistics
func (s *CacheVerifier) Stats() RunStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// RunNow executes a single verification pass synchronously
func (s *CacheVerifier) RunNow(ctx context.Context) (appledger.VerifyReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return appledger.VerifyReport{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	start := time.Now()
	report, err := s.verifier.VerifyAll(runCtx, s.config.Sample)

	s.statsMu.Lock()
	s.stats.Runs++
	s.stats.LastRunAt = start
	if err != nil {
		s.stats.Failures++
	} else {
		s.stats.Inconsistent += int64(report.Inconsistent)
		s.stats.LastReport = report
	}
	s.statsMu.Unlock()

	if err != nil {
		s.logger.Error("Cache verification failed", zap.Error(err))
		return report, err
	}

	fields := []zap.Field{
		zap.Int("checked", report.Checked),
		zap.Int("inconsistent", report.Inconsistent),
		zap.Strings("rebuilt", report.Rebuilt),
		zap.Duration("duration", time.Since(start)),
	}
	if report.Inconsistent > 0 {
		s.logger.Warn("Cache verification found drift", fields...)
	} else {
		s.logger.Debug("Cache verification completed", fields...)
	}
	return report, nil
}

func (s *CacheVerifier) timeout() time.Duration {
	if s.config.Timeout > 0 {
		return s.config.Timeout
	}
	return DefaultCacheVerifierConfig().Timeout
}

func (s *CacheVerifier) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Cache verifier loop stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *CacheVerifier) tick(ctx context.Context) {
	if _, err := s.RunNow(ctx); errors.Is(err, ErrRunInProgress) {
		s.logger.Debug("Skipping tick, previous pass still running")
	}
}
