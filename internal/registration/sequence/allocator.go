// Package sequence hands out collision-free serials for application and
// certificate numbers without a counter table. Writers compute a baseline
// from the highest persisted serial, then step upward on unique violations.
package sequence

import (
	"context"
	stderrors "errors"
	"strconv"

	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/common/metrics"
	"registration-workers/internal/registration/store"
)

const DefaultMaxAttempts = 5

type Scope string

const (
	ScopeApplication Scope = "application"
	ScopeCertificate Scope = "certificate"
)

// Source describes one serial space.
type Source struct {
	Scope        Scope
	SeedSetting  string
	FallbackSeed int64
	Max          func(ctx context.Context) (int64, error)
}

// ApplicationSource is the serial space of application numbers.
func ApplicationSource(r store.Reader, fallbackSeed int64) Source {
	return Source{
		Scope:        ScopeApplication,
		SeedSetting:  store.SettingApplicationSerialSeed,
		FallbackSeed: fallbackSeed,
		Max:          r.MaxSerial,
	}
}

// CertificateSource is the serial space of certificate numbers.
func CertificateSource(r store.Reader, fallbackSeed int64) Source {
	return Source{
		Scope:        ScopeCertificate,
		SeedSetting:  store.SettingCertificateSerialSeed,
		FallbackSeed: fallbackSeed,
		Max:          r.MaxCertificateSerial,
	}
}

type settingsReader interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

type Allocator struct {
	settings    settingsReader
	maxAttempts int
	logger      logger.Logger
}

func NewAllocator(settings settingsReader, maxAttempts int, log logger.Logger) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{
		settings:    settings,
		maxAttempts: maxAttempts,
		logger:      log.WithFields(map[string]interface{}{"component": "sequence-allocator"}),
	}
}

// Baseline is max(highest persisted serial, seed-1). The operator seed in
// system_settings wins over the configured fallback.
func (a *Allocator) Baseline(ctx context.Context, src Source) (int64, error) {
	max, err := src.Max(ctx)
	if err != nil {
		return 0, errors.NewDatabaseOperationError("read max serial", err)
	}

	seed := src.FallbackSeed
	if src.SeedSetting != "" {
		raw, ok, err := a.settings.GetSetting(ctx, src.SeedSetting)
		if err != nil {
			return 0, errors.NewDatabaseOperationError("read serial seed", err)
		}
		if ok {
			parsed, perr := strconv.ParseInt(raw, 10, 64)
			if perr != nil {
				a.logger.Warn("Ignoring malformed serial seed setting", map[string]interface{}{
					"setting": src.SeedSetting,
					"value":   raw,
				})
			} else {
				seed = parsed
			}
		}
	}

	if seed-1 > max {
		return seed - 1, nil
	}
	return max, nil
}

// Allocate tries candidates above the baseline, calling persist for each
// until one does not collide. persist must return store.ErrSerialTaken
// (possibly wrapped) on a unique violation and should run its own
// transaction. Any other error aborts allocation unchanged.
func (a *Allocator) Allocate(ctx context.Context, src Source, persist func(ctx context.Context, serial int64) error) (int64, error) {
	baseline, err := a.Baseline(ctx, src)
	if err != nil {
		return 0, err
	}

	candidate := baseline + 1
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		err := persist(ctx, candidate)
		if err == nil {
			metrics.AllocationAttempts.WithLabelValues(string(src.Scope)).Observe(float64(attempt))
			if attempt > 1 {
				a.logger.Debug("Serial allocated after collisions", map[string]interface{}{
					"scope":    src.Scope,
					"serial":   candidate,
					"attempts": attempt,
				})
			}
			return candidate, nil
		}
		if !stderrors.Is(err, store.ErrSerialTaken) {
			return 0, err
		}
		if attempt < a.maxAttempts {
			candidate++
		}
	}

	metrics.AllocationAttempts.WithLabelValues(string(src.Scope)).Observe(float64(a.maxAttempts))
	metrics.AllocationExhausted.WithLabelValues(string(src.Scope)).Inc()
	a.logger.Error("Serial allocation exhausted", map[string]interface{}{
		"alert":         true,
		"scope":         src.Scope,
		"baseline":      baseline,
		"lastCandidate": candidate,
		"attempts":      a.maxAttempts,
	})
	return 0, errors.NewAllocationExhaustedError(string(src.Scope), a.maxAttempts, candidate)
}
