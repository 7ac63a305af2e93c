// Package bucketsinit implements the Bucket Initializer: a coordinator that
// brings a set of indexed, versioned buckets in an external storage service
// to a desired schema state, reindexes stored records against that schema,
// and runs ordered per-collection data migrations.
package bucketsinit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sevenDatabase/bucketinit/internal/backoff"
	"github.com/sevenDatabase/bucketinit/internal/classify"
	"github.com/sevenDatabase/bucketinit/internal/migration"
	"github.com/sevenDatabase/bucketinit/internal/reindex"
	"github.com/sevenDatabase/bucketinit/internal/schema"
	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

// Metrics is the subset of internal/observability.Collector this package
// uses. Kept narrow so bucketsinit does not need to import observability's
// full Prometheus registration surface; a nil Metrics is valid.
type Metrics interface {
	backoff.AttemptRecorder
	migration.Metrics
	ObservePhase(phase string, d time.Duration, outcome string)
}

// Config bundles the construction-time inputs for an Initializer.
type Config struct {
	BucketsConfig storeapi.BucketsConfig
	Client        storeapi.StorageClient

	// Plan is a pre-loaded migration plan (for example one returned by
	// migration.LoadPlanFromDir); Config takes no migrations directory
	// path itself. If Plan is nil, the migration phase is skipped and
	// stays NOT_STARTED.
	Plan migration.Plan

	// MaxBucketsSetupAttempts, MaxBucketsReindexAttempts, and
	// MaxDataMigrationsAttempts cap the Backoff Runner's attempts for
	// each phase. Zero means unbounded.
	MaxBucketsSetupAttempts   int
	MaxBucketsReindexAttempts int
	MaxDataMigrationsAttempts int

	// StaleCacheBudget overrides the migration controller's stale-schema-
	// cache retry budget. Zero value means migration.DefaultStaleCacheBudget().
	StaleCacheBudget migration.StaleCacheBudget

	// Metrics is optional; when set, every phase and the migration chunk
	// loop report through it.
	Metrics Metrics
}

// Initializer sequences schema setup, reindexing, and data migration. A
// single instance is single-shot: once Start succeeds in beginning the
// pipeline, a second call fails with BucketsInitAlreadyStartedError.
type Initializer struct {
	cfg Config

	status      *statusModel
	broadcaster broadcaster
	started     atomic.Bool
	runner      *backoff.Runner
}

// New validates cfg and constructs an Initializer. Validation (unique
// bucket names, unique model names, data_version index requirements for
// any model with a migration plan) happens here rather than in Start, so
// construction fails fast.
func New(cfg Config) (*Initializer, error) {
	if err := validateConfig(cfg.BucketsConfig); err != nil {
		return nil, err
	}
	if cfg.Plan != nil {
		if _, err := migration.NewPlan(cfg.Plan, cfg.BucketsConfig); err != nil {
			return nil, err
		}
	}
	budget := cfg.StaleCacheBudget
	if budget.Clock == nil {
		budget = migration.DefaultStaleCacheBudget()
	}
	cfg.StaleCacheBudget = budget

	runner := backoff.New()
	if cfg.Metrics != nil {
		runner.Metrics = cfg.Metrics
	}

	return &Initializer{
		cfg:    cfg,
		status: newStatusModel(),
		runner: runner,
	}, nil
}

// Subscribe registers for lifecycle signals. See Signal for the set of
// events and their at-most-once-per-instance guarantee.
func (in *Initializer) Subscribe() <-chan Event {
	return in.broadcaster.Subscribe()
}

// Status returns a deep-copied snapshot of the current Status Model.
func (in *Initializer) Status() Status {
	return in.status.snapshot()
}

// Start begins the three-phase pipeline. It returns once the pipeline has
// reached DONE or ERROR (or ctx is canceled); Subscribe can be used instead
// to observe progress concurrently from another goroutine.
func (in *Initializer) Start(ctx context.Context) error {
	if !in.started.CompareAndSwap(false, true) {
		return &storeapi.BucketsInitAlreadyStartedError{}
	}

	if err := in.runSetup(ctx); err != nil {
		in.fail(err)
		return err
	}
	in.broadcaster.publish(Event{Signal: SignalBucketsSetupDone})

	if err := in.runReindex(ctx); err != nil {
		in.fail(err)
		return err
	}
	in.broadcaster.publish(Event{Signal: SignalBucketsReindexDone})

	if in.cfg.Plan != nil {
		if err := in.runMigrations(ctx); err != nil {
			in.fail(err)
			return err
		}
		in.broadcaster.publish(Event{Signal: SignalDataMigrationsDone})
	}

	in.broadcaster.publish(Event{Signal: SignalDone})
	return nil
}

func (in *Initializer) runSetup(ctx context.Context) error {
	in.status.setSetup(StateStarted, nil)
	start := time.Now()
	err := in.runner.Run(ctx, string(classify.PhaseSchemaSetup), func(ctx context.Context) error {
		err := schema.Reconcile(ctx, in.cfg.Client, in.cfg.BucketsConfig)
		in.status.setSetup(StateStarted, err)
		return err
	}, func(err error) bool {
		return classify.IsTransient(classify.PhaseSchemaSetup, err)
	}, in.cfg.MaxBucketsSetupAttempts)
	in.observePhase(classify.PhaseSchemaSetup, start, err)

	if err != nil {
		in.status.setSetup(StateError, err)
		return err
	}
	in.status.setSetup(StateDone, nil)
	return nil
}

func (in *Initializer) runReindex(ctx context.Context) error {
	in.status.setReindex(StateStarted, nil)
	start := time.Now()
	err := in.runner.Run(ctx, string(classify.PhaseReindex), func(ctx context.Context) error {
		err := reindex.Run(ctx, in.cfg.Client, in.cfg.BucketsConfig)
		in.status.setReindex(StateStarted, err)
		return err
	}, func(err error) bool {
		return classify.IsTransient(classify.PhaseReindex, err)
	}, in.cfg.MaxBucketsReindexAttempts)
	in.observePhase(classify.PhaseReindex, start, err)

	if err != nil {
		in.status.setReindex(StateError, err)
		return err
	}
	in.status.setReindex(StateDone, nil)
	return nil
}

func (in *Initializer) runMigrations(ctx context.Context) error {
	in.status.setMigrationsState(StateStarted)
	reporter := &statusReporter{status: in.status}
	start := time.Now()

	err := in.runner.Run(ctx, string(classify.PhaseDataMigration), func(ctx context.Context) error {
		return migration.Run(ctx, in.cfg.Client, in.cfg.Plan, in.cfg.BucketsConfig, reporter, in.cfg.StaleCacheBudget, in.cfg.Metrics)
	}, migration.IsTransientForMigration, in.cfg.MaxDataMigrationsAttempts)
	in.observePhase(classify.PhaseDataMigration, start, err)

	if err != nil {
		in.status.setMigrationsState(StateError)
		return err
	}
	in.status.setMigrationsState(StateDone)
	return nil
}

func (in *Initializer) observePhase(phase classify.Phase, start time.Time, err error) {
	if in.cfg.Metrics == nil {
		return
	}
	outcome := "done"
	if err != nil {
		outcome = "error"
	}
	in.cfg.Metrics.ObservePhase(string(phase), time.Since(start), outcome)
}

func (in *Initializer) fail(err error) {
	slog.Error("buckets initializer failed", slog.Any("error", err))
	in.broadcaster.publish(Event{Signal: SignalError, Err: err})
}

// statusReporter adapts statusModel to migration.Reporter.
type statusReporter struct {
	status *statusModel
}

func (r *statusReporter) SetLatestError(model string, err error) {
	r.status.setMigrationLatestError(model, err)
}

func (r *statusReporter) SetCompleted(model string, version int) {
	r.status.setMigrationCompleted(model, version)
}
