package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sevenDatabase/bucketinit/internal/classify"
	"github.com/sevenDatabase/bucketinit/internal/clock"
	"github.com/sevenDatabase/bucketinit/internal/logging"
	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

// The selection step sets no page size: the remote's default page size
// (1000) is used as-is.
const (
	staleCacheRetryDelay  = 10 * time.Second
	staleCacheRetryBudget = 6 * time.Minute
	verboseTag            = "migration"
)

// StaleCacheBudget is the wall-clock budget for the selection step's
// stale-schema-cache retry loop. It is a small, clock-driven component so
// tests can run it without actually sleeping.
type StaleCacheBudget struct {
	Clock clock.Clock
	Delay time.Duration
	Total time.Duration
}

// DefaultStaleCacheBudget returns the production defaults: 10s delay, a
// 6-minute wall-clock ceiling, driven by the real clock.
func DefaultStaleCacheBudget() StaleCacheBudget {
	return StaleCacheBudget{Clock: clock.RealClock{}, Delay: staleCacheRetryDelay, Total: staleCacheRetryBudget}
}

// Reporter receives progress from the controller as it runs, so the
// Orchestrator's Status Model can be updated without this package knowing
// about bucketsinit's internals.
type Reporter interface {
	SetLatestError(model string, err error)
	SetCompleted(model string, version int)
}

// Metrics receives per-chunk and per-model throughput counters. Implemented
// by internal/observability.Collector; kept as a narrow interface here so
// this package does not depend on the metrics package. A nil Metrics is
// valid and simply means no counters are recorded.
type Metrics interface {
	IncMigrationChunk(model string)
	AddRecordsMigrated(model string, n int)
	SetInflightModels(n int)
}

// Run drives every model's migration plan to completion in parallel, one
// worker per model; each worker applies its model's migrations sequentially
// in version order. It returns the first worker error (terminal or, if the
// caller's Backoff Runner invocation is retried, a transient one);
// already-migrated records are skipped naturally on retry by the
// version-based selection filter.
func Run(ctx context.Context, client storeapi.StorageClient, plan Plan, cfg storeapi.BucketsConfig, reporter Reporter, budget StaleCacheBudget, metrics Metrics) error {
	models := make([]string, 0, len(plan))
	for model := range plan {
		models = append(models, model)
	}
	sort.Strings(models)

	var inflightMu sync.Mutex
	inflight := len(models)
	if metrics != nil {
		metrics.SetInflightModels(inflight)
		defer metrics.SetInflightModels(0)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(models))
	for i, model := range models {
		wg.Add(1)
		go func(i int, model string) {
			defer wg.Done()
			bucket := cfg[model].Name
			err := runModel(ctx, client, bucket, model, plan[model], reporter, budget, metrics)
			if err != nil {
				reporter.SetLatestError(model, err)
			} else {
				reporter.SetLatestError(model, nil)
			}
			errs[i] = err
			if metrics != nil {
				inflightMu.Lock()
				inflight--
				metrics.SetInflightModels(inflight)
				inflightMu.Unlock()
			}
		}(i, model)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func runModel(ctx context.Context, client storeapi.StorageClient, bucket, model string, modules []Module, reporter Reporter, budget StaleCacheBudget, metrics Metrics) error {
	for _, mod := range modules {
		if err := runChunkLoop(ctx, client, bucket, model, mod, budget, metrics); err != nil {
			return err
		}
		reporter.SetCompleted(model, mod.Version)
	}
	return nil
}

// runChunkLoop drives one migration module to completion: repeatedly select
// a page of records still at V-1, transform, batch-write, and loop until
// the page is empty.
func runChunkLoop(ctx context.Context, client storeapi.StorageClient, bucket, model string, mod Module, budget StaleCacheBudget, metrics Metrics) error {
	filter := selectionFilter(mod.Version)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		records, err := selectWithStaleCacheTolerance(ctx, client, bucket, filter, budget)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		batchID := uuid.New().String()
		ops := make([]storeapi.BatchOp, 0, len(records))
		for i := range records {
			rec := records[i]
			migrated, ok := mod.Migrate(ctx, &rec, &Context{Log: slogAdapter{}})
			if !ok || migrated == nil {
				continue
			}
			key := migrated.Key
			ops = append(ops, storeapi.BatchOp{
				Bucket:    bucket,
				Operation: "put",
				Key:       key,
				Value:     migrated.Value,
				ETag:      migrated.ETag,
			})
		}

		if len(ops) > 0 {
			if err := client.Batch(ctx, ops); err != nil {
				return fmt.Errorf("model %q: batch write version %d (batch %s): %w", model, mod.Version, batchID, err)
			}
		}

		logging.VInfo(verboseTag, "migration chunk written",
			slog.String("model", model), slog.Int("version", mod.Version),
			slog.Int("records", len(records)), slog.Int("written", len(ops)), slog.String("batch_id", batchID))

		if metrics != nil {
			metrics.IncMigrationChunk(model)
			metrics.AddRecordsMigrated(model, len(ops))
		}

		// Yield so sibling model migrations interleave instead of one
		// model's chunk loop monopolizing the goroutine scheduler.
		runtime.Gosched()
	}
}

// selectionFilter builds the opaque data_version filter expression for
// migrating records to version V. V==1 selects records with no
// data_version at all; V>1 selects records at exactly V-1, defensively
// tolerating any record that slipped behind without a data_version field.
func selectionFilter(v int) storeapi.Filter {
	if v == 1 {
		return storeapi.Filter{Expr: "(!(data_version=*))"}
	}
	return storeapi.Filter{Expr: fmt.Sprintf("(|(!(data_version=*))(data_version=%d))", v-1)}
}

// selectWithStaleCacheTolerance retries InvalidQueryError from the
// selection step alone, sleeping budget.Delay between attempts, for up to
// budget.Total of simulated or real wall-clock time. This is the one place
// in the system where InvalidQueryError is not routed through the
// classifier: classify.IsTransient always treats it as terminal for data
// migration, because everywhere else an invalid query really is a bug, not
// a schema cache that hasn't caught up yet.
func selectWithStaleCacheTolerance(ctx context.Context, client storeapi.StorageClient, bucket string, filter storeapi.Filter, budget StaleCacheBudget) ([]storeapi.Record, error) {
	deadline := budget.Clock.Now().Add(budget.Total)
	for {
		stream, err := client.FindObjects(ctx, bucket, filter)
		if err == nil {
			return stream.All()
		}
		if !isInvalidQuery(err) {
			return nil, err
		}
		if budget.Clock.Now().After(deadline) {
			return nil, fmt.Errorf("bucket %q: selection filter still invalid after %s (stale schema cache never refreshed): %w", bucket, budget.Total, err)
		}
		slog.Warn("selection query invalid, assuming stale remote schema cache, retrying",
			slog.String("bucket", bucket), slog.Duration("delay", budget.Delay), slog.Any("error", err))
		if sleepErr := budget.Clock.Sleep(ctx, budget.Delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

func isInvalidQuery(err error) bool {
	var ke *storeapi.KindError
	return errors.As(err, &ke) && ke.Kind == storeapi.KindInvalidQuery
}

// IsTransientForMigration is the classifier predicate the Backoff Runner
// uses when wrapping the whole data-migration phase.
func IsTransientForMigration(err error) bool {
	return classify.IsTransient(classify.PhaseDataMigration, err)
}

type slogAdapter struct{}

func (slogAdapter) Info(msg string, args ...any) { slog.Info(msg, args...) }
