// Package reindex implements the Reindex Driver: for each bucket, request
// the remote reindex a bounded page of records until none remain.
package reindex

import (
	"context"
	"log/slog"
	"sort"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

// pageSize is the bounded count requested per reindexObjects call.
const pageSize = 100

// Run drives reindexing to completion for every bucket in cfg, in
// deterministic (sorted model name) order. It does not inspect record
// contents: it only loops reindexObjects until the remote reports zero
// records processed for a bucket.
func Run(ctx context.Context, client storeapi.StorageClient, cfg storeapi.BucketsConfig) error {
	names := make([]string, 0, len(cfg))
	for model := range cfg {
		names = append(names, model)
	}
	sort.Strings(names)

	for _, model := range names {
		if err := runOne(ctx, client, cfg[model].Name); err != nil {
			return err
		}
	}
	return nil
}

func runOne(ctx context.Context, client storeapi.StorageClient, bucket string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		result, err := client.ReindexObjects(ctx, bucket, pageSize)
		if err != nil {
			return err
		}
		if result.Processed == 0 {
			slog.Info("reindex complete", slog.String("bucket", bucket))
			return nil
		}
		slog.Debug("reindex page processed", slog.String("bucket", bucket), slog.Int("processed", result.Processed))
	}
}
