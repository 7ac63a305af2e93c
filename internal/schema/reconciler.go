// Package schema implements the Schema Reconciler: for each bucket, bring
// the remote's schema to the desired state, enforcing backward compatibility
// and deciding whether a version bump is required.
package schema

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sort"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

// Reconcile reconciles every bucket in cfg sequentially against client,
// stopping at the first terminal error. It is safe to call repeatedly
// (idempotent): a second call against an already-converged store is a no-op
// for every bucket.
func Reconcile(ctx context.Context, client storeapi.StorageClient, cfg storeapi.BucketsConfig) error {
	names := make([]string, 0, len(cfg))
	for model := range cfg {
		names = append(names, model)
	}
	sort.Strings(names)

	for _, model := range names {
		spec := cfg[model]
		if err := reconcileOne(ctx, client, spec); err != nil {
			return err
		}
	}
	return nil
}

func reconcileOne(ctx context.Context, client storeapi.StorageClient, spec storeapi.BucketSpec) error {
	remote, err := client.GetBucket(ctx, spec.Name)
	if err != nil {
		if isBucketNotFound(err) {
			slog.Info("bucket absent, creating", slog.String("bucket", spec.Name))
			return client.CreateBucket(ctx, spec.Name, spec.Schema)
		}
		return err
	}

	oldV := remote.Options.Version
	newV := spec.Schema.Options.Version

	switch {
	case newV == oldV:
		return reconcileSameVersion(spec, remote)
	case newV > oldV:
		return reconcileUpgrade(ctx, client, spec, remote)
	default: // newV < oldV: a code rollback, expressly a no-op.
		slog.Info("desired version below remote version, no-op (rollback)",
			slog.String("bucket", spec.Name), slog.Int("desired_version", newV), slog.Int("remote_version", oldV))
		return nil
	}
}

func isBucketNotFound(err error) bool {
	var k *storeapi.KindError
	return errors.As(err, &k) && k.Kind == storeapi.KindBucketNotFound
}

// normalize fills in remote-absent defaults and drops remote-only fields so
// that a structural comparison between the desired and observed schema is
// meaningful.
func normalize(s storeapi.Schema) storeapi.Schema {
	out := storeapi.Schema{
		Index:   map[string]storeapi.IndexField{},
		Options: storeapi.SchemaOptions{Version: s.Options.Version},
		Pre:     s.Pre,
		Post:    s.Post,
	}
	for k, v := range s.Index {
		out.Index[k] = v
	}
	if out.Pre == nil {
		out.Pre = []string{}
	}
	if out.Post == nil {
		out.Post = []string{}
	}
	return out
}

func reconcileSameVersion(spec storeapi.BucketSpec, remote *storeapi.RemoteBucket) error {
	desired := normalize(spec.Schema)
	observed := normalize(storeapi.Schema{
		Index:   remote.Index,
		Options: remote.Options,
		Pre:     remote.Pre,
		Post:    remote.Post,
	})
	if reflect.DeepEqual(desired, observed) {
		return nil
	}
	return &storeapi.SchemaChangesSameVersionError{Bucket: spec.Name, Old: observed, New: desired}
}

func reconcileUpgrade(ctx context.Context, client storeapi.StorageClient, spec storeapi.BucketSpec, remote *storeapi.RemoteBucket) error {
	removed := removedKeys(remote.Index, spec.Schema.Index)
	if len(removed) > 0 {
		return &storeapi.InvalidIndexesRemovalError{Bucket: spec.Name, Removed: removed}
	}
	slog.Info("bucket schema version increasing, updating",
		slog.String("bucket", spec.Name),
		slog.Int("from_version", remote.Options.Version),
		slog.Int("to_version", spec.Schema.Options.Version))
	return client.UpdateBucket(ctx, spec.Name, spec.Schema)
}

func removedKeys(oldIndex, newIndex map[string]storeapi.IndexField) []string {
	var removed []string
	for k := range oldIndex {
		if _, ok := newIndex[k]; !ok {
			removed = append(removed, k)
		}
	}
	sort.Strings(removed)
	return removed
}
