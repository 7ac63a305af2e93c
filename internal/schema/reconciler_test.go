package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

type fakeClient struct {
	buckets map[string]*storeapi.RemoteBucket
	updated map[string]storeapi.Schema
}

func newFakeClient() *fakeClient {
	return &fakeClient{buckets: map[string]*storeapi.RemoteBucket{}, updated: map[string]storeapi.Schema{}}
}

func (f *fakeClient) GetBucket(_ context.Context, name string) (*storeapi.RemoteBucket, error) {
	b, ok := f.buckets[name]
	if !ok {
		return nil, storeapi.NewKindError(storeapi.KindBucketNotFound, name, nil)
	}
	return b, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, name string, s storeapi.Schema) error {
	f.buckets[name] = &storeapi.RemoteBucket{Name: name, Index: s.Index, Options: s.Options, Pre: s.Pre, Post: s.Post}
	return nil
}

func (f *fakeClient) UpdateBucket(_ context.Context, name string, s storeapi.Schema) error {
	if _, ok := f.buckets[name]; !ok {
		return storeapi.NewKindError(storeapi.KindBucketNotFound, name, nil)
	}
	f.updated[name] = s
	f.buckets[name] = &storeapi.RemoteBucket{Name: name, Index: s.Index, Options: s.Options, Pre: s.Pre, Post: s.Post}
	return nil
}

func (f *fakeClient) ReindexObjects(_ context.Context, _ string, _ int) (storeapi.ReindexResult, error) {
	return storeapi.ReindexResult{}, nil
}

func (f *fakeClient) FindObjects(_ context.Context, _ string, _ storeapi.Filter) (*storeapi.RecordStream, error) {
	records := make(chan storeapi.Record)
	close(records)
	errCh := make(chan error)
	close(errCh)
	return storeapi.NewRecordStream(records, errCh), nil
}

func (f *fakeClient) Batch(_ context.Context, _ []storeapi.BatchOp) error { return nil }

func strIndex() map[string]storeapi.IndexField {
	return map[string]storeapi.IndexField{"name": {Type: storeapi.IndexTypeString}}
}

func TestReconcileCreatesAbsentBucket(t *testing.T) {
	client := newFakeClient()
	cfg := storeapi.BucketsConfig{
		"users": {Name: "users-bucket", Schema: storeapi.Schema{Index: strIndex(), Options: storeapi.SchemaOptions{Version: 1}}},
	}
	if err := Reconcile(context.Background(), client, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.buckets["users-bucket"]; !ok {
		t.Fatalf("expected bucket to be created")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	client := newFakeClient()
	cfg := storeapi.BucketsConfig{
		"users": {Name: "users-bucket", Schema: storeapi.Schema{Index: strIndex(), Options: storeapi.SchemaOptions{Version: 1}}},
	}
	if err := Reconcile(context.Background(), client, cfg); err != nil {
		t.Fatalf("unexpected error on first reconcile: %v", err)
	}
	if err := Reconcile(context.Background(), client, cfg); err != nil {
		t.Fatalf("second reconcile against a converged store should be a no-op, got: %v", err)
	}
	if len(client.updated) != 0 {
		t.Fatalf("expected no updates on the idempotent second pass, got %v", client.updated)
	}
}

func TestReconcileSameVersionDriftIsTerminal(t *testing.T) {
	client := newFakeClient()
	client.buckets["users-bucket"] = &storeapi.RemoteBucket{
		Name: "users-bucket",
		Index: map[string]storeapi.IndexField{
			"name": {Type: storeapi.IndexTypeString},
		},
		Options: storeapi.SchemaOptions{Version: 1},
	}
	cfg := storeapi.BucketsConfig{
		"users": {Name: "users-bucket", Schema: storeapi.Schema{
			Index:   map[string]storeapi.IndexField{"name": {Type: storeapi.IndexTypeNumber}},
			Options: storeapi.SchemaOptions{Version: 1},
		}},
	}
	err := Reconcile(context.Background(), client, cfg)
	var sameVersion *storeapi.SchemaChangesSameVersionError
	if !errors.As(err, &sameVersion) {
		t.Fatalf("got %v, want *storeapi.SchemaChangesSameVersionError", err)
	}
}

func TestReconcileUpgradeRejectsIndexRemoval(t *testing.T) {
	client := newFakeClient()
	client.buckets["users-bucket"] = &storeapi.RemoteBucket{
		Name: "users-bucket",
		Index: map[string]storeapi.IndexField{
			"name":  {Type: storeapi.IndexTypeString},
			"email": {Type: storeapi.IndexTypeString},
		},
		Options: storeapi.SchemaOptions{Version: 1},
	}
	cfg := storeapi.BucketsConfig{
		"users": {Name: "users-bucket", Schema: storeapi.Schema{
			Index:   map[string]storeapi.IndexField{"name": {Type: storeapi.IndexTypeString}},
			Options: storeapi.SchemaOptions{Version: 2},
		}},
	}
	err := Reconcile(context.Background(), client, cfg)
	var removal *storeapi.InvalidIndexesRemovalError
	if !errors.As(err, &removal) {
		t.Fatalf("got %v, want *storeapi.InvalidIndexesRemovalError", err)
	}
	if len(removal.Removed) != 1 || removal.Removed[0] != "email" {
		t.Fatalf("got removed=%v, want [email]", removal.Removed)
	}
}

func TestReconcileUpgradeAddsIndexes(t *testing.T) {
	client := newFakeClient()
	client.buckets["users-bucket"] = &storeapi.RemoteBucket{
		Name:    "users-bucket",
		Index:   map[string]storeapi.IndexField{"name": {Type: storeapi.IndexTypeString}},
		Options: storeapi.SchemaOptions{Version: 1},
	}
	cfg := storeapi.BucketsConfig{
		"users": {Name: "users-bucket", Schema: storeapi.Schema{
			Index: map[string]storeapi.IndexField{
				"name":  {Type: storeapi.IndexTypeString},
				"email": {Type: storeapi.IndexTypeString},
			},
			Options: storeapi.SchemaOptions{Version: 2},
		}},
	}
	if err := Reconcile(context.Background(), client, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.updated["users-bucket"]; !ok {
		t.Fatalf("expected UpdateBucket to be called")
	}
}

func TestReconcileVersionRollbackIsNoOp(t *testing.T) {
	client := newFakeClient()
	client.buckets["users-bucket"] = &storeapi.RemoteBucket{
		Name:    "users-bucket",
		Index:   strIndex(),
		Options: storeapi.SchemaOptions{Version: 5},
	}
	cfg := storeapi.BucketsConfig{
		"users": {Name: "users-bucket", Schema: storeapi.Schema{Index: strIndex(), Options: storeapi.SchemaOptions{Version: 3}}},
	}
	if err := Reconcile(context.Background(), client, cfg); err != nil {
		t.Fatalf("a version rollback must be a silent no-op, got: %v", err)
	}
	if len(client.updated) != 0 {
		t.Fatalf("rollback must not call UpdateBucket, got %v", client.updated)
	}
}
