package reindex

import (
	"context"
	"errors"
	"testing"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

type fakeClient struct {
	remaining map[string]int
	calls     map[string]int
	err       error
}

func (f *fakeClient) GetBucket(context.Context, string) (*storeapi.RemoteBucket, error) {
	return nil, nil
}
func (f *fakeClient) CreateBucket(context.Context, string, storeapi.Schema) error { return nil }
func (f *fakeClient) UpdateBucket(context.Context, string, storeapi.Schema) error { return nil }

func (f *fakeClient) ReindexObjects(_ context.Context, name string, count int) (storeapi.ReindexResult, error) {
	if f.err != nil {
		return storeapi.ReindexResult{}, f.err
	}
	f.calls[name]++
	remaining := f.remaining[name]
	processed := remaining
	if processed > count {
		processed = count
	}
	f.remaining[name] = remaining - processed
	return storeapi.ReindexResult{Processed: processed}, nil
}

func (f *fakeClient) FindObjects(context.Context, string, storeapi.Filter) (*storeapi.RecordStream, error) {
	return nil, nil
}
func (f *fakeClient) Batch(context.Context, []storeapi.BatchOp) error { return nil }

func TestRunDrivesEachBucketToZeroRemaining(t *testing.T) {
	client := &fakeClient{remaining: map[string]int{"a": 250, "b": 0}, calls: map[string]int{}}
	cfg := storeapi.BucketsConfig{
		"modelA": {Name: "a"},
		"modelB": {Name: "b"},
	}
	if err := Run(context.Background(), client, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.remaining["a"] != 0 || client.remaining["b"] != 0 {
		t.Fatalf("expected both buckets drained, got %v", client.remaining)
	}
	if client.calls["a"] != 4 {
		t.Fatalf("expected 3 pages of 100 to drain 250 records plus one zero-result call, got %d calls", client.calls["a"])
	}
	if client.calls["b"] != 1 {
		t.Fatalf("expected exactly one zero-result call for an already-clean bucket, got %d", client.calls["b"])
	}
}

func TestRunPropagatesRemoteError(t *testing.T) {
	wantErr := errors.New("remote unavailable")
	client := &fakeClient{remaining: map[string]int{"a": 10}, calls: map[string]int{}, err: wantErr}
	cfg := storeapi.BucketsConfig{"modelA": {Name: "a"}}
	err := Run(context.Background(), client, cfg)
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	client := &fakeClient{remaining: map[string]int{"a": 1 << 30}, calls: map[string]int{}}
	cfg := storeapi.BucketsConfig{"modelA": {Name: "a"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, client, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
