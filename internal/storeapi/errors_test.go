package storeapi

import (
	"errors"
	"testing"
)

func TestKindErrorUnwrap(t *testing.T) {
	cause := errors.New("dial refused")
	err := NewKindError(KindBucketNotFound, "no such bucket", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}

	var ke *KindError
	if !errors.As(err, &ke) {
		t.Fatalf("expected errors.As to find *KindError")
	}
	if ke.Kind != KindBucketNotFound {
		t.Fatalf("got kind %q, want %q", ke.Kind, KindBucketNotFound)
	}
}

func TestKindErrorMessage(t *testing.T) {
	withMsg := NewKindError(KindInvalidQuery, "bad filter", nil)
	if withMsg.Error() != "InvalidQueryError: bad filter" {
		t.Fatalf("got %q", withMsg.Error())
	}

	bare := NewKindError(KindInvalidQuery, "", nil)
	if bare.Error() != "InvalidQueryError" {
		t.Fatalf("got %q", bare.Error())
	}
}

func TestRecordDataVersion(t *testing.T) {
	cases := []struct {
		name    string
		value   map[string]any
		want    int
		present bool
	}{
		{"absent", map[string]any{}, 0, false},
		{"nil value", nil, 0, false},
		{"int", map[string]any{"data_version": 3}, 3, true},
		{"int64", map[string]any{"data_version": int64(4)}, 4, true},
		{"float64 (json-decoded)", map[string]any{"data_version": float64(5)}, 5, true},
		{"wrong type", map[string]any{"data_version": "5"}, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := &Record{Value: c.value}
			got, ok := r.DataVersion()
			if got != c.want || ok != c.present {
				t.Fatalf("got (%d, %v), want (%d, %v)", got, ok, c.want, c.present)
			}
		})
	}
}

func TestRecordStreamAll(t *testing.T) {
	records := make(chan Record, 2)
	records <- Record{Key: "a"}
	records <- Record{Key: "b"}
	close(records)
	errCh := make(chan error, 1)
	close(errCh)

	stream := NewRecordStream(records, errCh)
	got, err := stream.All()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Key != "a" || got[1].Key != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestRecordStreamAllPropagatesError(t *testing.T) {
	records := make(chan Record)
	close(records)
	errCh := make(chan error, 1)
	wantErr := errors.New("boom")
	errCh <- wantErr
	close(errCh)

	stream := NewRecordStream(records, errCh)
	_, err := stream.All()
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}
