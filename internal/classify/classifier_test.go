package classify

import (
	"errors"
	"testing"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

func TestIsTransientNilIsNotTransient(t *testing.T) {
	if IsTransient(PhaseSchemaSetup, nil) {
		t.Fatalf("nil error must not be transient")
	}
}

func TestIsTransientUnknownErrorIsTransient(t *testing.T) {
	if !IsTransient(PhaseSchemaSetup, errors.New("connection reset")) {
		t.Fatalf("an error with no recognizable kind should be treated as transient")
	}
}

func TestIsTransientPerPhaseTerminalKinds(t *testing.T) {
	cases := []struct {
		name      string
		phase     Phase
		err       error
		transient bool
	}{
		{"setup: invalid config is terminal", PhaseSchemaSetup, storeapi.NewKindError(storeapi.KindInvalidBucketConfig, "", nil), false},
		{"setup: bucket not found is transient (not in setup's terminal list)", PhaseSchemaSetup, storeapi.NewKindError(storeapi.KindBucketNotFound, "", nil), true},
		{"reindex: everything is transient, even invalid config", PhaseReindex, storeapi.NewKindError(storeapi.KindInvalidBucketConfig, "", nil), true},
		{"migration: bucket not found is terminal", PhaseDataMigration, storeapi.NewKindError(storeapi.KindBucketNotFound, "", nil), false},
		{"migration: invalid query is terminal", PhaseDataMigration, storeapi.NewKindError(storeapi.KindInvalidQuery, "", nil), false},
		{"setup: InvalidIndexesRemovalError is terminal", PhaseSchemaSetup, &storeapi.InvalidIndexesRemovalError{Bucket: "b", Removed: []string{"x"}}, false},
		{"setup: SchemaChangesSameVersionError is terminal", PhaseSchemaSetup, &storeapi.SchemaChangesSameVersionError{Bucket: "b"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := IsTransient(c.phase, c.err)
			if got != c.transient {
				t.Fatalf("got transient=%v, want %v", got, c.transient)
			}
		})
	}
}

func TestIsTransientLooksThroughWrappedErrors(t *testing.T) {
	wrapped := errors.New("context: ")
	inner := storeapi.NewKindError(storeapi.KindInvalidBucketConfig, "dup names", nil)
	err := errors.Join(wrapped, inner)
	if IsTransient(PhaseSchemaSetup, err) {
		t.Fatalf("errors.As should find the joined *KindError and classify it as terminal")
	}
}
