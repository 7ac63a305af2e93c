// Package classify implements the Error Classifier: mapping a remote or
// internal error into {transient, terminal} for a given pipeline phase.
package classify

import (
	"errors"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

// Phase names a pipeline phase for classification purposes.
type Phase string

const (
	PhaseSchemaSetup   Phase = "buckets-setup"
	PhaseReindex       Phase = "buckets-reindex"
	PhaseDataMigration Phase = "data-migrations"
)

// terminalKinds lists, per phase, the taxonomy Kinds that abort a phase
// outright rather than being retried.
var terminalKinds = map[Phase]map[storeapi.Kind]bool{
	PhaseSchemaSetup: {
		storeapi.KindInvalidBucketConfig:      true,
		storeapi.KindInvalidBucketName:        true,
		storeapi.KindInvalidIndexDefinition:   true,
		storeapi.KindNotFunction:              true,
		storeapi.KindBucketVersion:            true,
		storeapi.KindInvalidIndexesRemoval:    true,
		storeapi.KindSchemaChangesSameVersion: true,
	},
	// Reindex: every error is transient; deliberately empty.
	PhaseReindex: {},
	PhaseDataMigration: {
		storeapi.KindBucketNotFound:   true,
		storeapi.KindInvalidIndexType: true,
		storeapi.KindInvalidQuery:     true,
		storeapi.KindNotIndexed:       true,
		storeapi.KindUniqueAttribute:  true,
	},
}

// IsTransient reports whether err should be retried for the given phase. It
// looks anywhere in err's cause chain (via errors.As) for a *KindError,
// *InvalidIndexesRemovalError, or *SchemaChangesSameVersionError whose kind
// is terminal for phase. Anything else, including an error with no
// recognizable kind at all, is transient.
//
// InvalidQueryError is special-cased by the caller, not here: the migration
// controller's selection step knows when it is inside the recoverable
// stale-schema-cache retry window and loops directly instead of calling
// IsTransient for that one case. Here, InvalidQueryError is always terminal
// for data migration.
func IsTransient(phase Phase, err error) bool {
	if err == nil {
		return false
	}
	terminal := terminalKinds[phase]

	var ke *storeapi.KindError
	for e := err; errors.As(e, &ke); e = ke.Cause {
		if terminal[ke.Kind] {
			return false
		}
	}
	var removal *storeapi.InvalidIndexesRemovalError
	if errors.As(err, &removal) && terminal[storeapi.KindInvalidIndexesRemoval] {
		return false
	}
	var sameVersion *storeapi.SchemaChangesSameVersionError
	if errors.As(err, &sameVersion) && terminal[storeapi.KindSchemaChangesSameVersion] {
		return false
	}
	return true
}
