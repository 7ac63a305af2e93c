package storeapi

import "fmt"

// Kind names one error in the remote/core taxonomy. The classifier and the
// status model key off this rather than string-matching messages.
type Kind string

const (
	KindInvalidBucketConfig      Kind = "InvalidBucketConfigError"
	KindInvalidBucketName        Kind = "InvalidBucketNameError"
	KindInvalidIndexDefinition   Kind = "InvalidIndexDefinitionError"
	KindNotFunction              Kind = "NotFunctionError"
	KindBucketVersion            Kind = "BucketVersionError"
	KindInvalidIndexesRemoval    Kind = "InvalidIndexesRemovalError"
	KindSchemaChangesSameVersion Kind = "SchemaChangesSameVersionError"
	KindBucketNotFound           Kind = "BucketNotFoundError"
	KindInvalidIndexType         Kind = "InvalidIndexTypeError"
	KindInvalidQuery             Kind = "InvalidQueryError"
	KindNotIndexed               Kind = "NotIndexedError"
	KindUniqueAttribute          Kind = "UniqueAttributeError"
)

// KindError is a typed error carrying a taxonomy Kind and an optional cause.
// The classifier walks the chain of causes (via errors.Unwrap) looking for a
// Kind in a phase's terminal list.
type KindError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *KindError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *KindError) Unwrap() error { return e.Cause }

// NewKindError builds a KindError with an optional wrapped cause.
func NewKindError(k Kind, message string, cause error) *KindError {
	return &KindError{Kind: k, Message: message, Cause: cause}
}

// InvalidIndexesRemovalError is raised when an update would drop indexed
// fields the remote already holds. It carries the removed field names so
// callers and tests can inspect them without parsing the message.
type InvalidIndexesRemovalError struct {
	Bucket  string
	Removed []string
}

func (e *InvalidIndexesRemovalError) Error() string {
	return fmt.Sprintf("bucket %q: refusing to remove indexes %v", e.Bucket, e.Removed)
}

// SchemaChangesSameVersionError is raised when a bucket's schema differs from
// the desired one but the declared version did not change.
type SchemaChangesSameVersionError struct {
	Bucket string
	Old    Schema
	New    Schema
}

func (e *SchemaChangesSameVersionError) Error() string {
	return fmt.Sprintf("bucket %q: schema changed without a version bump", e.Bucket)
}

// InvalidDataMigrationFileNamesError is a configuration error raised by the
// Migration Loader when a migration directory contains files that do not
// match the NNN-<slug>.<ext> naming contract.
type InvalidDataMigrationFileNamesError struct {
	Filenames []string
}

func (e *InvalidDataMigrationFileNamesError) Error() string {
	return fmt.Sprintf("invalid data migration file names: %v", e.Filenames)
}

// BucketsInitAlreadyStartedError is returned by a second call to start().
type BucketsInitAlreadyStartedError struct{}

func (e *BucketsInitAlreadyStartedError) Error() string {
	return "buckets initializer already started"
}

// MaxAttemptsReachedError is reported by the Backoff Runner when it exhausts
// its attempt budget without a terminal error or success.
type MaxAttemptsReachedError struct {
	Phase string
}

func (e *MaxAttemptsReachedError) Error() string {
	return fmt.Sprintf("phase %q: max attempts reached", e.Phase)
}

// CanceledError is reported when a caller cancellation signal stopped a
// Backoff Runner loop or the migration chunk loop before completion.
type CanceledError struct {
	Phase string
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("phase %q: canceled", e.Phase)
}
