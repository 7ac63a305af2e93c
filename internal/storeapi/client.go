package storeapi

import "context"

// IndexType is the declared type of an indexed field in a bucket schema.
type IndexType string

const (
	IndexTypeString  IndexType = "string"
	IndexTypeNumber  IndexType = "number"
	IndexTypeBoolean IndexType = "boolean"
)

// IndexField describes a single indexed field.
type IndexField struct {
	Type IndexType `json:"type" yaml:"type"`
}

// SchemaOptions carries the bucket's version and is otherwise opaque.
type SchemaOptions struct {
	Version int `json:"version" yaml:"version"`
}

// Schema is the desired or observed shape of a bucket: its indexed fields,
// version, and opaque pre/post hooks passed through to the remote untouched.
type Schema struct {
	Index   map[string]IndexField `json:"index" yaml:"index"`
	Options SchemaOptions         `json:"options" yaml:"options"`
	Pre     []string              `json:"pre,omitempty" yaml:"pre,omitempty"`
	Post    []string              `json:"post,omitempty" yaml:"post,omitempty"`
}

// BucketSpec is one entry of the Desired Bucket Configuration.
type BucketSpec struct {
	Name   string `json:"name" yaml:"name"`
	Schema Schema `json:"schema" yaml:"schema"`
}

// BucketsConfig maps a logical model name to its desired bucket spec.
type BucketsConfig map[string]BucketSpec

// RemoteBucket is what the storage service returns for a bucket's current
// schema state. ReindexActive's non-emptiness indicates a reindex already
// running in the background on the remote for this bucket.
type RemoteBucket struct {
	Name          string
	Index         map[string]IndexField
	Options       SchemaOptions
	Pre           []string
	Post          []string
	ReindexActive map[string]any
	// RVer is the remote's own per-row schema version tag. Observed, never
	// written by this package.
	RVer int
}

// Record is a stored record as returned by findObjects and written back by
// batch. Value is the opaque payload; DataVersion, when present, gates which
// migration applies next.
type Record struct {
	Key   string
	Value map[string]any
	ETag  string
}

// DataVersion returns the record's data_version field, and whether it was
// present at all (absence means "pre-versioned").
func (r *Record) DataVersion() (int, bool) {
	if r.Value == nil {
		return 0, false
	}
	v, ok := r.Value["data_version"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Filter is an opaque query passed to FindObjects. Components build it; the
// storage client interprets it.
type Filter struct {
	// Expr is the remote-specific filter expression, e.g. an LDAP-style
	// string for a moray-like remote. Kept opaque on purpose: this package
	// never inspects record contents beyond data_version.
	Expr string
}

// BatchOp is one write in a batch() call.
type BatchOp struct {
	Bucket    string
	Operation string // always "put" for this package's purposes
	Key       string
	Value     map[string]any
	ETag      string
}

// ReindexResult is the outcome of one reindexObjects call.
type ReindexResult struct {
	Processed int
}

// RecordStream is the result of FindObjects: records are delivered on the
// channel, and a single error (if any) is reported once after the channel is
// closed. Reading All() is a convenience for the common bounded-page case.
type RecordStream struct {
	records <-chan Record
	errOnce <-chan error
}

// NewRecordStream wraps a channel of records with a one-shot error channel.
func NewRecordStream(records <-chan Record, errOnce <-chan error) *RecordStream {
	return &RecordStream{records: records, errOnce: errOnce}
}

// All drains the stream into a slice and returns the terminal error, if any.
func (s *RecordStream) All() ([]Record, error) {
	var out []Record
	for r := range s.records {
		out = append(out, r)
	}
	var err error
	select {
	case err = <-s.errOnce:
	default:
	}
	return out, err
}

// StorageClient is the narrow capability interface this package depends on.
// It is borrowed, not owned: its lifetime must exceed the Initializer's.
// Production code MUST depend on this interface rather than a concrete
// client so tests can supply fakes without runtime monkey-patching.
type StorageClient interface {
	GetBucket(ctx context.Context, name string) (*RemoteBucket, error)
	CreateBucket(ctx context.Context, name string, schema Schema) error
	UpdateBucket(ctx context.Context, name string, schema Schema) error
	ReindexObjects(ctx context.Context, name string, count int) (ReindexResult, error)
	FindObjects(ctx context.Context, name string, filter Filter) (*RecordStream, error)
	Batch(ctx context.Context, ops []BatchOp) error
}
