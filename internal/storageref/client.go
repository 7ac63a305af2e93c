// Package storageref implements storeapi.StorageClient against an embedded
// go.etcd.io/bbolt database: a reference remote for local development, demos,
// and integration tests that want real etag/page semantics instead of a
// hand-rolled fake.
//
// It is not a production remote: its filter interpreter only understands the
// two data_version selection expressions the migration controller ever
// generates, and it has no physical secondary indexes — reindexing is
// therefore always a no-op.
package storageref

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	bolt "go.etcd.io/bbolt"

	"github.com/sevenDatabase/bucketinit/internal/storeapi"
)

const metaBucket = "__bucketinit_meta__"

// Client is a bbolt-backed storeapi.StorageClient. One bbolt top-level
// bucket holds records per configured model bucket; metaBucket holds one
// JSON-encoded schemaRecord per bucket name.
type Client struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at path and returns a
// ready-to-use Client.
func Open(path string) (*Client, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("open reference store %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init reference store schema: %w", err)
	}
	return &Client{db: db}, nil
}

// Close releases the underlying bbolt database.
func (c *Client) Close() error { return c.db.Close() }

type schemaRecord struct {
	Index   map[string]storeapi.IndexField `json:"index"`
	Options storeapi.SchemaOptions         `json:"options"`
	Pre     []string                       `json:"pre,omitempty"`
	Post    []string                       `json:"post,omitempty"`
	RVer    int                            `json:"rver"`
}

type recordEnvelope struct {
	Value map[string]any `json:"value"`
	ETag  string         `json:"etag"`
}

var _ storeapi.StorageClient = (*Client)(nil)

// GetBucket returns the current schema state, or a BucketNotFoundError if
// name has never been created.
func (c *Client) GetBucket(_ context.Context, name string) (*storeapi.RemoteBucket, error) {
	var sr *schemaRecord
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(metaBucket)).Get([]byte(name))
		if raw == nil {
			return nil
		}
		sr = &schemaRecord{}
		return json.Unmarshal(raw, sr)
	})
	if err != nil {
		return nil, fmt.Errorf("get bucket %q: %w", name, err)
	}
	if sr == nil {
		return nil, storeapi.NewKindError(storeapi.KindBucketNotFound, fmt.Sprintf("bucket %q not found", name), nil)
	}
	return &storeapi.RemoteBucket{
		Name:          name,
		Index:         sr.Index,
		Options:       sr.Options,
		Pre:           sr.Pre,
		Post:          sr.Post,
		ReindexActive: map[string]any{},
		RVer:          sr.RVer,
	}, nil
}

// CreateBucket creates the record bucket and its schema entry. It is a no-op
// if the bucket already exists, matching the remote's create-if-absent
// contract at the storage-client layer (the reconciler itself only calls
// this after confirming absence).
func (c *Client) CreateBucket(_ context.Context, name string, schema storeapi.Schema) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(metaBucket)).Get([]byte(name)) != nil {
			return nil
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return err
		}
		return putSchema(tx, name, schema, 0)
	})
}

// UpdateBucket overwrites the schema entry for an existing bucket, bumping
// its observed row version tag. Stored records are left untouched: this
// reference store has no physical indexes to rebuild.
func (c *Client) UpdateBucket(_ context.Context, name string, schema storeapi.Schema) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return storeapi.NewKindError(storeapi.KindBucketNotFound, fmt.Sprintf("bucket %q not found", name), nil)
		}
		existing, err := getSchema(tx, name)
		if err != nil {
			return err
		}
		return putSchema(tx, name, schema, existing.RVer+1)
	})
}

func getSchema(tx *bolt.Tx, name string) (*schemaRecord, error) {
	raw := tx.Bucket([]byte(metaBucket)).Get([]byte(name))
	if raw == nil {
		return &schemaRecord{}, nil
	}
	sr := &schemaRecord{}
	if err := json.Unmarshal(raw, sr); err != nil {
		return nil, err
	}
	return sr, nil
}

func putSchema(tx *bolt.Tx, name string, schema storeapi.Schema, rver int) error {
	sr := schemaRecord{Index: schema.Index, Options: schema.Options, Pre: schema.Pre, Post: schema.Post, RVer: rver}
	raw, err := json.Marshal(sr)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(metaBucket)).Put([]byte(name), raw)
}

// ReindexObjects always reports zero records processed: this reference store
// keeps no physical secondary indexes to rebuild, so there is never
// background reindex work outstanding.
func (c *Client) ReindexObjects(_ context.Context, _ string, _ int) (storeapi.ReindexResult, error) {
	return storeapi.ReindexResult{Processed: 0}, nil
}

// dataVersionEquals matches the migration controller's V>1 selection filter
// and extracts the target version.
var dataVersionEquals = regexp.MustCompile(`^\(\|\(!\(data_version=\*\)\)\(data_version=(\d+)\)\)$`)

// FindObjects evaluates one of the two data_version filter expressions the
// migration controller ever builds: "no data_version at all" or "absent or
// equal to N". Any other expression is rejected as an InvalidQueryError so a
// caller relying on richer query semantics fails loudly instead of silently
// matching nothing.
func (c *Client) FindObjects(_ context.Context, name string, filter storeapi.Filter) (*storeapi.RecordStream, error) {
	wantVersion := -1
	if m := dataVersionEquals.FindStringSubmatch(filter.Expr); m != nil {
		v, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, storeapi.NewKindError(storeapi.KindInvalidQuery, filter.Expr, err)
		}
		wantVersion = v
	} else if filter.Expr != "(!(data_version=*))" {
		return nil, storeapi.NewKindError(storeapi.KindInvalidQuery, fmt.Sprintf("unsupported filter expression %q", filter.Expr), nil)
	}

	var matched []storeapi.Record
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(name))
		if b == nil {
			return storeapi.NewKindError(storeapi.KindBucketNotFound, fmt.Sprintf("bucket %q not found", name), nil)
		}
		return b.ForEach(func(k, v []byte) error {
			var env recordEnvelope
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			rec := storeapi.Record{Key: string(k), Value: env.Value, ETag: env.ETag}
			dv, present := rec.DataVersion()
			switch {
			case wantVersion == -1 && !present:
				matched = append(matched, rec)
			case wantVersion != -1 && (!present || dv == wantVersion):
				matched = append(matched, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })

	records := make(chan storeapi.Record, len(matched))
	errCh := make(chan error, 1)
	for _, r := range matched {
		records <- r
	}
	close(records)
	close(errCh)
	return storeapi.NewRecordStream(records, errCh), nil
}

// Batch applies every op in one bbolt transaction, assigning each written
// record a fresh etag from the bucket's sequence counter. The caller-supplied
// ETag is accepted but not enforced as an optimistic-concurrency precondition
// — this reference store does not model concurrent writers.
func (c *Client) Batch(_ context.Context, ops []storeapi.BatchOp) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			b := tx.Bucket([]byte(op.Bucket))
			if b == nil {
				return storeapi.NewKindError(storeapi.KindBucketNotFound, fmt.Sprintf("bucket %q not found", op.Bucket), nil)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			env := recordEnvelope{Value: op.Value, ETag: strconv.FormatUint(seq, 10)}
			raw, err := json.Marshal(env)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(op.Key), raw); err != nil {
				return err
			}
		}
		return nil
	})
}
