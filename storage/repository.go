// Package storage provides the persistence abstraction for client-side
// records: identities, server entries and pinned certificates.
//
// Records are opaque byte values addressed by (bucket, recordType,
// recordID). Higher layers own the encoding.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrBucketNotFound is returned when the bucket itself does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)

// BatchTx stages writes against a single bucket. All of them commit or
// none do.
type BatchTx interface {
	Get(recordType, recordID string) ([]byte, error)
	Put(recordType, recordID string, value []byte) error
	Delete(recordType, recordID string) error
}

// Repository is the record store used by the profile package.
type Repository interface {
	Put(bucket, recordType, recordID string, value []byte) error
	Get(bucket, recordType, recordID string) ([]byte, error)
	List(bucket, recordType string) ([]string, error)
	Delete(bucket, recordType, recordID string) error
	Batch(bucket string, fn func(tx BatchTx) error) error
}
