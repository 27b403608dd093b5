package ports

import "context"

// Store is a bucketed key-value store. Each Put replaces one key atomically
// and the last write wins; there is no compare-and-swap, so two scans of the
// same URL that settle close together may overwrite each other.
type Store interface {
	Get(ctx context.Context, bucket, key string) (value []byte, found bool, err error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	List(ctx context.Context, bucket string) (map[string][]byte, error)
	Close() error
}

const (
	BucketVerdicts   = "verdictCache"
	BucketReasons    = "reasonsCache"
	BucketSettings   = "settings"
	BucketBlockRules = "blockRules"
)
