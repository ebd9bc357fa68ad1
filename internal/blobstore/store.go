package blobstore

import "context"

// Store is a small key-value blob contract. Each collection (users, records,
// sessions) lives under one key as a serialized sequence and is rewritten
// wholesale on mutation. A missing key reads as (nil, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
