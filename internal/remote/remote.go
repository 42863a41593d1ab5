// Package remote implements read access to the content-addressed storage API.
//
// The storage model is a single root pointer naming the current global
// snapshot, plus immutable blobs addressed by their content hash. The client
// performs no interpretation of blob contents; decoding index and metadata
// blobs is the caller's concern.
package remote

import "context"

// RootPointer identifies the current global state of the remote store.
// Any content change anywhere changes Hash.
type RootPointer struct {
	Hash       string `json:"hash"`
	Generation int64  `json:"generation"`
	Schema     int64  `json:"schemaVersion"`
}

// Store handles remote content-addressed reads.
type Store interface {
	// GetRootPointer fetches the current root pointer.
	GetRootPointer(ctx context.Context) (RootPointer, error)

	// GetBlob fetches a blob by its content hash.
	GetBlob(ctx context.Context, hash string) ([]byte, error)
}
