// Package blob is the binary-storage collaborator: it accepts media
// bytes and returns a retrievable URL. The routing engine never looks
// inside the bytes.
package blob

import "context"

// Store persists a blob and yields the URL clients fetch it from.
type Store interface {
	// Put stores data under key and returns its retrievable URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
