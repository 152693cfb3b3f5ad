// Package storage abstracts the durable store that completed attempts are
// archived into. Any backend with a write that can fail satisfies it.
package storage

import "io"

type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
