// Package blobstore defines the pluggable crate-blob backend named in spec
// §4.2: a keyed put/get/delete surface that the publication
// pipeline and documentation orchestrator use without caring whether the
// bytes live on local disk or in an S3-compatible bucket.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when key has no blob.
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is the backend-agnostic blob surface. Implementations must be safe
// for concurrent use. Keys are opaque byte-string identifiers; the
// application layer derives them from package name, version and kind (crate
// tarball vs. extracted doc bundle member), never from user input directly.
type Store interface {
	// Put writes the full contents of r under key, replacing any existing
	// blob. size is the exact byte length of r's contents and is required
	// by backends (S3) that need it up front to stream the upload.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Get opens key for reading. The caller must Close the returned
	// ReadCloser. Returns ErrNotFound if key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether key has a blob, without opening it.
	Exists(ctx context.Context, key string) (bool, error)
}

// CrateKey returns the blob key for a crate tarball, per spec §4.2's shard
// layout ("the same two/three-letter sharding Cargo's own index uses").
func CrateKey(pkg, version string) string {
	return "crates/" + shard(pkg) + "/" + pkg + "/" + pkg + "-" + version + ".crate"
}

// DocKey returns the blob key for one file of an extracted documentation
// bundle for (pkg, version, target).
func DocKey(pkg, version, target, file string) string {
	return "docs/" + shard(pkg) + "/" + pkg + "/" + version + "/" + target + "/" + file
}

// MetadataKey returns the blob key for a version's publish-time metadata
// JSON document, per spec §4.5's "BlobStore.store (tarball + metadata JSON
// + README)".
func MetadataKey(pkg, version string) string {
	return "crates/" + shard(pkg) + "/" + pkg + "/" + pkg + "-" + version + ".json"
}

// ReadmeKey returns the blob key for a version's extracted README, if any.
func ReadmeKey(pkg, version string) string {
	return "crates/" + shard(pkg) + "/" + pkg + "/" + pkg + "-" + version + ".readme"
}

// shard mirrors Cargo's own sparse-index sharding rule (index §4.3): "1" for
// a 1-character name, "2" for 2, "3/<first>" for 3, and the first two and
// next two characters for everything else ("_" for an empty name).
func shard(name string) string {
	switch len(name) {
	case 0:
		return "_"
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + name[:1]
	default:
		return name[:2] + "/" + name[2:4]
	}
}
