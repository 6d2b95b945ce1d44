// Package archive keeps snapshots of transport orders removed from the pool.
package archive

import (
	"context"
	"errors"
	"fmt"

	"fleetkernel/config"
)

// ErrNotFound is returned by Get for a key that was never archived.
var ErrNotFound = errors.New("archive: not found")

// Store persists archived snapshots under a key.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Driver() string
}

// Open selects a Store from the archive config. An empty driver disables
// archiving and returns a nil Store.
func Open(ctx context.Context, cfg *config.ArchiveConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "fs":
		fs, err := NewFilesystem(cfg.Path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		s, err := NewS3(ctx, S3Config{
			Bucket:   cfg.S3.Bucket,
			Prefix:   cfg.S3.Prefix,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// OrderKey is the key an order snapshot is archived under.
func OrderKey(name string) string {
	return "orders/" + name + ".json"
}
