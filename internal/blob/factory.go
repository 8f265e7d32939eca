package blob

import (
	"context"
	"fmt"
	infrafs "labcore/internal/infra/blob/fs"
	memorystore "labcore/internal/infra/blob/memory"
	infraS3 "labcore/internal/infra/blob/s3"
)

// S3Config re-exports the S3 driver configuration.
type S3Config = infraS3.Config

// Config selects and configures a blob driver.
type Config struct {
	Driver    Driver   `yaml:"driver" validate:"omitempty,oneof=fs s3 memory"`
	FSRoot    string   `yaml:"fs_root"`
	PublicURL string   `yaml:"public_url" validate:"omitempty,url"`
	S3        S3Config `yaml:"s3"`
}

// Open constructs the store named by cfg.Driver. An empty driver selects the
// filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot, cfg.PublicURL)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem returns a store rooted at root. urlBase prefixes presigned URLs.
func NewFilesystem(root, urlBase string) (Store, error) {
	return infrafs.New(root, urlBase)
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the fake S3 transport for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
