package blob

import (
	"context"

	infraS3 "datatree/internal/infra/blob/s3"
)

// S3Config configures the S3 driver.
type S3Config = infraS3.Config

// NewS3 returns a Store on an S3-compatible bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 Store backed by an in-memory fake bucket.
func NewMockS3ForTests(prefix string) Store { return infraS3.NewMockForTests(prefix) }
