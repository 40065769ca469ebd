package repository

import (
	"context"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	apperrors "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/errors"
	identityDomain "github.com/TortoiseWolfe/SpokeToWork-sub001/internal/identity/domain"
)

// BlobKeyStore keeps the sealed identity private key as one object in a bucket.
type BlobKeyStore struct {
	bucket *blob.Bucket
	key    string
}

// Read returns the sealed key or ErrIdentityKeyMissing.
func (s *BlobKeyStore) Read(ctx context.Context) ([]byte, error) {
	sealed, err := s.bucket.ReadAll(ctx, s.key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, identityDomain.ErrIdentityKeyMissing
		}
		return nil, apperrors.Wrap(err, "failed to read identity key")
	}
	return sealed, nil
}

// Write stores the sealed key. Unless overwrite is set an existing key is kept
// and ErrIdentityKeyExists returned.
func (s *BlobKeyStore) Write(ctx context.Context, sealed []byte, overwrite bool) error {
	if !overwrite {
		exists, err := s.bucket.Exists(ctx, s.key)
		if err != nil {
			return apperrors.Wrap(err, "failed to check identity key")
		}
		if exists {
			return identityDomain.ErrIdentityKeyExists
		}
	}

	opts := &blob.WriterOptions{ContentType: "application/octet-stream"}
	if err := s.bucket.WriteAll(ctx, s.key, sealed, opts); err != nil {
		return apperrors.Wrap(err, "failed to write identity key")
	}
	return nil
}

// Delete removes the sealed key if present.
func (s *BlobKeyStore) Delete(ctx context.Context) error {
	if err := s.bucket.Delete(ctx, s.key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return apperrors.Wrap(err, "failed to delete identity key")
	}
	return nil
}

// Close releases the bucket.
func (s *BlobKeyStore) Close() error {
	return s.bucket.Close()
}

// NewBlobKeyStore stores the identity key under key in bucket and takes ownership of bucket.
func NewBlobKeyStore(bucket *blob.Bucket, key string) *BlobKeyStore {
	return &BlobKeyStore{bucket: bucket, key: key}
}
