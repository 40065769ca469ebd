// Package domain defines the key material handled by the group key layer.
//
// A GroupKey is the single AES-256 secret shared by every member of a
// conversation at one key version. It lives unwrapped only in memory; at rest
// it exists solely as per-member wrapped copies.
package domain

import (
	"context"
)

// GroupKey is a symmetric group key. The zero value holds no key material.
type GroupKey struct {
	key       []byte
	algorithm Algorithm
}

// NewGroupKey builds a GroupKey from raw bytes, taking a private copy.
// Returns ErrInvalidKeySize unless raw is exactly GroupKeySize bytes.
func NewGroupKey(raw []byte) (*GroupKey, error) {
	if len(raw) != GroupKeySize {
		return nil, ErrInvalidKeySize
	}

	key := make([]byte, GroupKeySize)
	copy(key, raw)

	return &GroupKey{key: key, algorithm: AESGCM}, nil
}

// Bytes returns a copy of the raw key material.
func (k *GroupKey) Bytes() []byte {
	if k == nil || k.key == nil {
		return nil
	}
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

// Algorithm returns the message cipher this key is meant for.
func (k *GroupKey) Algorithm() Algorithm {
	return k.algorithm
}

// Equal reports whether both keys hold the same bytes.
func (k *GroupKey) Equal(other *GroupKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	if len(k.key) != len(other.key) {
		return false
	}
	var diff byte
	for i := range k.key {
		diff |= k.key[i] ^ other.key[i]
	}
	return diff == 0
}

// Destroy zeroes the key material. The key is unusable afterwards.
func (k *GroupKey) Destroy() {
	if k == nil {
		return
	}
	Zero(k.key)
	k.key = nil
}

// String never prints key material.
func (k *GroupKey) String() string {
	return "GroupKey(" + string(k.algorithm) + ", redacted)"
}

// KMSKeeper seals and opens small secrets with an external key management service.
// *secrets.Keeper from gocloud.dev satisfies it.
type KMSKeeper interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
	Close() error
}

// Zero overwrites a byte slice with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
