package domain

// Algorithm identifies the AEAD used to wrap a group key for one member.
//
// Browser clients only speak AES-GCM, so AESGCM is the default for every wrap.
// ChaCha20 is accepted for wraps produced and consumed by server-side tooling.
type Algorithm string

const (
	// AESGCM is AES-256-GCM with a 12-byte IV and a 16-byte tag.
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 is ChaCha20-Poly1305 with a 12-byte nonce and a 16-byte tag.
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// GroupKeySize is the length in bytes of a raw group key (AES-256).
	GroupKeySize = 32

	// NonceSize is the IV length prepended to every wrapped key.
	NonceSize = 12

	// TagSize is the authentication tag length appended by the AEAD.
	TagSize = 16

	// MinWrappedKeySize is the smallest decoded wrapped key: IV, key bytes and tag.
	MinWrappedKeySize = NonceSize + GroupKeySize + TagSize
)

// ParseAlgorithm converts a configuration string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AESGCM:
		return AESGCM, nil
	case ChaCha20:
		return ChaCha20, nil
	default:
		return "", ErrUnsupportedAlgorithm
	}
}
