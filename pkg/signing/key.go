package signing

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ShivamLahoty/MemHawk/pkg/fsutil"
)

const KeySize = 32

// Key is the HMAC secret. It is read-only once created and safe to share
// between goroutines.
type Key struct {
	secret []byte
}

// NewKey generates a random key.
func NewKey() (Key, error) {
	b := make([]byte, KeySize)
	if _, err := rand.Read(b); err != nil {
		return Key{}, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return Key{secret: b}, nil
}

func KeyFromBytes(b []byte) (Key, error) {
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("signing key must be %d bytes, got %d", KeySize, len(b))
	}
	return Key{secret: append([]byte(nil), b...)}, nil
}

func (k Key) valid() bool { return len(k.secret) == KeySize }

// Fingerprint identifies a key without revealing it.
func (k Key) Fingerprint() string {
	if !k.valid() {
		return ""
	}
	return hex.EncodeToString(hmacSum(k.secret, []byte("fingerprint"))[:8])
}

// LoadOrCreateKey reads a hex key from path, creating it with 0600
// permissions when missing. created reports whether a new key was written.
func LoadOrCreateKey(path string) (key Key, created bool, err error) {
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return Key{}, false, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		key, err := KeyFromBytes(raw)
		return key, false, err
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Key{}, false, err
	}
	key, err = RotateKey(path)
	return key, err == nil, err
}

// RotateKey replaces the key at path with a new one. Documents signed with
// the old key no longer verify.
func RotateKey(path string) (Key, error) {
	key, err := NewKey()
	if err != nil {
		return Key{}, err
	}
	if err := fsutil.WriteFileAtomic(path, []byte(hex.EncodeToString(key.secret)+"\n"), 0600); err != nil {
		return Key{}, fmt.Errorf("failed to write signing key: %w", err)
	}
	return key, nil
}
