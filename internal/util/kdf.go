package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey expands master into a KeySize key bound to info, so one
// on-disk master key can protect several record kinds independently.
func DeriveKey(master, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, master, salt, info)
	k := make([]byte, KeySize)
	if _, err := io.ReadFull(r, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}
