package storage

import (
	"fmt"

	"github.com/chrisnestrud/PlayPalace11/internal/util"
)

const (
	envelopeVersion = 1
	schemeAESGCM    = "aes256gcm"
	nonceSize       = 12
)

// Envelope is a sealed secret embedded inside a record, e.g. an identity
// password. It is JSON-serializable so it can sit next to plain fields.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SealRecord encrypts plaintext into an Envelope using key and aad.
func SealRecord(key, plaintext, aad []byte) (*Envelope, error) {
	sealed, err := util.Seal(key, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Ver:        envelopeVersion,
		Scheme:     schemeAESGCM,
		Nonce:      sealed[:nonceSize],
		Ciphertext: sealed[nonceSize:],
	}, nil
}

// OpenRecord decrypts an Envelope produced by SealRecord.
func OpenRecord(key []byte, env *Envelope, aad []byte) ([]byte, error) {
	if env == nil {
		return nil, fmt.Errorf("nil envelope")
	}
	if env.Ver != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Ver)
	}
	if env.Scheme != schemeAESGCM {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", env.Scheme)
	}
	full := make([]byte, 0, len(env.Nonce)+len(env.Ciphertext))
	full = append(full, env.Nonce...)
	full = append(full, env.Ciphertext...)
	return util.Open(key, full, aad)
}
