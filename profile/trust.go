package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chrisnestrud/PlayPalace11/storage"
	"github.com/chrisnestrud/PlayPalace11/tlstrust"
)

// TrustStore persists pinned certificates alongside the server book.
type TrustStore struct {
	repo   storage.Repository
	logger *slog.Logger
}

var _ tlstrust.TrustStore = (*TrustStore)(nil)

// NewTrustStore returns a TrustStore over repo.
func NewTrustStore(repo storage.Repository) *TrustStore {
	return &TrustStore{repo: repo, logger: slog.New(slog.DiscardHandler)}
}

func (t *TrustStore) Get(serverID string) (tlstrust.TrustRecord, bool, error) {
	data, err := t.repo.Get(bucket, typeTrust, serverID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrBucketNotFound) {
		return tlstrust.TrustRecord{}, false, nil
	}
	if err != nil {
		return tlstrust.TrustRecord{}, false, err
	}
	var rec tlstrust.TrustRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return tlstrust.TrustRecord{}, false, fmt.Errorf("decoding trust record: %w", err)
	}
	return rec, true, nil
}

func (t *TrustStore) Set(serverID string, rec tlstrust.TrustRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding trust record: %w", err)
	}
	if err := t.repo.Put(bucket, typeTrust, serverID, data); err != nil {
		return err
	}
	t.logger.Info("trust record stored", "server_id", serverID, "fingerprint", rec.FingerprintHex)
	return nil
}

// Clear removes a server's pin. Clearing a server with no pin is not an error.
func (t *TrustStore) Clear(serverID string) error {
	err := t.repo.Delete(bucket, typeTrust, serverID)
	if err == nil || errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrBucketNotFound) {
		return nil
	}
	return err
}
