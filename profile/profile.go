// Package profile stores the user's server book, login identities,
// per-server client options and pinned certificates in a
// storage.Repository. Identity passwords are sealed with a key derived
// from the profile master key.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/awnumar/memguard"

	"github.com/chrisnestrud/PlayPalace11/internal/clock"
	"github.com/chrisnestrud/PlayPalace11/internal/util"
	"github.com/chrisnestrud/PlayPalace11/internal/uuid"
	"github.com/chrisnestrud/PlayPalace11/session"
	"github.com/chrisnestrud/PlayPalace11/storage"
)

const (
	bucket = "profile"

	typeServer   = "SERVER"
	typeIdentity = "IDENTITY"
	typeOptions  = "OPTIONS"
	typeTrust    = "TRUST"

	passwordKeyInfo = "playpalace/identity-password/v1"
)

var (
	// ErrInvalidServerURL is returned for server URLs that are not ws:// or wss://.
	ErrInvalidServerURL = errors.New("server url must be ws:// or wss://")
	// ErrEmptyName is returned when a required name is blank.
	ErrEmptyName = errors.New("name is empty")
)

// Server is an entry in the server book.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is a login for one server. The password is only available
// through Credentials.
type Identity struct {
	ID        string    `json:"id"`
	ServerID  string    `json:"server_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type identityRecord struct {
	Identity
	Password *storage.Envelope `json:"password,omitempty"`
}

// Store is the profile database.
type Store struct {
	repo        storage.Repository
	passwordKey *memguard.Enclave
	clock       clock.Clock
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for record timestamps.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) { s.clock = clk }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore opens a profile over repo. masterKey must be util.KeySize
// bytes; it is wiped after the password key is derived from it.
func NewStore(repo storage.Repository, masterKey []byte, opts ...Option) (*Store, error) {
	if len(masterKey) != util.KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", util.KeySize, len(masterKey))
	}
	key, err := util.DeriveKey(masterKey, nil, []byte(passwordKeyInfo))
	util.WipeBytes(masterKey)
	if err != nil {
		return nil, fmt.Errorf("deriving password key: %w", err)
	}
	s := &Store{
		repo:        repo,
		passwordKey: memguard.NewEnclave(key),
		clock:       clock.Real(),
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Trust returns the pinned-certificate store backed by this profile.
func (s *Store) Trust() *TrustStore {
	return &TrustStore{repo: s.repo, logger: s.logger}
}

// AddServer records a server under a new id.
func (s *Store) AddServer(name, rawURL string) (Server, error) {
	name = util.NormalizeName(name)
	if name == "" {
		return Server{}, ErrEmptyName
	}
	if err := checkServerURL(rawURL); err != nil {
		return Server{}, err
	}
	srv := Server{ID: uuid.New(), Name: name, URL: rawURL, CreatedAt: s.clock.Now().UTC()}
	if err := s.putJSON(typeServer, srv.ID, srv); err != nil {
		return Server{}, err
	}
	s.logger.Info("server added", "server_id", srv.ID, "url", srv.URL)
	return srv, nil
}

// Server returns one server by id.
func (s *Store) Server(id string) (Server, error) {
	var srv Server
	err := s.getJSON(typeServer, id, &srv)
	return srv, err
}

// Servers lists the server book sorted by name.
func (s *Store) Servers() ([]Server, error) {
	servers, err := listJSON[Server](s, typeServer)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(servers, func(a, b Server) int { return strings.Compare(a.Name, b.Name) })
	return servers, nil
}

// RemoveServer deletes a server together with its identities, client
// options and pinned certificate.
func (s *Store) RemoveServer(id string) error {
	identities, err := s.Identities(id)
	if err != nil {
		return err
	}
	err = s.repo.Batch(bucket, func(tx storage.BatchTx) error {
		if err := tx.Delete(typeServer, id); err != nil {
			return err
		}
		for _, ident := range identities {
			if err := tx.Delete(typeIdentity, ident.ID); err != nil {
				return err
			}
		}
		for _, recordType := range []string{typeOptions, typeTrust} {
			if err := tx.Delete(recordType, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("removing server %s: %w", id, err)
	}
	s.logger.Info("server removed", "server_id", id, "identities", len(identities))
	return nil
}

// AddIdentity records a login for serverID. The password slice is wiped.
func (s *Store) AddIdentity(serverID, username string, password []byte) (Identity, error) {
	defer util.WipeBytes(password)
	username = util.NormalizeName(username)
	if username == "" {
		return Identity{}, ErrEmptyName
	}
	if _, err := s.Server(serverID); err != nil {
		return Identity{}, err
	}
	rec := identityRecord{Identity: Identity{
		ID:        uuid.New(),
		ServerID:  serverID,
		Username:  username,
		CreatedAt: s.clock.Now().UTC(),
	}}
	if len(password) > 0 {
		env, err := s.sealPassword(rec.ID, password)
		if err != nil {
			return Identity{}, err
		}
		rec.Password = env
	}
	if err := s.putJSON(typeIdentity, rec.ID, rec); err != nil {
		return Identity{}, err
	}
	s.logger.Info("identity added", "identity_id", rec.ID, "server_id", serverID)
	return rec.Identity, nil
}

// Identity returns one identity by id.
func (s *Store) Identity(id string) (Identity, error) {
	var rec identityRecord
	if err := s.getJSON(typeIdentity, id, &rec); err != nil {
		return Identity{}, err
	}
	return rec.Identity, nil
}

// Identities lists identities, restricted to serverID when it is not empty.
func (s *Store) Identities(serverID string) ([]Identity, error) {
	recs, err := listJSON[identityRecord](s, typeIdentity)
	if err != nil {
		return nil, err
	}
	var out []Identity
	for _, rec := range recs {
		if serverID == "" || rec.ServerID == serverID {
			out = append(out, rec.Identity)
		}
	}
	slices.SortFunc(out, func(a, b Identity) int { return strings.Compare(a.Username, b.Username) })
	return out, nil
}

// RemoveIdentity deletes an identity.
func (s *Store) RemoveIdentity(id string) error {
	if err := s.repo.Delete(bucket, typeIdentity, id); err != nil {
		return fmt.Errorf("removing identity %s: %w", id, err)
	}
	return nil
}

// Credentials opens an identity's sealed password and returns session
// credentials for its server.
func (s *Store) Credentials(identityID string) (*session.Credentials, error) {
	var rec identityRecord
	if err := s.getJSON(typeIdentity, identityID, &rec); err != nil {
		return nil, err
	}
	srv, err := s.Server(rec.ServerID)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", identityID, err)
	}
	var password []byte
	if rec.Password != nil {
		password, err = s.openPassword(rec.ID, rec.Password)
		if err != nil {
			return nil, err
		}
	}
	return session.NewCredentials(rec.ID, srv.ID, srv.URL, rec.Username, password), nil
}

func (s *Store) sealPassword(identityID string, password []byte) (*storage.Envelope, error) {
	key, err := s.passwordKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening password key: %w", err)
	}
	defer key.Destroy()
	env, err := storage.SealRecord(key.Bytes(), password, []byte(identityID))
	if err != nil {
		return nil, fmt.Errorf("sealing password: %w", err)
	}
	return env, nil
}

func (s *Store) openPassword(identityID string, env *storage.Envelope) ([]byte, error) {
	key, err := s.passwordKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening password key: %w", err)
	}
	defer key.Destroy()
	password, err := storage.OpenRecord(key.Bytes(), env, []byte(identityID))
	if err != nil {
		return nil, fmt.Errorf("opening sealed password: %w", err)
	}
	return password, nil
}

func (s *Store) putJSON(recordType, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", recordType, err)
	}
	return s.repo.Put(bucket, recordType, id, data)
}

// getJSON maps a missing bucket to storage.ErrNotFound.
func (s *Store) getJSON(recordType, id string, v any) error {
	data, err := s.repo.Get(bucket, recordType, id)
	if errors.Is(err, storage.ErrBucketNotFound) {
		return fmt.Errorf("%s/%s: %w", recordType, id, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s %s: %w", recordType, id, err)
	}
	return nil
}

func listJSON[T any](s *Store, recordType string) ([]T, error) {
	ids, err := s.repo.List(bucket, recordType)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		var v T
		if err := s.getJSON(recordType, id, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func checkServerURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidServerURL, err)
	}
	if (u.Scheme != "ws" && u.Scheme != "wss") || u.Hostname() == "" {
		return ErrInvalidServerURL
	}
	return nil
}
