package session

import (
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"

	"github.com/chrisnestrud/PlayPalace11/internal/util"
)

// Credentials identify one login to one server. The password is kept in a
// memguard Enclave (encrypted in memory) and is never printed.
type Credentials struct {
	IdentityID string
	ServerID   string
	URL        string
	Username   string

	password  *memguard.Enclave
	destroyed bool
}

// NewCredentials builds Credentials. The password slice is wiped.
func NewCredentials(identityID, serverID, url, username string, password []byte) *Credentials {
	c := &Credentials{
		IdentityID: identityID,
		ServerID:   serverID,
		URL:        url,
		Username:   util.NormalizeName(username),
	}
	if len(password) > 0 {
		c.password = memguard.NewEnclave(password)
	}
	util.WipeBytes(password)
	return c
}

// Password returns the enclave holding the password, or nil.
func (c *Credentials) Password() *memguard.Enclave {
	if c == nil || c.destroyed {
		return nil
	}
	return c.password
}

func (c *Credentials) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s@%s (%s)", c.Username, c.ServerID, c.URL)
}

// LogValue implements slog.LogValuer without the password.
func (c *Credentials) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("identity_id", c.IdentityID),
		slog.String("server_id", c.ServerID),
		slog.String("url", c.URL),
		slog.String("username", c.Username),
	)
}

// Destroy drops the password enclave.
func (c *Credentials) Destroy() {
	if c == nil || c.destroyed {
		return
	}
	c.password = nil
	c.destroyed = true
}
