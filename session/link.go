package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/chrisnestrud/PlayPalace11/packet"
	"github.com/chrisnestrud/PlayPalace11/transport"
)

// Link is the controller's handle on one running connection.
type Link interface {
	ID() uint64
	Send(p packet.Packet) error
	Stop()
	Wait(timeout time.Duration) bool
	ValidationErrors() int64
}

// OpenRequest describes a connection the controller wants started.
type OpenRequest struct {
	ConnID      uint64
	Credentials *Credentials
	Events      chan<- transport.Event
	Done        <-chan struct{}
}

// Opener starts connections. Open must not block on the network; the
// outcome arrives as events.
type Opener interface {
	Open(ctx context.Context, req OpenRequest) (Link, error)
}

// TrustPreparer runs the certificate trust decision before a connection
// attempt. It returns false when the user declined.
type TrustPreparer interface {
	PrepareTrust(ctx context.Context, serverID, rawURL string) (bool, error)
}

// TransportOpener opens links backed by transport.Transport.
type TransportOpener struct {
	Connector       transport.Connector
	Validator       *packet.Validator
	ProtocolVersion packet.ProtocolVersion
	DebugPackets    bool
	Logger          *slog.Logger
}

var _ Link = (*transport.Transport)(nil)

func (o *TransportOpener) Open(ctx context.Context, req OpenRequest) (Link, error) {
	return transport.Open(ctx, transport.Config{
		ConnID:          req.ConnID,
		ServerID:        req.Credentials.ServerID,
		URL:             req.Credentials.URL,
		Username:        req.Credentials.Username,
		Password:        req.Credentials.Password(),
		Connector:       o.Connector,
		Validator:       o.Validator,
		Events:          req.Events,
		Done:            req.Done,
		ProtocolVersion: o.ProtocolVersion,
		DebugPackets:    o.DebugPackets,
		Logger:          o.Logger,
	}), nil
}
