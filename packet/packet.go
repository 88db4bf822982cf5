// Package packet defines the JSON packets exchanged with a PlayPalace
// server and validates them against per-type schemas.
package packet

import (
	"encoding/json"
	"fmt"
)

// Packet is a decoded wire message. Every packet carries a string "type".
type Packet map[string]any

// Type returns the packet's type discriminator, or "" when absent or not a string.
func (p Packet) Type() string {
	t, _ := p["type"].(string)
	return t
}

// String returns the value at key when it is a string.
func (p Packet) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Bool returns the value at key as a bool; missing or non-bool values are false.
func (p Packet) Bool(key string) bool {
	v, _ := p[key].(bool)
	return v
}

// Number returns the value at key as a float64 when it is numeric.
func (p Packet) Number(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Direction selects which schema universe a packet is validated against.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ProtocolVersion is the client protocol version sent with authorize.
type ProtocolVersion struct {
	Major int `json:"major" yaml:"major"`
	Minor int `json:"minor" yaml:"minor"`
	Patch int `json:"patch" yaml:"patch"`
}

// DefaultProtocolVersion is the protocol version this client speaks.
var DefaultProtocolVersion = ProtocolVersion{Major: 11, Minor: 0, Patch: 0}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Map renders the version in its wire form.
func (v ProtocolVersion) Map() map[string]any {
	return map[string]any{"major": v.Major, "minor": v.Minor, "patch": v.Patch}
}

// Authorize builds the authorize packet for the handshake.
func Authorize(username, password string, version ProtocolVersion) Packet {
	return Packet{
		"type":             "authorize",
		"username":         username,
		"password":         password,
		"protocol_version": version.Map(),
	}
}

// Decode parses a single text frame into a Packet.
func Decode(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding packet: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("decoding packet: %w", ErrMissingType)
	}
	return p, nil
}

// Encode renders a Packet as a JSON text frame.
func Encode(p Packet) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding packet: %w", err)
	}
	return data, nil
}
