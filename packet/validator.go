package packet

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	oaerrors "github.com/go-openapi/errors"
	"github.com/go-openapi/spec"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

var (
	// ErrMissingType is returned when a packet has no string "type".
	ErrMissingType = errors.New("packet has no type")
	// ErrUnknownType is returned when a type is not part of the direction's universe.
	ErrUnknownType = errors.New("unknown packet type")
)

// SchemaError reports a packet that does not match its type's schema.
type SchemaError struct {
	Direction Direction
	Type      string
	Messages  []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid %s packet %q: %s", e.Direction, e.Type, strings.Join(e.Messages, "; "))
}

//go:embed schemas/*.json
var schemaFS embed.FS

var defaultSchemas = map[Direction]map[string]*spec.Schema{
	Outgoing: mustLoadSchemas("schemas/outgoing.json"),
	Incoming: mustLoadSchemas("schemas/incoming.json"),
}

func mustLoadSchemas(name string) map[string]*spec.Schema {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("packet: reading %s: %v", name, err))
	}
	var raw map[string]*spec.Schema
	if err := json.Unmarshal(data, &raw); err != nil {
		panic(fmt.Sprintf("packet: parsing %s: %v", name, err))
	}
	return raw
}

// Validator checks packets against the embedded schemas. It is stateless
// and safe for concurrent use.
type Validator struct {
	schemas map[Direction]map[string]*spec.Schema
	formats strfmt.Registry
}

// NewValidator returns a Validator over the built-in packet schemas.
func NewValidator() *Validator {
	return &Validator{schemas: defaultSchemas, formats: strfmt.Default}
}

// Types lists the packet types known for a direction, sorted.
func (v *Validator) Types(dir Direction) []string {
	types := make([]string, 0, len(v.schemas[dir]))
	for t := range v.schemas[dir] {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Known reports whether typ belongs to the direction's universe.
func (v *Validator) Known(typ string, dir Direction) bool {
	_, ok := v.schemas[dir][typ]
	return ok
}

// Validate checks p against the schema registered for its type in dir.
func (v *Validator) Validate(p Packet, dir Direction) error {
	typ := p.Type()
	if typ == "" {
		return ErrMissingType
	}
	schema, ok := v.schemas[dir][typ]
	if !ok {
		return fmt.Errorf("%s %q: %w", dir, typ, ErrUnknownType)
	}
	data, err := normalize(p)
	if err != nil {
		return &SchemaError{Direction: dir, Type: typ, Messages: []string{err.Error()}}
	}
	if err := validate.AgainstSchema(schema, data, v.formats); err != nil {
		return &SchemaError{Direction: dir, Type: typ, Messages: flatten(err)}
	}
	return nil
}

// normalize round-trips through JSON so Go-typed values validate the same
// way as values decoded off the wire.
func normalize(p Packet) (any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(err error) []string {
	var composite *oaerrors.CompositeError
	if errors.As(err, &composite) {
		var msgs []string
		for _, e := range composite.Errors {
			msgs = append(msgs, flatten(e)...)
		}
		if len(msgs) > 0 {
			return msgs
		}
	}
	return []string{err.Error()}
}
