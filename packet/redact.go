package packet

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	redacted      = "***"
	maxLogLength  = 400
	truncatedMark = "..."
)

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"auth":          {},
	"authorization": {},
}

// Redact renders p for debug logs with secret fields masked and the output
// capped at 400 bytes.
func Redact(p Packet) string {
	data, err := json.Marshal(redactValue(map[string]any(p)))
	if err != nil {
		data = []byte(fmt.Sprintf("%v", redactValue(map[string]any(p))))
	}
	s := string(data)
	if len(s) > maxLogLength {
		s = s[:maxLogLength-len(truncatedMark)] + truncatedMark
	}
	return s
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				out[k] = redacted
				continue
			}
			out[k] = redactValue(item)
		}
		return out
	case Packet:
		return redactValue(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
