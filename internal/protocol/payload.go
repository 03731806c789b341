package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// URIPayload builds the payload of a file membership request.
func URIPayload(uri string) json.RawMessage {
	msg, _ := sjson.SetBytes([]byte("{}"), "uri", uri)
	return msg
}

// SourcePayload builds an add-uri payload that carries the source text.
func SourcePayload(uri, src string) json.RawMessage {
	msg, _ := sjson.SetBytes(URIPayload(uri), "src", src)
	return msg
}

// PayloadURI returns the "uri" field of a payload, or "".
func PayloadURI(payload json.RawMessage) string {
	return gjson.GetBytes(payload, "uri").String()
}

// HasSource reports whether a payload carries a "src" field.
func HasSource(payload json.RawMessage) bool {
	return gjson.GetBytes(payload, "src").Exists()
}

// WithSource returns a copy of payload with "src" set to src.
func WithSource(payload json.RawMessage, src string) (json.RawMessage, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	out, err := sjson.SetBytes(append([]byte(nil), payload...), "src", src)
	if err != nil {
		return nil, fmt.Errorf("set src: %w", err)
	}
	return out, nil
}
