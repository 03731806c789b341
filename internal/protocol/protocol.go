// Package protocol encodes requests to and decodes replies from the compiler.
//
// Requests are JSON objects carrying the correlation id, the request tag and
// the kind-specific fields of the payload at the top level:
//
//	{"id": "3", "request": "lsp/hover", "uri": "file:///a.flix", "position": {...}}
//
// Replies carry the same id, a status and an optional result:
//
//	{"id": "3", "status": "success", "result": {...}}
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Iron-Ham/flixbridge/internal/errors"
)

// Status is the outcome reported by the compiler.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Response is a decoded reply.
type Response struct {
	ID     string
	Status Status
	Result json.RawMessage // raw JSON, empty when absent
}

// Success reports whether the compiler accepted the request.
func (r Response) Success() bool {
	return r.Status == StatusSuccess
}

// EncodeRequest builds the wire message for a job. payload must be empty or a
// JSON object; its fields are copied next to "id" and "request", which
// override any fields of the same name.
func EncodeRequest(id, kind string, payload json.RawMessage) ([]byte, error) {
	msg := []byte("{}")
	if len(strings.TrimSpace(string(payload))) > 0 {
		if !gjson.ValidBytes(payload) || !gjson.ParseBytes(payload).IsObject() {
			return nil, fmt.Errorf("%w: request %s payload is not a JSON object", errors.ErrInvalidPayload, id)
		}
		msg = append([]byte(nil), payload...)
	}

	msg, err := sjson.SetBytes(msg, "id", id)
	if err != nil {
		return nil, fmt.Errorf("set id: %w", err)
	}
	msg, err = sjson.SetBytes(msg, "request", kind)
	if err != nil {
		return nil, fmt.Errorf("set request: %w", err)
	}
	return msg, nil
}

// DecodeResponse parses a reply. Numeric ids are normalized to their decimal
// string. Any structural problem yields an error wrapping errors.ErrDecode.
func DecodeResponse(data []byte) (Response, error) {
	if !gjson.ValidBytes(data) {
		return Response{}, fmt.Errorf("%w: invalid JSON", errors.ErrDecode)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Response{}, fmt.Errorf("%w: message is not an object", errors.ErrDecode)
	}

	id := root.Get("id")
	switch id.Type {
	case gjson.String, gjson.Number:
	default:
		return Response{}, fmt.Errorf("%w: missing or invalid id", errors.ErrDecode)
	}
	if id.String() == "" {
		return Response{}, fmt.Errorf("%w: empty id", errors.ErrDecode)
	}

	status := Status(root.Get("status").String())
	if status != StatusSuccess && status != StatusFailure {
		return Response{}, fmt.Errorf("%w: unknown status %q for id %s", errors.ErrDecode, status, id.String())
	}

	resp := Response{ID: id.String(), Status: status}
	if result := root.Get("result"); result.Exists() {
		resp.Result = json.RawMessage(result.Raw)
	}
	return resp, nil
}
