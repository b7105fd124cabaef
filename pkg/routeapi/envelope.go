package routeapi

import (
	"bytes"
	"encoding/json"
	"errors"
)

// EnvelopeKind tags which variant of the response envelope was received.
type EnvelopeKind int

const (
	EnvelopeUnknown EnvelopeKind = iota
	// EnvelopeRouteInfo carries the snapped route fields.
	EnvelopeRouteInfo
	// EnvelopeInfo carries a human-readable rejection (no route found, low confidence).
	EnvelopeInfo
)

var errUnknownEnvelope = errors.New("response has neither Route_Info nor Info")

// Envelope is the decoded body of a 200 response.
type Envelope struct {
	Kind      EnvelopeKind
	RequestID string
	RouteInfo map[string]string
	Info      string
}

type rawEnvelope struct {
	RouteInfo json.RawMessage `json:"Route_Info"`
	Info      json.RawMessage `json:"Info"`
	RequestID json.RawMessage `json:"Request_Id"`
}

// UnmarshalJSON selects the variant by the keys present. Route_Info wins when
// both are present.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw rawEnvelope
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	out := Envelope{RequestID: scalarString(raw.RequestID)}
	switch {
	case present(raw.RouteInfo):
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw.RouteInfo, &fields); err != nil {
			return err
		}
		out.Kind = EnvelopeRouteInfo
		out.RouteInfo = make(map[string]string, len(fields))
		for k, v := range fields {
			out.RouteInfo[k] = scalarString(v)
		}
	case present(raw.Info):
		out.Kind = EnvelopeInfo
		out.Info = scalarString(raw.Info)
	default:
		return errUnknownEnvelope
	}
	*e = out
	return nil
}

// DecodeEnvelope parses a response body.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// scalarString renders a JSON value as a CSV-friendly string: strings are
// unquoted, null is empty, everything else keeps its compact JSON text.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
