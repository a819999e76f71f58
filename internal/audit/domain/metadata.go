package domain

import "encoding/json"

// Metadata is the tagged union of event payloads. Known event types carry a
// typed payload; everything else falls back to a generic map. All variants
// marshal to a single JSON column.
type Metadata interface {
	// Kind identifies the payload variant for unmarshaling.
	Kind() string
}

// RateLimitMeta is attached to rate_limit_exceeded events.
type RateLimitMeta struct {
	Category  string `json:"category"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reset     string `json:"reset"`
}

// Kind implements Metadata.
func (RateLimitMeta) Kind() string { return "rate_limit" }

// SecurityViolationMeta is attached to security_violation events.
type SecurityViolationMeta struct {
	Check    string   `json:"check"`
	Origin   string   `json:"origin,omitempty"`
	Patterns []string `json:"patterns,omitempty"`
}

// Kind implements Metadata.
func (SecurityViolationMeta) Kind() string { return "security_violation" }

// RequestMeta is attached to api_request/api_response/api_error events.
type RequestMeta struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Kind implements Metadata.
func (RequestMeta) Kind() string { return "request" }

// GenericMeta is the free-form fallback for callers without a typed payload.
type GenericMeta map[string]any

// Kind implements Metadata.
func (GenericMeta) Kind() string { return "generic" }

// metadataEnvelope is the stored JSON shape: the kind tag plus the payload.
type metadataEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalMetadata encodes a Metadata variant for storage. Nil metadata
// encodes to nil (database NULL).
func MarshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	return json.Marshal(metadataEnvelope{Kind: m.Kind(), Payload: payload})
}

// UnmarshalMetadata decodes a stored metadata column back into its typed
// variant. Unknown kinds decode as GenericMeta so old rows stay readable.
func UnmarshalMetadata(data []byte) (Metadata, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var env metadataEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Kind {
	case "rate_limit":
		var m RateLimitMeta
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "security_violation":
		var m SecurityViolationMeta
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, err
		}
		return m, nil
	case "request":
		var m RequestMeta
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		var m GenericMeta
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}
