package transport

import (
	"github.com/leosozza/evowhats/internal/domain"
)

// Result of Client.Do. Err is nil on success; otherwise it is a *domain.Error
// (transport_failure, cancelled or timed_out).
type Result struct {
	Body       []byte
	StatusCode int
	Attempts   int
	Err        error
}

func (r Result) OK() bool { return r.Err == nil }

// Decode unmarshals the body into v. Malformed JSON is a transport failure
// with message "parse".
func (r Result) Decode(v interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	if len(r.Body) == 0 {
		return &domain.Error{Kind: domain.KindTransportFailure, Message: "parse", StatusCode: r.StatusCode}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &domain.Error{Kind: domain.KindTransportFailure, Message: "parse", StatusCode: r.StatusCode, Err: err}
	}
	return nil
}

// Map decodes the body as a JSON object.
func (r Result) Map() (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := r.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return m, nil
}
