package transport

import (
	"reflect"
	"strings"

	"github.com/leosozza/evowhats/internal/domain"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// Payload decodes the body as a JSON object and turns application-level
// rejections (an "error" field, or "success": false) into remote_rejected.
func (r Result) Payload(op string) (map[string]interface{}, error) {
	if r.Err != nil {
		return nil, withOp(r.Err, op)
	}
	m, err := r.Map()
	if err != nil {
		return nil, withOp(err, op)
	}
	if rej := Rejection(op, m); rej != nil {
		rej.StatusCode = r.StatusCode
		return m, rej
	}
	return m, nil
}

// Rejection inspects a decoded payload for an application error.
func Rejection(op string, m map[string]interface{}) *domain.Error {
	msg := errorText(m["error"])
	success, hasSuccess := m["success"]
	if msg == "" && (!hasSuccess || cast.ToBool(success)) {
		return nil
	}
	if msg == "" {
		msg = cast.ToString(m["message"])
	}
	if msg == "" {
		msg = "request rejected"
	}
	return &domain.Error{
		Kind:    domain.KindRemoteRejected,
		Op:      op,
		Message: msg,
		Code:    cast.ToString(m["code"]),
	}
}

func errorText(v interface{}) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(e)
	case bool:
		if e {
			return "request rejected"
		}
		return ""
	case map[string]interface{}:
		for _, k := range []string{"message", "error_description", "error"} {
			if s := cast.ToString(e[k]); s != "" {
				return s
			}
		}
		return "request rejected"
	default:
		return cast.ToString(e)
	}
}

func withOp(err error, op string) error {
	if de, ok := err.(*domain.Error); ok && op != "" {
		cp := *de
		cp.Op = op
		return &cp
	}
	return err
}

// DecodeInto maps a loosely typed payload onto a struct using json tags.
func DecodeInto(input interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       flagToBool,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return &domain.Error{Kind: domain.KindTransportFailure, Message: "parse", Err: err}
	}
	return nil
}

// flagToBool accepts the CRM's "Y"/"N" flags for bool fields.
func flagToBool(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch strings.ToUpper(strings.TrimSpace(reflect.ValueOf(data).String())) {
	case "Y", "YES":
		return true, nil
	case "N", "NO", "":
		return false, nil
	}
	return data, nil
}
