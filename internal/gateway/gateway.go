// Package gateway maps connection-lifecycle operations onto the messaging
// gateway's single action endpoint.
package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/transport"
	"github.com/spf13/cast"
)

const (
	ActionListInstances       = "list_instances"
	ActionEnsureLineSession   = "ensure_line_session"
	ActionStartSessionForLine = "start_session_for_line"
	ActionGetStatusForLine    = "get_status_for_line"
	ActionGetQRForLine        = "get_qr_for_line"
	ActionTestSend            = "test_send"
	ActionBindLine            = "bind_line"
	ActionBindOpenLine        = "bind_openline"
	ActionDiag                = "diag"
)

const DefaultTimeout = 15 * time.Second

// Doer is the subset of transport.Client the facade needs.
type Doer interface {
	Do(ctx context.Context, req transport.Request) transport.Result
}

type Config struct {
	ActionPath string
	Timeout    time.Duration
}

// Client is stateless; every method is one transport call.
type Client struct {
	doer    Doer
	path    string
	timeout time.Duration
}

func New(doer Doer, cfg Config) *Client {
	if cfg.ActionPath == "" {
		cfg.ActionPath = "evolution-connector"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{doer: doer, path: cfg.ActionPath, timeout: cfg.Timeout}
}

func (c *Client) call(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
	body := map[string]interface{}{"action": action}
	for k, v := range params {
		body[k] = v
	}
	res := c.doer.Do(ctx, transport.Request{Path: c.path, Body: body, Timeout: c.timeout})
	return res.Payload("gateway." + action)
}

// ListInstances returns every instance the gateway knows about.
func (c *Client) ListInstances(ctx context.Context) ([]Instance, error) {
	m, err := c.call(ctx, ActionListInstances, nil)
	if err != nil {
		return nil, err
	}
	raw := firstOf(m, "instances", "data")
	var out []Instance
	if raw == nil {
		return out, nil
	}
	if err := transport.DecodeInto(raw, &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].normalize()
	}
	return out, nil
}

// EnsureLineSession makes sure the gateway has an instance for the line.
func (c *Client) EnsureLineSession(ctx context.Context, lineID, instanceID string) (*Session, error) {
	m, err := c.call(ctx, ActionEnsureLineSession, map[string]interface{}{
		"lineId":       lineID,
		"instanceName": instanceID,
	})
	if err != nil {
		return nil, err
	}
	return decodeSession(m, lineID)
}

// StartSessionForLine asks the gateway to begin connecting the line's instance.
func (c *Client) StartSessionForLine(ctx context.Context, lineID, instanceID string) (*Session, error) {
	m, err := c.call(ctx, ActionStartSessionForLine, map[string]interface{}{
		"lineId":       lineID,
		"instanceName": instanceID,
	})
	if err != nil {
		return nil, err
	}
	return decodeSession(m, lineID)
}

// GetStatusForLine reads the instance connection state.
func (c *Client) GetStatusForLine(ctx context.Context, lineID string) (*Status, error) {
	m, err := c.call(ctx, ActionGetStatusForLine, map[string]interface{}{"lineId": lineID})
	if err != nil {
		return nil, err
	}
	st := &Status{LineID: lineID}
	if err := transport.DecodeInto(m, st); err != nil {
		return nil, err
	}
	st.State = stateOf(m)
	return st, nil
}

// GetQRForLine reads the current pairing code, if any, together with the state.
func (c *Client) GetQRForLine(ctx context.Context, lineID string) (*QR, error) {
	m, err := c.call(ctx, ActionGetQRForLine, map[string]interface{}{"lineId": lineID})
	if err != nil {
		return nil, err
	}
	qr := &QR{LineID: lineID}
	if err := transport.DecodeInto(m, qr); err != nil {
		return nil, err
	}
	qr.State = stateOf(m)
	if qr.Code == "" {
		qr.Code = cast.ToString(firstOf(m, "qr", "base64", "qrcode", "code"))
		if nested, ok := m["qrcode"].(map[string]interface{}); ok {
			qr.Code = cast.ToString(firstOf(nested, "base64", "code"))
			if qr.PairingCode == "" {
				qr.PairingCode = cast.ToString(nested["pairingCode"])
			}
		}
	}
	return qr, nil
}

// TestSend delivers a plain text message through the line's instance.
func (c *Client) TestSend(ctx context.Context, lineID, to, text string) (*SendResult, error) {
	if strings.TrimSpace(to) == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "gateway."+ActionTestSend, "recipient is required")
	}
	m, err := c.call(ctx, ActionTestSend, map[string]interface{}{
		"lineId": lineID,
		"to":     to,
		"text":   text,
	})
	if err != nil {
		return nil, err
	}
	out := &SendResult{}
	if err := transport.DecodeInto(m, out); err != nil {
		return nil, err
	}
	if out.MessageID == "" {
		if key, ok := m["key"].(map[string]interface{}); ok {
			out.MessageID = cast.ToString(key["id"])
		}
	}
	return out, nil
}

// BindLine records on the gateway side that instanceID serves lineID.
func (c *Client) BindLine(ctx context.Context, instanceID, lineID string) error {
	_, err := c.call(ctx, ActionBindLine, map[string]interface{}{
		"instanceId": instanceID,
		"lineId":     lineID,
	})
	return err
}

// BindOpenLine wires the instance into the CRM open line through the gateway.
func (c *Client) BindOpenLine(ctx context.Context, tenantID, lineID, instanceID string) error {
	_, err := c.call(ctx, ActionBindOpenLine, map[string]interface{}{
		"tenantId":   tenantID,
		"lineId":     lineID,
		"instanceId": instanceID,
	})
	return err
}

// Diag returns the gateway's raw diagnostic payload.
func (c *Client) Diag(ctx context.Context) (map[string]interface{}, error) {
	return c.call(ctx, ActionDiag, nil)
}

func decodeSession(m map[string]interface{}, lineID string) (*Session, error) {
	s := &Session{LineID: lineID}
	src := m
	if inner, ok := m["data"].(map[string]interface{}); ok {
		src = inner
	}
	if err := transport.DecodeInto(src, s); err != nil {
		return nil, err
	}
	if s.InstanceID == "" {
		s.InstanceID = cast.ToString(firstOf(src, "instanceName", "instance_id", "instance"))
	}
	s.State = stateOf(src)
	return s, nil
}

// stateOf finds the connection state in the shapes the gateway uses.
func stateOf(m map[string]interface{}) string {
	if v := cast.ToString(firstOf(m, "state", "status", "connectionStatus")); v != "" {
		return v
	}
	if inst, ok := m["instance"].(map[string]interface{}); ok {
		return cast.ToString(firstOf(inst, "state", "status", "connectionStatus"))
	}
	return ""
}

func firstOf(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return v
		}
	}
	return nil
}
