// Package bitrix is the CRM facade: open lines, the custom connector and the
// OAuth token endpoints.
package bitrix

import (
	"context"
	"strings"
	"time"

	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/transport"
	"github.com/spf13/cast"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultConnectorID = "evolution_whatsapp"
)

// Doer is the subset of transport.Client the facade needs.
type Doer interface {
	Do(ctx context.Context, req transport.Request) transport.Result
}

// TokenSource yields a fresh access token for a portal.
type TokenSource interface {
	AccessToken(ctx context.Context, subject, portal string) (string, error)
}

type Config struct {
	LinesPath         string
	ConnectorPath     string
	OAuthExchangePath string
	OAuthRefreshPath  string
	ClientID          string
	ClientSecret      string
	ConnectorID       string
	Timeout           time.Duration
}

func (c *Config) setDefaults() {
	if c.LinesPath == "" {
		c.LinesPath = "bitrix-openlines"
	}
	if c.ConnectorPath == "" {
		c.ConnectorPath = "bitrix-connector"
	}
	if c.OAuthExchangePath == "" {
		c.OAuthExchangePath = "bitrix-oauth-exchange"
	}
	if c.OAuthRefreshPath == "" {
		c.OAuthRefreshPath = "bitrix-token-refresh"
	}
	if c.ConnectorID == "" {
		c.ConnectorID = DefaultConnectorID
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Target identifies the portal a call acts on.
type Target struct {
	TenantID  string
	PortalURL string
}

type Client struct {
	doer   Doer
	cfg    Config
	tokens TokenSource
}

func New(doer Doer, cfg Config) *Client {
	cfg.setDefaults()
	return &Client{doer: doer, cfg: cfg}
}

// WithTokens returns a copy of the client that authenticates calls with
// tokens from ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

func (c *Client) ConnectorID() string { return c.cfg.ConnectorID }

func (c *Client) call(ctx context.Context, path, op string, t Target, body map[string]interface{}) (map[string]interface{}, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	if t.PortalURL != "" {
		body["portalUrl"] = t.PortalURL
	}
	if t.TenantID != "" {
		body["tenantId"] = t.TenantID
	}
	if c.tokens != nil && t.PortalURL != "" {
		token, err := c.tokens.AccessToken(ctx, t.TenantID, t.PortalURL)
		if err != nil {
			return nil, err
		}
		body["auth"] = token
	}
	res := c.doer.Do(ctx, transport.Request{Path: path, Body: body, Timeout: c.cfg.Timeout})
	return res.Payload("bitrix." + op)
}

func (c *Client) lineCall(ctx context.Context, t Target, action string, params map[string]interface{}) (map[string]interface{}, error) {
	body := map[string]interface{}{"action": action}
	for k, v := range params {
		body[k] = v
	}
	return c.call(ctx, c.cfg.LinesPath, action, t, body)
}

func (c *Client) connectorCall(ctx context.Context, t Target, action string, params map[string]interface{}) (map[string]interface{}, error) {
	body := map[string]interface{}{"action": action, "connector": c.cfg.ConnectorID}
	for k, v := range params {
		body[k] = v
	}
	return c.call(ctx, c.cfg.ConnectorPath, action, t, body)
}

// ListLines returns the portal's open lines.
func (c *Client) ListLines(ctx context.Context, t Target) ([]Line, error) {
	m, err := c.lineCall(ctx, t, "list_lines", nil)
	if err != nil {
		return nil, err
	}
	raw := m["lines"]
	if raw == nil {
		raw = m["result"]
	}
	if raw == nil {
		raw = m["data"]
	}
	var out []Line
	if raw == nil {
		return out, nil
	}
	if err := transport.DecodeInto(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BindLine attaches a gateway instance to an open line on the CRM side.
func (c *Client) BindLine(ctx context.Context, t Target, lineID, instanceID string) error {
	_, err := c.lineCall(ctx, t, "bind_line", map[string]interface{}{
		"lineId":     lineID,
		"instanceId": instanceID,
	})
	return err
}

// GetConnectorStatus reports registration and activation of the connector
// for a line.
func (c *Client) GetConnectorStatus(ctx context.Context, t Target, lineID string) (*ConnectorStatus, error) {
	m, err := c.connectorCall(ctx, t, "get_status", map[string]interface{}{"line": lineID})
	if err != nil {
		return nil, err
	}
	src := m
	if inner, ok := m["result"].(map[string]interface{}); ok {
		src = inner
	}
	st := &ConnectorStatus{LineID: lineID}
	if err := transport.DecodeInto(src, st); err != nil {
		return nil, err
	}
	return st, nil
}

// RegisterConnector registers the custom connector on the portal.
func (c *Client) RegisterConnector(ctx context.Context, t Target, reg Registration) error {
	if strings.TrimSpace(reg.Name) == "" {
		return domain.NewError(domain.KindInvalidInput, "bitrix.register", "connector name is required")
	}
	_, err := c.connectorCall(ctx, t, "register_connector", map[string]interface{}{
		"name":             reg.Name,
		"icon":             reg.Icon,
		"placementHandler": reg.PlacementHandler,
		"chatGroup":        reg.ChatGroup,
	})
	return err
}

// PublishConnectorData sets the connector's display data for a line.
func (c *Client) PublishConnectorData(ctx context.Context, t Target, lineID string, data map[string]interface{}) error {
	_, err := c.connectorCall(ctx, t, "publish_connector_data", map[string]interface{}{
		"line": lineID,
		"data": data,
	})
	return err
}

// AddToContactCenter places the connector tile in the contact center.
func (c *Client) AddToContactCenter(ctx context.Context, t Target) error {
	_, err := c.connectorCall(ctx, t, "add_to_contact_center", nil)
	return err
}

// CreateLine creates a new open line and returns its id.
func (c *Client) CreateLine(ctx context.Context, t Target, name string) (string, error) {
	m, err := c.connectorCall(ctx, t, "create_line", map[string]interface{}{"name": name})
	if err != nil {
		return "", err
	}
	id := cast.ToString(m["lineId"])
	if id == "" {
		id = cast.ToString(m["result"])
	}
	if id == "" {
		return "", &domain.Error{Kind: domain.KindTransportFailure, Op: "bitrix.create_line", Message: "parse"}
	}
	return id, nil
}

// ActivateConnector enables or disables the connector on a line.
func (c *Client) ActivateConnector(ctx context.Context, t Target, lineID string, active bool) error {
	_, err := c.connectorCall(ctx, t, "activate_connector", map[string]interface{}{
		"line":   lineID,
		"active": active,
	})
	return err
}

// SetupConnector registers the connector, publishes its data and activates
// it on lineID, stopping at the first failing step.
func (c *Client) SetupConnector(ctx context.Context, t Target, lineID string, reg Registration) (*SetupResult, error) {
	out := &SetupResult{LineID: lineID}
	if err := c.RegisterConnector(ctx, t, reg); err != nil {
		out.FailedStep = "register"
		return out, err
	}
	out.Registered = true
	data := map[string]interface{}{"id": c.cfg.ConnectorID, "name": reg.Name, "url": reg.PlacementHandler}
	if err := c.PublishConnectorData(ctx, t, lineID, data); err != nil {
		out.FailedStep = "publish_data"
		return out, err
	}
	out.Published = true
	if err := c.ActivateConnector(ctx, t, lineID, true); err != nil {
		out.FailedStep = "activate"
		return out, err
	}
	out.Activated = true
	return out, nil
}
