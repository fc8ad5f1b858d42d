package bitrix

import (
	"context"
	"strings"

	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/transport"
)

// ExchangeCode trades an authorization code for a token pair. The endpoint
// answers 200 even on failure, so the body decides.
func (c *Client) ExchangeCode(ctx context.Context, portal, code string) (*Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "bitrix.exchange_code", "code is required")
	}
	return c.tokenCall(ctx, c.cfg.OAuthExchangePath, "exchange_code", map[string]interface{}{
		"portalUrl":    portal,
		"code":         code,
		"clientId":     c.cfg.ClientID,
		"clientSecret": c.cfg.ClientSecret,
	})
}

// RefreshToken trades a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, portal, refreshToken string) (*Token, error) {
	return c.tokenCall(ctx, c.cfg.OAuthRefreshPath, "refresh_token", map[string]interface{}{
		"portalUrl":    portal,
		"refreshToken": refreshToken,
		"clientId":     c.cfg.ClientID,
		"clientSecret": c.cfg.ClientSecret,
	})
}

func (c *Client) tokenCall(ctx context.Context, path, op string, body map[string]interface{}) (*Token, error) {
	res := c.doer.Do(ctx, transport.Request{Path: path, Body: body, Timeout: c.cfg.Timeout})
	m, err := res.Payload("bitrix." + op)
	if err != nil {
		return nil, err
	}
	src := m
	if inner, ok := m["data"].(map[string]interface{}); ok {
		src = inner
	}
	tok := &Token{}
	if err := transport.DecodeInto(src, tok); err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, &domain.Error{Kind: domain.KindRemoteRejected, Op: "bitrix." + op, Message: "response has no access_token", StatusCode: res.StatusCode}
	}
	return tok, nil
}
