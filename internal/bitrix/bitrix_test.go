package bitrix

import (
	"context"
	"errors"
	"testing"

	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/transport"
)

type fakeDoer struct {
	reqs    []transport.Request
	replies map[string]string
}

func (f *fakeDoer) Do(_ context.Context, req transport.Request) transport.Result {
	f.reqs = append(f.reqs, req)
	key := req.Path
	if body, ok := req.Body.(map[string]interface{}); ok {
		if action, ok := body["action"].(string); ok {
			key = req.Path + "#" + action
		}
	}
	body, ok := f.replies[key]
	if !ok {
		body = f.replies[req.Path]
	}
	return transport.Result{Body: []byte(body), StatusCode: 200, Attempts: 1}
}

type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) AccessToken(context.Context, string, string) (string, error) {
	s.calls++
	return s.token, s.err
}

var target = Target{TenantID: "t1", PortalURL: "https://acme.bitrix24.com.br"}

func TestListLinesUsesTokenSource(t *testing.T) {
	d := &fakeDoer{replies: map[string]string{
		"bitrix-openlines#list_lines": `{"success":true,"lines":[{"id":1,"name":"Vendas","active":"Y"},{"id":"2","name":"Suporte","active":false}]}`,
	}}
	tokens := &staticTokens{token: "access-1"}
	c := New(d, Config{}).WithTokens(tokens)

	lines, err := c.ListLines(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 || lines[0].ID != "1" || lines[1].Name != "Suporte" {
		t.Fatalf("lines = %+v", lines)
	}
	body := d.reqs[0].Body.(map[string]interface{})
	if body["auth"] != "access-1" || body["portalUrl"] != target.PortalURL {
		t.Fatalf("body = %v", body)
	}
	if tokens.calls != 1 {
		t.Fatalf("token source calls = %d", tokens.calls)
	}
}

func TestNoCredentialStopsBeforeTransport(t *testing.T) {
	d := &fakeDoer{}
	tokens := &staticTokens{err: domain.NewError(domain.KindNoCredential, "credential", "none")}
	c := New(d, Config{}).WithTokens(tokens)

	err := c.BindLine(context.Background(), target, "1", "evo")
	if !domain.IsKind(err, domain.KindNoCredential) {
		t.Fatalf("expected no_credential, got %v", err)
	}
	if len(d.reqs) != 0 {
		t.Fatal("transport must not be called")
	}
}

func TestRefreshTokenBranchesOnBody(t *testing.T) {
	d := &fakeDoer{replies: map[string]string{
		"bitrix-token-refresh": `{"success":false,"error":"invalid_grant","code":"EXPIRED_TOKEN"}`,
	}}
	c := New(d, Config{ClientID: "cid", ClientSecret: "secret"})

	_, err := c.RefreshToken(context.Background(), target.PortalURL, "r1")
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind != domain.KindRemoteRejected || de.Code != "EXPIRED_TOKEN" {
		t.Fatalf("unexpected error %v", err)
	}
	body := d.reqs[0].Body.(map[string]interface{})
	if body["refreshToken"] != "r1" || body["clientId"] != "cid" || body["clientSecret"] != "secret" {
		t.Fatalf("body = %v", body)
	}
}

func TestExchangeCode(t *testing.T) {
	d := &fakeDoer{replies: map[string]string{
		"bitrix-oauth-exchange": `{"success":true,"data":{"access_token":"a","refresh_token":"r","expires_in":"3600"}}`,
	}}
	c := New(d, Config{})
	tok, err := c.ExchangeCode(context.Background(), target.PortalURL, "code-1")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "a" || tok.RefreshToken != "r" || tok.ExpiresIn != 3600 {
		t.Fatalf("token = %+v", tok)
	}
	if _, err := c.ExchangeCode(context.Background(), target.PortalURL, ""); !domain.IsKind(err, domain.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestExchangeWithoutAccessTokenIsRejected(t *testing.T) {
	d := &fakeDoer{replies: map[string]string{"bitrix-oauth-exchange": `{"success":true,"data":{}}`}}
	_, err := New(d, Config{}).ExchangeCode(context.Background(), target.PortalURL, "c")
	if !domain.IsKind(err, domain.KindRemoteRejected) {
		t.Fatalf("expected remote_rejected, got %v", err)
	}
}

func TestSetupConnectorStopsAtFirstFailure(t *testing.T) {
	d := &fakeDoer{replies: map[string]string{
		"bitrix-connector#register_connector":     `{"success":true}`,
		"bitrix-connector#publish_connector_data": `{"error":"line 9 not found"}`,
		"bitrix-connector#activate_connector":     `{"success":true}`,
	}}
	c := New(d, Config{})

	res, err := c.SetupConnector(context.Background(), target, "9", Registration{Name: "WhatsApp"})
	if !domain.IsKind(err, domain.KindRemoteRejected) {
		t.Fatalf("expected remote_rejected, got %v", err)
	}
	if !res.Registered || res.Published || res.Activated || res.FailedStep != "publish_data" {
		t.Fatalf("result = %+v", res)
	}
	if len(d.reqs) != 2 {
		t.Fatalf("activate must not be attempted, got %d calls", len(d.reqs))
	}
}

func TestConnectorStatus(t *testing.T) {
	d := &fakeDoer{replies: map[string]string{
		"bitrix-connector#get_status": `{"result":{"registered":true,"active":"Y","connection":1}}`,
	}}
	st, err := New(d, Config{}).GetConnectorStatus(context.Background(), target, "3")
	if err != nil {
		t.Fatal(err)
	}
	if !st.Registered || !st.Active || !st.Connection || st.LineID != "3" {
		t.Fatalf("status = %+v", st)
	}
	if d.reqs[0].Body.(map[string]interface{})["connector"] != DefaultConnectorID {
		t.Fatal("connector id not sent")
	}
}

func TestConnectorActionNames(t *testing.T) {
	d := &fakeDoer{replies: map[string]string{
		"bitrix-connector": `{"success":true,"result":{"line_id":"4"}}`,
	}}
	c := New(d, Config{})
	ctx := context.Background()

	_, _ = c.GetConnectorStatus(ctx, target, "3")
	_ = c.RegisterConnector(ctx, target, Registration{Name: "WhatsApp"})
	_ = c.PublishConnectorData(ctx, target, "3", map[string]interface{}{"name": "WhatsApp"})
	_ = c.AddToContactCenter(ctx, target)
	_, _ = c.CreateLine(ctx, target, "Vendas")
	_ = c.ActivateConnector(ctx, target, "3", true)

	want := []string{
		"get_status",
		"register_connector",
		"publish_connector_data",
		"add_to_contact_center",
		"create_line",
		"activate_connector",
	}
	if len(d.reqs) != len(want) {
		t.Fatalf("got %d requests, want %d", len(d.reqs), len(want))
	}
	for i, req := range d.reqs {
		if got := req.Body.(map[string]interface{})["action"]; got != want[i] {
			t.Errorf("request %d action = %v, want %s", i, got, want[i])
		}
	}
}
