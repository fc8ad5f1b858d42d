package adminapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/leosozza/evowhats/config"
	"github.com/leosozza/evowhats/internal/app"
	"github.com/leosozza/evowhats/internal/webserver"
)

// fakeGateway answers gateway actions posted to the connector path.
type fakeGateway struct {
	mu      sync.Mutex
	state   string
	qr      string
	actions map[string]int
}

func (g *fakeGateway) setState(s string) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

func (g *fakeGateway) count(action string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.actions[action]
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	action, _ := body["action"].(string)

	g.mu.Lock()
	g.actions[action]++
	state, qr := g.state, g.qr
	g.mu.Unlock()

	var resp map[string]interface{}
	switch {
	case r.URL.Path != "/evolution-connector":
		w.WriteHeader(http.StatusNotFound)
		resp = map[string]interface{}{"error": "no route"}
	case action == "start_session_for_line":
		resp = map[string]interface{}{"success": true, "instanceId": body["instanceName"], "state": "connecting"}
	case action == "get_qr_for_line":
		resp = map[string]interface{}{"success": true, "base64": qr, "state": state}
	case action == "get_status_for_line":
		resp = map[string]interface{}{"success": true, "state": state}
	case action == "list_instances":
		resp = map[string]interface{}{"success": true, "instances": []interface{}{
			map[string]interface{}{"instanceName": "evo_a", "status": "open"},
		}}
	case action == "diag":
		resp = map[string]interface{}{"success": true, "version": "2.1"}
	default:
		resp = map[string]interface{}{"success": false, "error": "unknown action"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type harness struct {
	t   *testing.T
	app *app.Application
	gw  *fakeGateway
	srv *webserver.WebServer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gw := &fakeGateway{state: "connecting", qr: "iVBORw0KGgoAAAANSUhEUg", actions: map[string]int{}}
	remote := httptest.NewServer(gw)
	t.Cleanup(remote.Close)

	cfg := config.Default()
	cfg.System.Workdir = t.TempDir()
	cfg.Database.Type = "sqlite"
	cfg.Database.Name = fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg.Gateway.BaseURL = remote.URL
	cfg.Transport.Retries = 0
	cfg.Pairing.PollIntervalMs = 5
	cfg.Pairing.PollTimeoutMs = 2000
	cfg.Web.WebhookSecret = "s3cret"

	db, err := app.OpenDatabase(cfg.Database, cfg.System.Workdir)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	a := app.NewApplication(cfg)
	a.OverrideDB(db)
	if err := a.MigrateDB(false); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := a.InitServices(); err != nil {
		t.Fatalf("init services: %v", err)
	}
	t.Cleanup(a.Release)

	srv := webserver.Init(a)
	Init()
	return &harness{t: t, app: a, gw: gw, srv: srv}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (h *harness) do(method, path string, body interface{}, headers map[string]string) (int, envelope) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			h.t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, env
}

func decodeData(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, string(env.Data))
	}
}

type bindingJSON struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	LineID      string  `json:"line_id"`
	InstanceID  string  `json:"instance_id"`
	Status      string  `json:"status"`
	PairingCode string  `json:"pairing_code"`
	IsActive    bool    `json:"is_active"`
	LastSyncAt  *string `json:"last_sync_at"`
}

func TestEnsureAndGetOpenLine(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(http.MethodGet, "/api/v1/openlines/12", nil, nil)
	if code != http.StatusNotFound || env.Error != "NOT_FOUND" {
		t.Fatalf("expected not found, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodPost, "/api/v1/openlines/12/ensure", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("ensure: %d %+v", code, env)
	}
	var b bindingJSON
	decodeData(t, env, &b)
	if b.Status != "pending_qr" || !strings.HasPrefix(b.InstanceID, "evo_default_12_") || !b.IsActive {
		t.Fatalf("unexpected binding %+v", b)
	}

	code, env = h.do(http.MethodGet, "/api/v1/openlines/12", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("get: %d %+v", code, env)
	}
	var view struct {
		Binding bindingJSON `json:"binding"`
		Pairing string      `json:"pairing"`
	}
	decodeData(t, env, &view)
	if view.Binding.InstanceID != b.InstanceID || view.Pairing != "idle" {
		t.Fatalf("unexpected view %+v", view)
	}

	code, env = h.do(http.MethodGet, "/api/v1/openlines", nil, map[string]string{TenantHeader: "other"})
	if code != http.StatusOK || (string(env.Data) != "[]" && string(env.Data) != "null") {
		t.Fatalf("expected empty list for other tenant, got %d %s", code, string(env.Data))
	}
}

func TestStartReturnsPairingCode(t *testing.T) {
	h := newHarness(t)
	if code, env := h.do(http.MethodPost, "/api/v1/openlines/7/start", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected start without binding to 404, got %d %+v", code, env)
	}

	h.do(http.MethodPost, "/api/v1/openlines/7/ensure", nil, nil)
	code, env := h.do(http.MethodPost, "/api/v1/openlines/7/start", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("start: %d %+v", code, env)
	}
	var res struct {
		Binding bindingJSON `json:"binding"`
		QRCode  string      `json:"qr_code"`
		Outcome string      `json:"outcome"`
	}
	decodeData(t, env, &res)
	if res.Outcome != "code_ready" || res.QRCode != "data:image/png;base64,iVBORw0KGgoAAAANSUhEUg" {
		t.Fatalf("unexpected start result %+v", res)
	}
	if h.gw.count("start_session_for_line") != 1 {
		t.Fatalf("expected one start call, got %d", h.gw.count("start_session_for_line"))
	}

	code, env = h.do(http.MethodPost, "/api/v1/openlines/7/stop", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("stop: %d %+v", code, env)
	}
}

func TestRefreshStatusAppliesGatewayState(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/api/v1/openlines/3/ensure", nil, nil)
	h.gw.setState("CONNECTED")

	code, env := h.do(http.MethodGet, "/api/v1/openlines/3/status", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("status: %d %+v", code, env)
	}
	var out struct {
		Remote  string      `json:"remote"`
		Binding bindingJSON `json:"binding"`
	}
	decodeData(t, env, &out)
	if out.Remote != "CONNECTED" || out.Binding.Status != "open" || out.Binding.LastSyncAt == nil {
		t.Fatalf("unexpected status result %+v", out)
	}
}

func TestRefreshStatusKeepsStatusWithoutRemoteState(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/api/v1/openlines/4/ensure", nil, nil)
	h.gw.setState("open")
	h.do(http.MethodGet, "/api/v1/openlines/4/status", nil, nil)
	h.gw.setState("")

	code, env := h.do(http.MethodGet, "/api/v1/openlines/4/status", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("status: %d %+v", code, env)
	}
	var out struct {
		Remote  string      `json:"remote"`
		Binding bindingJSON `json:"binding"`
	}
	decodeData(t, env, &out)
	if out.Remote != "" || out.Binding.Status != "open" {
		t.Fatalf("empty remote state must not overwrite status, got %+v", out)
	}
}

func TestBindValidatesAndDeactivate(t *testing.T) {
	h := newHarness(t)
	code, env := h.do(http.MethodPost, "/api/v1/openlines/9/bind", map[string]string{}, nil)
	if code != http.StatusBadRequest || env.Error != "INVALID_INPUT" {
		t.Fatalf("expected invalid input, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodPost, "/api/v1/openlines/9/bind", map[string]string{"instance_id": "evo_manual"}, nil)
	if code != http.StatusOK {
		t.Fatalf("bind: %d %+v", code, env)
	}
	var b bindingJSON
	decodeData(t, env, &b)
	if b.InstanceID != "evo_manual" {
		t.Fatalf("unexpected binding %+v", b)
	}

	if code, _ := h.do(http.MethodDelete, "/api/v1/openlines/9", nil, nil); code != http.StatusNoContent {
		t.Fatalf("expected 204 on deactivate, got %d", code)
	}
	if code, _ := h.do(http.MethodDelete, "/api/v1/openlines/404", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown line, got %d", code)
	}
}

func TestGetOpenLineQR(t *testing.T) {
	h := newHarness(t)
	code, env := h.do(http.MethodGet, "/api/v1/openlines/5/qr", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("qr: %d %+v", code, env)
	}
	var out struct {
		QRCode string `json:"qr_code"`
		HasQR  bool   `json:"has_qr"`
	}
	decodeData(t, env, &out)
	if !out.HasQR || !strings.HasPrefix(out.QRCode, "data:image/png;base64,") {
		t.Fatalf("unexpected qr %+v", out)
	}
}

func TestGatewayRoutes(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(http.MethodGet, "/api/v1/gateway/instances", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("instances: %d %+v", code, env)
	}
	var list struct {
		Instances []struct {
			Name             string `json:"instanceName"`
			ConnectionStatus string `json:"connectionStatus"`
		} `json:"instances"`
	}
	decodeData(t, env, &list)
	if len(list.Instances) != 1 || list.Instances[0].ConnectionStatus != "open" {
		t.Fatalf("unexpected instances %+v", list)
	}

	code, env = h.do(http.MethodPost, "/api/v1/gateway/test-send", map[string]string{"line_id": "1"}, nil)
	if code != http.StatusBadRequest || env.Error != "MISSING_FIELDS" {
		t.Fatalf("expected missing fields, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodPost, "/api/v1/gateway/test-send", map[string]string{"line_id": "1", "to": "55", "text": "hi"}, nil)
	if code != http.StatusBadGateway || env.Error != "REMOTE_REJECTED" {
		t.Fatalf("expected remote rejection, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodGet, "/api/v1/gateway/diag", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("diag: %d %+v", code, env)
	}
	var diag struct {
		Gateway   map[string]interface{}   `json:"gateway"`
		Transport []map[string]interface{} `json:"transport"`
	}
	decodeData(t, env, &diag)
	if diag.Gateway["version"] != "2.1" || len(diag.Transport) == 0 {
		t.Fatalf("unexpected diag %+v", diag)
	}
}

func TestCrmRoutesRequirePortalAndCredential(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(http.MethodGet, "/api/v1/crm/lines", nil, nil)
	if code != http.StatusBadRequest || env.Error != "MISSING_PORTAL" {
		t.Fatalf("expected missing portal, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodGet, "/api/v1/crm/lines?portal=https://acme.bitrix24.com", nil, nil)
	if code != http.StatusConflict || env.Error != "NO_CREDENTIAL" {
		t.Fatalf("expected no credential, got %d %+v", code, env)
	}

	code, env = h.do(http.MethodGet, "/api/v1/oauth/status", nil, map[string]string{PortalHeader: "https://acme.bitrix24.com"})
	if code != http.StatusOK {
		t.Fatalf("oauth status: %d %+v", code, env)
	}
	var st struct {
		HasCredential bool `json:"has_credential"`
	}
	decodeData(t, env, &st)
	if st.HasCredential {
		t.Fatal("expected no credential")
	}

	code, env = h.do(http.MethodPost, "/api/v1/oauth/exchange", map[string]string{"code": "abc"}, nil)
	if code != http.StatusBadRequest || env.Error != "MISSING_FIELDS" {
		t.Fatalf("expected missing portal_url, got %d %+v", code, env)
	}
}

func TestJobRoutes(t *testing.T) {
	h := newHarness(t)
	if code, env := h.do(http.MethodPost, "/api/v1/system/jobs/nope/run", nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d %+v", code, env)
	}
	code, env := h.do(http.MethodPost, "/api/v1/system/jobs/binding_sweep/run", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("sweep: %d %+v", code, env)
	}
}

func TestSystemStatus(t *testing.T) {
	h := newHarness(t)
	code, env := h.do(http.MethodGet, "/api/v1/system/status", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("system status: %d %+v", code, env)
	}
	var out struct {
		Process struct {
			Pid        int `json:"pid"`
			Goroutines int `json:"goroutines"`
		} `json:"process"`
	}
	decodeData(t, env, &out)
	if out.Process.Pid == 0 || out.Process.Goroutines == 0 {
		t.Fatalf("unexpected process status %+v", out.Process)
	}
}
