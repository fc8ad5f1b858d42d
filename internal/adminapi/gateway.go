package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/webserver"
)

func registerGatewayRoutes() {
	webserver.ApiGET("/gateway/instances", listGatewayInstances)
	webserver.ApiPOST("/gateway/lines/:line/session", ensureGatewaySession)
	webserver.ApiPOST("/gateway/lines/:line/bind", bindGatewayLine)
	webserver.ApiPOST("/gateway/test-send", gatewayTestSend)
	webserver.ApiGET("/gateway/diag", gatewayDiag)
}

// @Summary list gateway instances
// @Tags Gateway
// @Success 200 {object} Response
// @Router /api/v1/gateway/instances [get]
func listGatewayInstances(c echo.Context) error {
	items, err := GetAppContext(c).Gateway().ListInstances(c.Request().Context())
	if err != nil {
		return failErr(c, "Failed to list instances", err)
	}
	return ok(c, map[string]interface{}{"instances": items})
}

// ensureGatewaySession makes sure the gateway holds a session for the line.
// Request JSON: { "instance_id": "evo_..." }
//
// @Summary ensure the gateway session of a line
// @Tags Gateway
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/gateway/lines/{line}/session [post]
func ensureGatewaySession(c echo.Context) error {
	var payload struct {
		InstanceID string `json:"instance_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	s, err := GetAppContext(c).Gateway().EnsureLineSession(c.Request().Context(), c.Param("line"), payload.InstanceID)
	if err != nil {
		return failErr(c, "Failed to ensure session", err)
	}
	return ok(c, map[string]interface{}{"line_id": s.LineID, "instance_id": s.InstanceID, "state": s.State})
}

// bindGatewayLine records the line to instance mapping on the gateway side.
//
// @Summary bind an open line on the gateway side
// @Tags Gateway
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/gateway/lines/{line}/bind [post]
func bindGatewayLine(c echo.Context) error {
	var payload struct {
		InstanceID string `json:"instance_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.InstanceID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "instance_id is required", nil)
	}
	if err := GetAppContext(c).Gateway().BindOpenLine(c.Request().Context(), tenantOf(c), c.Param("line"), payload.InstanceID); err != nil {
		return failErr(c, "Failed to bind line on gateway", err)
	}
	return ok(c, map[string]interface{}{"bound": true})
}

// gatewayTestSend sends a text through the line's session.
// Request JSON: { "line_id": "12", "to": "5511999999999", "text": "hello" }
//
// @Summary send a test message through the gateway
// @Tags Gateway
// @Success 200 {object} Response
// @Router /api/v1/gateway/test-send [post]
func gatewayTestSend(c echo.Context) error {
	var payload struct {
		LineID string `json:"line_id"`
		To     string `json:"to"`
		Text   string `json:"text"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.LineID == "" || payload.Text == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "line_id and text are required", nil)
	}
	res, err := GetAppContext(c).Gateway().TestSend(c.Request().Context(), payload.LineID, payload.To, payload.Text)
	if err != nil {
		return failErr(c, "Failed to send message", err)
	}
	return ok(c, res)
}

// gatewayDiag combines the gateway's own diagnostics with local latency
// digests of recent outbound calls.
//
// @Summary gateway diagnostics and transport latency
// @Tags Gateway
// @Success 200 {object} Response
// @Router /api/v1/gateway/diag [get]
func gatewayDiag(c echo.Context) error {
	appCtx := GetAppContext(c)
	resp := map[string]interface{}{"transport": appCtx.TransportStats()}
	diag, err := appCtx.Gateway().Diag(c.Request().Context())
	if err != nil {
		resp["gateway_error"] = err.Error()
	} else {
		resp["gateway"] = diag
	}
	return ok(c, resp)
}
