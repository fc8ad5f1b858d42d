package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/binding"
	"github.com/leosozza/evowhats/internal/pairing"
	"github.com/leosozza/evowhats/internal/webserver"
	"go.uber.org/zap"
)

func registerOpenLineRoutes() {
	webserver.ApiGET("/openlines", listOpenLines)
	webserver.ApiGET("/openlines/:line", getOpenLine)
	webserver.ApiPOST("/openlines/:line/ensure", ensureOpenLine)
	webserver.ApiPOST("/openlines/:line/start", startOpenLine)
	webserver.ApiPOST("/openlines/:line/stop", stopOpenLine)
	webserver.ApiPOST("/openlines/:line/bind", bindOpenLine)
	webserver.ApiGET("/openlines/:line/status", refreshOpenLineStatus)
	webserver.ApiGET("/openlines/:line/qr", getOpenLineQR)
	webserver.ApiDELETE("/openlines/:line", deactivateOpenLine)
}

type openLineView struct {
	Binding interface{}   `json:"binding"`
	Pairing pairing.State `json:"pairing"`
}

// @Summary list open line bindings of the tenant
// @Tags OpenLines
// @Success 200 {object} Response
// @Router /api/v1/openlines [get]
func listOpenLines(c echo.Context) error {
	items, err := GetAppContext(c).Bindings().List(c.Request().Context(), tenantOf(c))
	if err != nil {
		return failErr(c, "Failed to list bindings", err)
	}
	return ok(c, items)
}

// @Summary get an open line binding with its pairing state
// @Tags OpenLines
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/openlines/{line} [get]
func getOpenLine(c echo.Context) error {
	tenant, line := tenantOf(c), c.Param("line")
	coord := GetAppContext(c).Bindings()
	b, err := coord.Get(c.Request().Context(), tenant, line)
	if err != nil {
		return failErr(c, "Failed to load binding", err)
	}
	return ok(c, openLineView{Binding: b, Pairing: coord.Pairing(tenant, line)})
}

// @Summary create or reactivate the binding of an open line
// @Tags OpenLines
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/openlines/{line}/ensure [post]
func ensureOpenLine(c echo.Context) error {
	b, err := GetAppContext(c).Bindings().Ensure(c.Request().Context(), tenantOf(c), c.Param("line"))
	if err != nil {
		return failErr(c, "Failed to ensure binding", err)
	}
	return ok(c, b)
}

// startOpenLine opens the gateway session and waits for the first pairing code.
//
// @Summary start the gateway session and wait for a pairing code
// @Tags OpenLines
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/openlines/{line}/start [post]
func startOpenLine(c echo.Context) error {
	tenant, line := tenantOf(c), c.Param("line")
	res, err := GetAppContext(c).Bindings().Start(c.Request().Context(), tenant, line)
	if err != nil {
		return failErr(c, "Failed to start session", err)
	}
	zap.L().Info("adminapi: session started",
		zap.String("tenant", tenant),
		zap.String("line", line),
		zap.String("outcome", res.Outcome))
	return ok(c, res)
}

// @Summary stop the pairing loop of an open line
// @Tags OpenLines
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/openlines/{line}/stop [post]
func stopOpenLine(c echo.Context) error {
	stopped := GetAppContext(c).Bindings().StopPairing(tenantOf(c), c.Param("line"))
	return ok(c, map[string]interface{}{"stopped": stopped})
}

// @Summary bind an open line to a gateway instance
// @Tags OpenLines
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/openlines/{line}/bind [post]
func bindOpenLine(c echo.Context) error {
	var payload struct {
		InstanceID string `json:"instance_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	b, err := GetAppContext(c).Bindings().Bind(c.Request().Context(), tenantOf(c), c.Param("line"), payload.InstanceID)
	if err != nil {
		return failErr(c, "Failed to bind line", err)
	}
	return ok(c, b)
}

// refreshOpenLineStatus reads the gateway state for the line and applies it.
//
// @Summary read and apply the gateway status of an open line
// @Tags OpenLines
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/openlines/{line}/status [get]
func refreshOpenLineStatus(c echo.Context) error {
	appCtx := GetAppContext(c)
	ctx := c.Request().Context()
	line := c.Param("line")
	st, err := appCtx.Gateway().GetStatusForLine(ctx, line)
	if err != nil {
		return failErr(c, "Failed to read gateway status", err)
	}
	if strings.TrimSpace(st.State) == "" {
		b, err := appCtx.Bindings().Get(ctx, tenantOf(c), line)
		if err != nil {
			return failErr(c, "Failed to load binding", err)
		}
		return ok(c, map[string]interface{}{"remote": st.State, "binding": b})
	}
	b, err := appCtx.Bindings().OnStatus(ctx, tenantOf(c), line, st.State, binding.SourcePoll)
	if err != nil {
		return failErr(c, "Failed to apply status", err)
	}
	return ok(c, map[string]interface{}{"remote": st.State, "binding": b})
}

// @Summary get the current pairing QR of an open line
// @Tags OpenLines
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/openlines/{line}/qr [get]
func getOpenLineQR(c echo.Context) error {
	qr, err := GetAppContext(c).Gateway().GetQRForLine(c.Request().Context(), c.Param("line"))
	if err != nil {
		return failErr(c, "Failed to read QR", err)
	}
	code, err := pairing.NormalizeQR(qr.Code)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "QR_RENDER_FAILED", "Failed to render QR", err.Error())
	}
	return ok(c, map[string]interface{}{
		"qr_code":      code,
		"pairing_code": qr.PairingCode,
		"has_qr":       code != "",
	})
}

// @Summary deactivate the binding of an open line
// @Tags OpenLines
// @Param line path string true "Open line ID"
// @Success 204
// @Router /api/v1/openlines/{line} [delete]
func deactivateOpenLine(c echo.Context) error {
	if err := GetAppContext(c).Bindings().Deactivate(c.Request().Context(), tenantOf(c), c.Param("line")); err != nil {
		return failErr(c, "Failed to deactivate binding", err)
	}
	return c.NoContent(http.StatusNoContent)
}
