package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/webserver"
)

func registerOAuthRoutes() {
	webserver.ApiPOST("/oauth/exchange", exchangeOAuthCode)
	webserver.ApiPOST("/oauth/refresh", refreshOAuthToken)
	webserver.ApiGET("/oauth/status", getOAuthStatus)
}

type credentialView struct {
	PortalURL string      `json:"portal_url"`
	ExpiresAt interface{} `json:"expires_at"`
}

// exchangeOAuthCode trades the install authorization code for tokens.
// Request JSON: { "portal_url": "https://x.bitrix24.com", "code": "..." }
//
// @Summary exchange an authorization code for portal tokens
// @Tags OAuth
// @Success 200 {object} Response
// @Router /api/v1/oauth/exchange [post]
func exchangeOAuthCode(c echo.Context) error {
	var payload struct {
		PortalURL string `json:"portal_url"`
		Code      string `json:"code"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if strings.TrimSpace(payload.PortalURL) == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "portal_url is required", nil)
	}
	cred, err := GetAppContext(c).Credentials().Exchange(c.Request().Context(), tenantOf(c), payload.PortalURL, payload.Code)
	if err != nil {
		return failErr(c, "Failed to exchange code", err)
	}
	return ok(c, credentialView{PortalURL: cred.PortalURL, ExpiresAt: cred.ExpiresAt})
}

// refreshOAuthToken forces a refresh regardless of the expiry margin.
//
// @Summary force a token refresh for a portal
// @Tags OAuth
// @Success 200 {object} Response
// @Router /api/v1/oauth/refresh [post]
func refreshOAuthToken(c echo.Context) error {
	var payload struct {
		PortalURL string `json:"portal_url"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if strings.TrimSpace(payload.PortalURL) == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "portal_url is required", nil)
	}
	cred, err := GetAppContext(c).Credentials().Refresh(c.Request().Context(), tenantOf(c), payload.PortalURL)
	if err != nil {
		return failErr(c, "Failed to refresh token", err)
	}
	return ok(c, credentialView{PortalURL: cred.PortalURL, ExpiresAt: cred.ExpiresAt})
}

// @Summary get the credential status of a portal
// @Tags OAuth
// @Param portal query string false "Portal URL"
// @Success 200 {object} Response
// @Router /api/v1/oauth/status [get]
func getOAuthStatus(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	st, err := GetAppContext(c).Credentials().Status(c.Request().Context(), t.TenantID, t.PortalURL)
	if err != nil {
		return failErr(c, "Failed to read credential status", err)
	}
	return ok(c, st)
}
