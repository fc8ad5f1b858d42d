package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/app"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/webserver"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TenantHeader selects the tenant for admin calls.
const TenantHeader = "X-Tenant-ID"

const defaultTenant = "default"

// Init registers every admin and webhook route on the web server.
func Init() {
	registerOpenLineRoutes()
	registerGatewayRoutes()
	registerCrmRoutes()
	registerOAuthRoutes()
	registerJobRoutes()
	registerSystemRoutes()
	registerWebhookRoutes()
}

type Response struct {
	Data interface{} `json:"data"`
}

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Data: data})
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, ErrorResponse{Error: code, Message: message, Details: details})
}

// failErr maps a domain error kind to an HTTP status and text code.
func failErr(c echo.Context, message string, err error) error {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	case domain.KindInvalidInput:
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case domain.KindNoCredential:
		status, code = http.StatusConflict, "NO_CREDENTIAL"
	case domain.KindMissingRefreshToken:
		status, code = http.StatusConflict, "RECONNECT_REQUIRED"
	case domain.KindRemoteRejected:
		status, code = http.StatusBadGateway, "REMOTE_REJECTED"
	case domain.KindTransportFailure:
		status, code = http.StatusBadGateway, "TRANSPORT_FAILURE"
	case domain.KindTimedOut:
		status, code = http.StatusGatewayTimeout, "TIMED_OUT"
	case domain.KindCancelled:
		status, code = http.StatusRequestTimeout, "CANCELLED"
	case domain.KindPersistenceFailure:
		status, code = http.StatusInternalServerError, "PERSISTENCE_FAILURE"
	}
	if status >= http.StatusInternalServerError {
		zap.L().Warn("adminapi: "+message, zap.Error(err))
	}
	return fail(c, status, code, message, err.Error())
}

func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB()
}

func tenantOf(c echo.Context) string {
	if t := strings.TrimSpace(c.Request().Header.Get(TenantHeader)); t != "" {
		return t
	}
	return defaultTenant
}
