package adminapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/binding"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/leosozza/evowhats/internal/transport"
	"github.com/leosozza/evowhats/internal/webserver"
	"go.uber.org/zap"
)

// WebhookTokenHeader carries the shared webhook secret.
const WebhookTokenHeader = "X-Webhook-Token"

// Gateway event names after normalization.
const (
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
	EventMessagesUpsert   = "messages.upsert"
	EventMessagesUpdate   = "messages.update"
	EventSendMessage      = "send.message"
)

func registerWebhookRoutes() {
	webserver.ApiPOST("/webhooks/gateway", gatewayWebhook, requireWebhookToken)
}

type gatewayEvent struct {
	Event    string                 `json:"event"`
	Instance string                 `json:"instance"`
	DateTime string                 `json:"date_time"`
	Data     map[string]interface{} `json:"data"`
}

type connectionData struct {
	State string `json:"state"`
}

type qrcodeData struct {
	QRCode struct {
		Base64      string `json:"base64"`
		Code        string `json:"code"`
		PairingCode string `json:"pairingCode"`
	} `json:"qrcode"`
}

// requireWebhookToken rejects calls whose token header does not match the
// configured secret. An empty secret disables the check.
func requireWebhookToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret := GetAppContext(c).Config().Web.WebhookSecret
		if secret == "" {
			return next(c)
		}
		got := c.Request().Header.Get(WebhookTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook token", nil)
		}
		return next(c)
	}
}

// normalizeEvent turns CONNECTION_UPDATE style names into connection.update.
func normalizeEvent(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", ".")
}

func eventTime(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	at, err := dateparse.ParseAny(raw)
	if err != nil {
		zap.L().Debug("webhook: unparsable date_time", zap.String("value", raw))
		return time.Now()
	}
	return at
}

// gatewayWebhook applies gateway push events to the binding of the instance
// that emitted them. Events for unknown instances are acknowledged and
// ignored.
//
// @Summary receive a gateway event
// @Tags Webhooks
// @Param X-Webhook-Token header string false "Shared webhook secret"
// @Success 200 {object} Response
// @Router /api/v1/webhooks/gateway [post]
func gatewayWebhook(c echo.Context) error {
	var evt gatewayEvent
	if err := c.Bind(&evt); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse event", err.Error())
	}
	name := normalizeEvent(evt.Event)
	if name == "" || evt.Instance == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "event and instance are required", nil)
	}

	ctx := c.Request().Context()
	coord := GetAppContext(c).Bindings()
	b, err := coord.FindByInstance(ctx, evt.Instance)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			zap.L().Debug("webhook: event for unknown instance",
				zap.String("event", name), zap.String("instance", evt.Instance))
			return ok(c, map[string]interface{}{"event": name, "handled": false})
		}
		return failErr(c, "Failed to resolve instance", err)
	}

	switch name {
	case EventConnectionUpdate:
		var data connectionData
		if err := transport.DecodeInto(evt.Data, &data); err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse connection data", err.Error())
		}
		if strings.TrimSpace(data.State) == "" {
			return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "connection state is empty", nil)
		}
		b, err = coord.OnStatus(ctx, b.TenantID, b.LineID, data.State, binding.SourceWebhook)
	case EventQRCodeUpdated:
		var data qrcodeData
		if err := transport.DecodeInto(evt.Data, &data); err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse qrcode data", err.Error())
		}
		code := data.QRCode.Base64
		if code == "" {
			code = data.QRCode.Code
		}
		if code == "" {
			return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "qrcode payload is empty", nil)
		}
		b, err = coord.ApplyPairingCode(ctx, b.TenantID, b.LineID, code)
	case EventMessagesUpsert, EventMessagesUpdate, EventSendMessage:
		err = coord.Touch(ctx, b.TenantID, b.LineID, eventTime(evt.DateTime))
	default:
		return ok(c, map[string]interface{}{"event": name, "handled": false})
	}
	if err != nil {
		return failErr(c, "Failed to apply event", err)
	}
	return ok(c, map[string]interface{}{"event": name, "handled": true, "status": b.Status})
}
