package adminapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/bitrix"
	"github.com/leosozza/evowhats/internal/webserver"
)

// PortalHeader names the CRM portal when the query has no portal parameter.
const PortalHeader = "X-Portal-URL"

func registerCrmRoutes() {
	webserver.ApiGET("/crm/lines", listCrmLines)
	webserver.ApiPOST("/crm/lines", createCrmLine)
	webserver.ApiPOST("/crm/lines/:line/bind", bindCrmLine)
	webserver.ApiGET("/crm/connector/status", getConnectorStatus)
	webserver.ApiPOST("/crm/connector/register", registerConnector)
	webserver.ApiPOST("/crm/connector/publish", publishConnectorData)
	webserver.ApiPOST("/crm/connector/activate", activateConnector)
	webserver.ApiPOST("/crm/connector/contact-center", addToContactCenter)
	webserver.ApiPOST("/crm/connector/setup", setupConnector)
}

type registrationRequest struct {
	Name             string `json:"name"`
	Icon             string `json:"icon"`
	PlacementHandler string `json:"placement_handler"`
	ChatGroup        bool   `json:"chat_group"`
}

func (r registrationRequest) registration() bitrix.Registration {
	return bitrix.Registration{
		Name:             r.Name,
		Icon:             r.Icon,
		PlacementHandler: r.PlacementHandler,
		ChatGroup:        r.ChatGroup,
	}
}

// targetOf resolves the tenant and portal of a CRM call.
func targetOf(c echo.Context) (bitrix.Target, bool) {
	portal := strings.TrimSpace(c.QueryParam("portal"))
	if portal == "" {
		portal = strings.TrimSpace(c.Request().Header.Get(PortalHeader))
	}
	return bitrix.Target{TenantID: tenantOf(c), PortalURL: portal}, portal != ""
}

func missingPortal(c echo.Context) error {
	return fail(c, http.StatusBadRequest, "MISSING_PORTAL", "portal query parameter or "+PortalHeader+" header is required", nil)
}

// @Summary list CRM open lines
// @Tags CRM
// @Param portal query string false "Portal URL"
// @Success 200 {object} Response
// @Router /api/v1/crm/lines [get]
func listCrmLines(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	lines, err := GetAppContext(c).Crm().ListLines(c.Request().Context(), t)
	if err != nil {
		return failErr(c, "Failed to list lines", err)
	}
	return ok(c, map[string]interface{}{"lines": lines})
}

// @Summary create a CRM open line
// @Tags CRM
// @Param portal query string false "Portal URL"
// @Success 200 {object} Response
// @Router /api/v1/crm/lines [post]
func createCrmLine(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if strings.TrimSpace(payload.Name) == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "name is required", nil)
	}
	id, err := GetAppContext(c).Crm().CreateLine(c.Request().Context(), t, payload.Name)
	if err != nil {
		return failErr(c, "Failed to create line", err)
	}
	return ok(c, map[string]interface{}{"line_id": id})
}

// @Summary bind a CRM open line to a gateway instance
// @Tags CRM
// @Param line path string true "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/crm/lines/{line}/bind [post]
func bindCrmLine(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	var payload struct {
		InstanceID string `json:"instance_id"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.InstanceID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "instance_id is required", nil)
	}
	if err := GetAppContext(c).Crm().BindLine(c.Request().Context(), t, c.Param("line"), payload.InstanceID); err != nil {
		return failErr(c, "Failed to bind line", err)
	}
	return ok(c, map[string]interface{}{"bound": true})
}

// @Summary get connector status for a line
// @Tags CRM
// @Param line query string false "Open line ID"
// @Success 200 {object} Response
// @Router /api/v1/crm/connector/status [get]
func getConnectorStatus(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	st, err := GetAppContext(c).Crm().GetConnectorStatus(c.Request().Context(), t, c.QueryParam("line"))
	if err != nil {
		return failErr(c, "Failed to read connector status", err)
	}
	return ok(c, st)
}

// @Summary register the connector on the portal
// @Tags CRM
// @Success 200 {object} Response
// @Router /api/v1/crm/connector/register [post]
func registerConnector(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	var payload registrationRequest
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if err := GetAppContext(c).Crm().RegisterConnector(c.Request().Context(), t, payload.registration()); err != nil {
		return failErr(c, "Failed to register connector", err)
	}
	return ok(c, map[string]interface{}{"registered": true})
}

// @Summary publish connector data for a line
// @Tags CRM
// @Success 200 {object} Response
// @Router /api/v1/crm/connector/publish [post]
func publishConnectorData(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	var payload struct {
		LineID string                 `json:"line_id"`
		Data   map[string]interface{} `json:"data"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.LineID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "line_id is required", nil)
	}
	if err := GetAppContext(c).Crm().PublishConnectorData(c.Request().Context(), t, payload.LineID, payload.Data); err != nil {
		return failErr(c, "Failed to publish connector data", err)
	}
	return ok(c, map[string]interface{}{"published": true})
}

// @Summary activate or deactivate the connector on a line
// @Tags CRM
// @Success 200 {object} Response
// @Router /api/v1/crm/connector/activate [post]
func activateConnector(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	var payload struct {
		LineID string `json:"line_id"`
		Active *bool  `json:"active"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.LineID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "line_id is required", nil)
	}
	active := payload.Active == nil || *payload.Active
	if err := GetAppContext(c).Crm().ActivateConnector(c.Request().Context(), t, payload.LineID, active); err != nil {
		return failErr(c, "Failed to change connector activation", err)
	}
	return ok(c, map[string]interface{}{"active": active})
}

// @Summary add the connector to the contact center
// @Tags CRM
// @Success 200 {object} Response
// @Router /api/v1/crm/connector/contact-center [post]
func addToContactCenter(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	if err := GetAppContext(c).Crm().AddToContactCenter(c.Request().Context(), t); err != nil {
		return failErr(c, "Failed to add connector to contact center", err)
	}
	return ok(c, map[string]interface{}{"added": true})
}

// setupConnector runs register, publish and activate in order. The error
// message names the step that failed.
//
// @Summary register, publish and activate the connector
// @Tags CRM
// @Success 200 {object} Response
// @Router /api/v1/crm/connector/setup [post]
func setupConnector(c echo.Context) error {
	t, found := targetOf(c)
	if !found {
		return missingPortal(c)
	}
	var payload struct {
		LineID string `json:"line_id"`
		registrationRequest
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse request", err.Error())
	}
	if payload.LineID == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "line_id is required", nil)
	}
	res, err := GetAppContext(c).Crm().SetupConnector(c.Request().Context(), t, payload.LineID, payload.registration())
	if err != nil {
		return failErr(c, "Connector setup failed at "+res.FailedStep, err)
	}
	return ok(c, res)
}
