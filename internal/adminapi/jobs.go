package adminapi

import (
	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/webserver"
)

func registerJobRoutes() {
	webserver.ApiPOST("/system/jobs/:name/run", triggerJob)
}

// triggerJob runs a background job immediately and returns its report.
//
// @Summary run a background job now
// @Tags System
// @Param name path string true "Job name"
// @Success 200 {object} Response
// @Router /api/v1/system/jobs/{name}/run [post]
func triggerJob(c echo.Context) error {
	out, err := GetAppContext(c).RunJobNow(c.Param("name"))
	if err != nil {
		return failErr(c, "Failed to run job", err)
	}
	return ok(c, out)
}
