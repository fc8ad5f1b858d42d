package adminapi

import (
	"os"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/webserver"
	"github.com/shirou/gopsutil/process"
	"go.uber.org/zap"
)

func registerSystemRoutes() {
	webserver.ApiGET("/system/status", getSystemStatus)
}

type processStatus struct {
	Pid        int     `json:"pid"`
	Goroutines int     `json:"goroutines"`
	CPUPercent float64 `json:"cpu_percent"`
	MemRSSMB   uint64  `json:"mem_rss_mb"`
}

// getSystemStatus reports process resource usage next to outbound call
// latency digests.
//
// @Summary process and transport status
// @Tags System
// @Success 200 {object} Response
// @Router /api/v1/system/status [get]
func getSystemStatus(c echo.Context) error {
	st := processStatus{Pid: os.Getpid(), Goroutines: runtime.NumGoroutine()}
	p, err := process.NewProcess(int32(st.Pid))
	if err == nil {
		if cpu, err := p.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
		if mem, err := p.MemoryInfo(); err == nil {
			st.MemRSSMB = mem.RSS / 1024 / 1024
		}
	} else {
		zap.L().Debug("adminapi: process stats unavailable", zap.Error(err))
	}
	return ok(c, map[string]interface{}{
		"process":   st,
		"transport": GetAppContext(c).TransportStats(),
	})
}
