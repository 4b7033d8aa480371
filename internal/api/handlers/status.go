package handlers

import (
	"net/http"
	"time"

	"github.com/speicherwald/speicherwald/internal/scheduler"
)

// StatusHandler handles GET /status — liveness and build info.
type StatusHandler struct {
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Status    string     `json:"status"`
	Version   string     `json:"version"`
	Time      time.Time  `json:"time"`
	NextScan  *time.Time `json:"next_scheduled_scan,omitempty"`
	CronExpr  string     `json:"scheduler_cron,omitempty"`
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:  "ok",
		Version: h.Version,
		Time:    time.Now().UTC(),
	}
	if h.Sched != nil {
		resp.NextScan = h.Sched.NextRunAt()
		resp.CronExpr = h.Sched.CronExpr()
	}
	writeJSON(w, http.StatusOK, resp)
}
