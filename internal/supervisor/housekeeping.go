package supervisor

import (
	"path/filepath"

	"github.com/robfig/cron/v3"

	"taskctl/internal/report"
)

// StartHousekeepingCron schedules Cleanup and Report to run together on the
// given standard five-field cron expression, returning the running
// scheduler so the caller can Stop it on shutdown. An empty schedule starts
// nothing and returns a nil scheduler. Housekeeping errors are logged, not
// surfaced, since a missed cleanup or report pass must never halt the loop.
func (s *Supervisor) StartHousekeepingCron(schedule string) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Cleanup(s.Cfg.RetentionDays, s.Cfg.MaxRunsMB); err != nil {
			s.Logger.Error("housekeeping cleanup: %v", err)
		}
		h, err := s.Store.Acquire()
		if err != nil {
			s.Logger.Error("housekeeping report: %v", err)
			return
		}
		ts, err := h.Read()
		_ = h.Release()
		if err != nil {
			s.Logger.Error("housekeeping report: %v", err)
			return
		}
		runsDir := s.path(s.Cfg.RunsDir)
		statusPath := filepath.Join(s.Dir, s.Cfg.StatusFile)
		if err := report.Write(ts, runsDir, statusPath); err != nil {
			s.Logger.Error("housekeeping report: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
