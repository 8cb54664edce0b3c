package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Janitor prunes staging directories that direct deployments left
// behind, on a cron schedule.
type Janitor struct {
	tempPath string
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

func NewJanitor(tempPath, schedule string, maxAge time.Duration) *Janitor {
	return &Janitor{
		tempPath: tempPath,
		maxAge:   maxAge,
		schedule: schedule,
	}
}

// Start schedules the cleanup job. An empty schedule disables the
// janitor.
func (j *Janitor) Start() error {
	if j.schedule == "" {
		return nil
	}
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	log.Info().Str("schedule", j.schedule).Msg("staging janitor started")
	return nil
}

// Stop halts the schedule, letting a running sweep finish.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

func (j *Janitor) sweep() {
	removed, err := j.Sweep(time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("staging sweep failed")
		return
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("stale staging dirs removed")
	}
}

// Sweep removes direct-deploy staging dirs older than the max age and
// returns how many were removed.
func (j *Janitor) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(j.tempPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "direct_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < j.maxAge {
			continue
		}
		path := filepath.Join(j.tempPath, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn().Err(err).Str("dir", path).Msg("failed to remove stale staging dir")
			continue
		}
		removed++
	}
	return removed, nil
}
