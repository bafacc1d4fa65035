package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// janitor sweeps expired sessions, CSRF tokens and pending challenges, and
// prunes the ledgers past their retention horizon. Expiry is otherwise lazy;
// the sweep just keeps the tables from accumulating dead rows.
type janitor struct {
	srv  *Server
	cron *cron.Cron
}

func newJanitor(s *Server) *janitor {
	return &janitor{srv: s, cron: cron.New()}
}

func (j *janitor) start() {
	if j == nil || !j.srv.cfg.Janitor.Enabled {
		return
	}
	schedule := j.srv.cfg.Janitor.Schedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		j.srv.logger.Errorf("janitor: bad schedule %q: %v", schedule, err)
		return
	}
	j.cron.Start()
}

func (j *janitor) stop() {
	if j == nil {
		return
	}
	j.cron.Stop()
}

func (j *janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s := j.srv
	now := time.Now().UTC()

	if n, err := s.sessions.DeleteExpired(ctx, now, s.cfg.EffectiveSessionTTL(), s.cfg.EffectiveIdleTimeout()); err != nil {
		s.logger.Errorf("janitor: sessions: %v", err)
	} else if n > 0 {
		s.logger.Printf("janitor: removed %d expired sessions", n)
	}
	if _, err := s.csrfStore.DeleteExpired(ctx, now); err != nil {
		s.logger.Errorf("janitor: csrf tokens: %v", err)
	}
	if _, err := s.twoFA.DeleteExpiredChallenges(ctx, now); err != nil {
		s.logger.Errorf("janitor: challenges: %v", err)
	}
	if d := s.cfg.Retention.LoginAttempts; d > 0 {
		if _, err := s.attempts.DeleteOlderThan(ctx, now.Add(-d)); err != nil {
			s.logger.Errorf("janitor: login attempts: %v", err)
		}
	}
	if d := s.cfg.Retention.SecurityEvents; d > 0 {
		if _, err := s.events.DeleteOlderThan(ctx, now.Add(-d)); err != nil {
			s.logger.Errorf("janitor: security events: %v", err)
		}
	}
}
