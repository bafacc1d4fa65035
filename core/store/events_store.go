package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type EventsStore interface {
	Append(ctx context.Context, ev *SecurityEvent) error
	ListRecent(ctx context.Context, limit int) ([]SecurityEvent, error)
	ListByType(ctx context.Context, t EventType, since time.Time, limit int) ([]SecurityEvent, error)
	CountByTypeFromIP(ctx context.Context, t EventType, ip string, since time.Time) (int, error)
	CountBySeverity(ctx context.Context) (map[Severity]int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type eventsStore struct {
	db *sql.DB
}

func NewEventsStore(db *sql.DB) EventsStore {
	return &eventsStore{db: db}
}

func (s *eventsStore) Append(ctx context.Context, ev *SecurityEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	sev := ev.Severity
	if sev == "" {
		sev = SeverityInfo
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events(event_type, ip, user_agent, details, severity, created_at)
		VALUES(?,?,?,?,?,?)`,
		string(ev.Type), strings.TrimSpace(ev.IP), strings.TrimSpace(ev.UserAgent), ev.Details, string(sev), ev.CreatedAt)
	return err
}

const eventColumns = `id, event_type, ip, user_agent, details, severity, created_at`

func (s *eventsStore) ListRecent(ctx context.Context, limit int) ([]SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM security_events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *eventsStore) ListByType(ctx context.Context, t EventType, since time.Time, limit int) ([]SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM security_events
		WHERE event_type=? AND created_at >= ?
		ORDER BY created_at DESC LIMIT ?`, string(t), since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]SecurityEvent, error) {
	var res []SecurityEvent
	for rows.Next() {
		var ev SecurityEvent
		var t, sev string
		if err := rows.Scan(&ev.ID, &t, &ev.IP, &ev.UserAgent, &ev.Details, &sev, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Type = EventType(t)
		ev.Severity = Severity(sev)
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (s *eventsStore) CountByTypeFromIP(ctx context.Context, t EventType, ip string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM security_events WHERE event_type=? AND ip=? AND created_at >= ?`,
		string(t), strings.TrimSpace(ip), since.UTC()).Scan(&n)
	return n, err
}

func (s *eventsStore) CountBySeverity(ctx context.Context) (map[Severity]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT severity, COUNT(1) FROM security_events GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Severity]int{}
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		out[Severity(sev)] = n
	}
	return out, rows.Err()
}

func (s *eventsStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM security_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
