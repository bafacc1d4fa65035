package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type securityMetricsCollector struct {
	db *sql.DB

	activeSessionsDesc *prometheus.Desc
	eventsDesc         *prometheus.Desc
	blockedIPsDesc     *prometheus.Desc
	lockedUsersDesc    *prometheus.Desc
}

func newSecurityMetricsCollector(db *sql.DB) prometheus.Collector {
	return &securityMetricsCollector{
		db: db,
		activeSessionsDesc: prometheus.NewDesc(
			"trustgate_active_sessions",
			"Number of session rows currently stored.",
			nil,
			nil,
		),
		eventsDesc: prometheus.NewDesc(
			"trustgate_security_events_total",
			"Number of stored security events by severity.",
			[]string{"severity"},
			nil,
		),
		blockedIPsDesc: prometheus.NewDesc(
			"trustgate_blocked_ips",
			"Number of IPs on the blocklist.",
			nil,
			nil,
		),
		lockedUsersDesc: prometheus.NewDesc(
			"trustgate_locked_accounts",
			"Number of accounts with an active lockout.",
			nil,
			nil,
		),
	}
}

func (c *securityMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeSessionsDesc
	ch <- c.eventsDesc
	ch <- c.blockedIPsDesc
	ch <- c.lockedUsersDesc
}

func (c *securityMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()

	var sessions float64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions`).Scan(&sessions); err == nil {
		ch <- prometheus.MustNewConstMetric(c.activeSessionsDesc, prometheus.GaugeValue, sessions)
	}

	rows, err := c.db.QueryContext(ctx, `SELECT severity, COUNT(1) FROM security_events GROUP BY severity`)
	if err == nil {
		for rows.Next() {
			var sev string
			var n float64
			if scanErr := rows.Scan(&sev, &n); scanErr == nil {
				ch <- prometheus.MustNewConstMetric(c.eventsDesc, prometheus.GaugeValue, n, sev)
			}
		}
		_ = rows.Close()
	}

	var blocked float64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ip_blocklist`).Scan(&blocked); err == nil {
		ch <- prometheus.MustNewConstMetric(c.blockedIPsDesc, prometheus.GaugeValue, blocked)
	}

	var locked float64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE locked_until IS NOT NULL`).Scan(&locked); err == nil {
		ch <- prometheus.MustNewConstMetric(c.lockedUsersDesc, prometheus.GaugeValue, locked)
	}
}
