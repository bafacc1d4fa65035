package secmon

import (
	"context"
	"fmt"
	"time"

	"trustgate/config"
	"trustgate/core/store"
	"trustgate/core/utils"
)

// Monitor observes authentication traffic and turns it into the security
// ledger: login attempts, security events, and the advisory IP blocklist.
// Detection is threshold-based over sliding windows; blocking an IP never
// rewrites history, it only adds a blocklist row.
type Monitor struct {
	attempts  store.AttemptsStore
	events    store.EventsStore
	blocklist store.BlocklistStore
	cfg       *config.AppConfig
	logger    *utils.Logger
}

func NewMonitor(attempts store.AttemptsStore, events store.EventsStore, blocklist store.BlocklistStore, cfg *config.AppConfig, logger *utils.Logger) *Monitor {
	return &Monitor{attempts: attempts, events: events, blocklist: blocklist, cfg: cfg, logger: logger}
}

// RecordAttempt appends one row to the attempts ledger and, on failure, runs
// brute-force detection for the source IP. Ledger write failures are returned;
// detection failures are logged and swallowed so they cannot mask the login
// outcome.
func (m *Monitor) RecordAttempt(ctx context.Context, ip, username, userAgent string, success bool) error {
	now := time.Now().UTC()
	if err := m.attempts.Append(ctx, ip, username, success, now); err != nil {
		return err
	}
	if success {
		return nil
	}
	m.Emit(ctx, store.EventFailedLogin, store.SeverityInfo, ip, userAgent,
		fmt.Sprintf("failed login for %q", username))

	since := now.Add(-m.cfg.Security.AlertWindow)
	n, err := m.attempts.CountFailuresFromIP(ctx, ip, since)
	if err != nil {
		m.logger.Errorf("secmon: count failures for %s: %v", ip, err)
		return nil
	}
	if n >= m.cfg.Security.BruteForceLimit {
		m.Emit(ctx, store.EventBruteForceDetected, store.SeverityCritical, ip, userAgent,
			fmt.Sprintf("%d failed logins within %s", n, m.cfg.Security.AlertWindow))
		m.blockIP(ctx, ip, "brute force")
	}
	return nil
}

// InspectRequest checks a request's user agent and payload against known
// attack fingerprints. It reports whether the request looked suspicious;
// repeated offenders within an hour get their IP blocked.
func (m *Monitor) InspectRequest(ctx context.Context, ip, userAgent, payload string) bool {
	var detail string
	if name := matchScannerAgent(userAgent); name != "" {
		detail = "scanner user-agent: " + name
	} else if pat := matchInjection(payload); pat != "" {
		detail = "injection pattern: " + pat
	} else {
		return false
	}
	m.Emit(ctx, store.EventSuspiciousRequest, store.SeverityWarning, ip, userAgent, detail)

	since := time.Now().UTC().Add(-time.Hour)
	n, err := m.events.CountByTypeFromIP(ctx, store.EventSuspiciousRequest, ip, since)
	if err != nil {
		m.logger.Warnf("secmon: count suspicious for %s: %v", ip, err)
		return true
	}
	if n >= m.cfg.Security.SuspiciousPerHour {
		m.Emit(ctx, store.EventSuspiciousIP, store.SeverityCritical, ip, userAgent,
			fmt.Sprintf("%d suspicious requests within 1h", n))
		m.blockIP(ctx, ip, "suspicious activity")
	}
	return true
}

// IsBlocked reports whether the IP is on the blocklist. Lookup failures are
// logged and treated as not blocked; the blocklist is advisory and must not
// take the whole surface down with it.
func (m *Monitor) IsBlocked(ctx context.Context, ip string) bool {
	blocked, err := m.blocklist.IsBlocked(ctx, ip)
	if err != nil {
		m.logger.Warnf("secmon: blocklist lookup for %s: %v", ip, err)
		return false
	}
	return blocked
}

func (m *Monitor) Unblock(ctx context.Context, ip string) error {
	return m.blocklist.Unblock(ctx, ip)
}

// Emit records a security event. Best-effort: failures are logged, never
// propagated, so auditing cannot break the control flow that triggered it.
func (m *Monitor) Emit(ctx context.Context, t store.EventType, sev store.Severity, ip, userAgent, details string) {
	ev := &store.SecurityEvent{
		Type:      t,
		IP:        ip,
		UserAgent: userAgent,
		Details:   details,
		Severity:  sev,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.events.Append(ctx, ev); err != nil {
		m.logger.Errorf("secmon: append event %s: %v", t, err)
	}
}

func (m *Monitor) blockIP(ctx context.Context, ip, reason string) {
	if err := m.blocklist.Block(ctx, ip, reason, time.Now().UTC()); err != nil {
		m.logger.Errorf("secmon: block %s: %v", ip, err)
		return
	}
	m.Emit(ctx, store.EventIPBlocked, store.SeverityCritical, ip, "", reason)
	m.logger.Printf("secmon: blocked ip %s (%s)", ip, reason)
}
