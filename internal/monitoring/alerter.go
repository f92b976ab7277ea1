package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-map/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSubmissionFailureRate AlertType = "submission_failure_rate"
	AlertDegradedLookups       AlertType = "degraded_lookups"
	AlertBreakerOpen           AlertType = "breaker_open"
)

// minSample is the number of submissions needed before rate alerts fire.
const minSample = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.SubmissionTotal >= minSample && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSubmissionFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"CRM submission failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.SubmissionFailed, snap.SubmissionTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"fail_rate": snap.FailRate,
				"threshold": a.cfg.FailureRateThreshold,
				"failed":    snap.SubmissionFailed,
				"total":     snap.SubmissionTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.WarningRateThreshold > 0 && snap.SubmissionCreated >= minSample &&
		snap.WarningRate > a.cfg.WarningRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedLookups,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of created properties had incomplete cadastral lookups in last %dh",
				snap.WarningRate*100, snap.LookbackHours,
			),
			Details: map[string]any{
				"warning_rate":  snap.WarningRate,
				"threshold":     a.cfg.WarningRateThreshold,
				"with_warnings": snap.WithWarnings,
				"created":       snap.SubmissionCreated,
			},
			Timestamp: now,
		})
	}

	if len(snap.OpenBreakers) > 0 {
		sources := slices.Clone(snap.OpenBreakers)
		slices.Sort(sources)
		alerts = append(alerts, Alert{
			Type:      AlertBreakerOpen,
			Severity:  "high",
			Message:   "cadastral source unavailable: " + strings.Join(sources, ", "),
			Details:   map[string]any{"sources": sources},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
