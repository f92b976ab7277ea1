package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-map/internal/config"
	"github.com/sells-group/property-map/internal/resilience"
	"github.com/sells-group/property-map/internal/store"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24, FailureRateThreshold: 0.1}
	checker := NewChecker(NewCollector(&mockStore{}, nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(&mockStore{}, nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, checker.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_RunChecksAtStart(t *testing.T) {
	hit := make(chan struct{}, 4)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit <- struct{}{}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, CheckIntervalSecs: 3600, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockStore{}, fixedBreakers{"parcels": resilience.Open}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	select {
	case <-hit:
	case <-time.After(5 * time.Second):
		t.Fatal("no alert posted before the first tick")
	}
	cancel()
	<-done
}

func TestChecker_Check_SendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, LookbackWindowHours: 24, FailureRateThreshold: 0.1}
	now := time.Now().UTC()
	st := &mockStore{}
	for i := 0; i < 6; i++ {
		st.subs = append(st.subs, store.Submission{Status: store.StatusFailed, CreatedAt: now.Add(-time.Minute)})
	}
	checker := NewChecker(NewCollector(st, fixedBreakers{"points": resilience.HalfOpen}), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertSubmissionFailureRate, alerts[0].Type)
	assert.Equal(t, AlertBreakerOpen, alerts[1].Type)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_Check_CollectError(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&mockStore{listErr: assert.AnError}, nil), NewAlerter(cfg), cfg)

	assert.Nil(t, checker.Check(context.Background()))
}
