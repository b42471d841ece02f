package telemetry_test

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/relaygrid/relaygrid/pkg/telemetry"
)

// The registry, zone and cluster packages all treat their telemetry
// handles as optional and call straight through without guards. These
// tests pin the nil-receiver contract they depend on.

func TestNilMetricsAreSafe(t *testing.T) {
	var m *telemetry.Metrics

	m.RecordRegistration("ok")
	m.RecordResolution("snapshot", "hit")
	m.RecordFailureReport()
	m.RecordCircuitOpen()
	m.SetEntryCount(3)
	m.RecordRemoteCall("success", 10*time.Millisecond)
	m.RecordRemoteCacheLookup(true)
	m.SetPeersConnected(2)
	m.RecordZoneViolation()

	if m.Handler() == nil {
		t.Error("nil metrics must still answer with a handler")
	}
}

func TestDisabledMetricsAreSafe(t *testing.T) {
	m, err := telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("failed to build disabled metrics: %v", err)
	}

	m.RecordRegistration("ok")
	m.RecordRemoteCall("failure", time.Second)
	m.RecordZoneViolation()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code == 0 {
		t.Error("disabled metrics handler must still answer")
	}
}

func TestMetricsScrape(t *testing.T) {
	m, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:   true,
		Namespace: "relaygrid",
	})
	if err != nil {
		t.Fatalf("failed to build metrics: %v", err)
	}

	m.RecordRegistration("ok")
	m.RecordResolution("store", "hit")
	m.RecordRemoteCall("success", 25*time.Millisecond)
	m.RecordRemoteCacheLookup(false)
	m.SetPeersConnected(4)
	m.RecordZoneViolation()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)

	for _, want := range []string{
		"relaygrid_registrations_total",
		"relaygrid_resolutions_total",
		"relaygrid_remote_calls_total",
		"relaygrid_remote_cache_lookups_total",
		"relaygrid_peers_connected 4",
		"relaygrid_zone_violations_total 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestTimerDuration(t *testing.T) {
	timer := telemetry.NewTimer()
	time.Sleep(5 * time.Millisecond)
	if d := timer.Duration(); d < 5*time.Millisecond {
		t.Errorf("timer ran backwards: %v", d)
	}
}

func TestNilTracerStartsUsableSpans(t *testing.T) {
	var tr *telemetry.Tracer

	ctx, span := tr.Start(context.Background(), "registry.resolve")
	if ctx == nil || span == nil {
		t.Fatal("nil tracer must hand back a usable context and span")
	}

	// The no-op span absorbs the package-level helpers without panicking.
	telemetry.RecordError(span, errors.New("boom"))
	telemetry.RecordSuccess(span)
	telemetry.AddEvent(span, "cache_hit")
	span.End()

	_, span = tr.StartResolveSpan(ctx, "auth.check", "node-b")
	span.End()
	_, span = tr.StartRemoteCallSpan(ctx, "auth.check", "node-b", "verify")
	span.End()
}

func TestLoggerChaining(t *testing.T) {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  "fatal",
		Format: "json",
		Output: "stderr",
	})
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	derived := logger.NewComponentLogger("registry").
		WithNode("node-a").
		WithZone(2).
		WithEntry("auth.check").
		WithError(errors.New("boom")).
		WithField("attempt", 3)
	if derived == nil {
		t.Fatal("chained logger must not be nil")
	}
	derived.Debugf("suppressed at fatal level: %d", 1)
}

func TestLoggerFromEmptyContext(t *testing.T) {
	logger := telemetry.FromContext(context.Background())
	if logger == nil {
		t.Fatal("expected the fallback logger")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	cfg = telemetry.DefaultConfig()
	cfg.Logging.Level = "loud"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid log level to be rejected")
	}

	cfg = telemetry.DefaultConfig()
	cfg.ServiceName = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected a missing service name to be rejected")
	}
}
