package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func promSample(labels map[string]string, value int64) string {
	if labels == nil {
		labels = map[string]string{}
	}
	metric, _ := json.Marshal(labels)
	return fmt.Sprintf(`{"metric":%s,"value":[1756684800,"%d"]}`, metric, value)
}

// fakePrometheus answers /api/v1/query with canned vectors keyed on the
// PromQL expression: one coder type with 4 requested and 2 propagated
// transitions, 1 validation failure, 2 stalls, and a 3/1 RETRY/WAIT
// recovery split.
func fakePrometheus(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse query form: %v", err)
		}
		query := r.FormValue("query")

		var samples []string
		switch {
		case query == `sum(network_transitions_total)`:
			samples = append(samples, promSample(nil, 6))
		case query == `sum(network_validation_failures_total)`:
			samples = append(samples, promSample(nil, 1))
		case query == `sum(network_propagation_stalls_total)`:
			samples = append(samples, promSample(nil, 2))
		case query == `sum by (action) (network_recovery_actions_total)`:
			samples = append(samples,
				promSample(map[string]string{"action": "RETRY"}, 3),
				promSample(map[string]string{"action": "WAIT"}, 1))
		case query == `group by (agent_type) (network_transitions_total)`:
			samples = append(samples, promSample(map[string]string{"agent_type": "coder"}, 1))
		case strings.Contains(query, `trigger="request"`):
			samples = append(samples, promSample(nil, 4))
		case strings.Contains(query, `trigger="propagation"`):
			samples = append(samples, promSample(nil, 2))
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[%s]}}`,
			strings.Join(samples, ","))
	}))
}

func TestGetNetworkHealth(t *testing.T) {
	server := fakePrometheus(t)
	defer server.Close()

	q, err := NewQueryService(server.URL)
	if err != nil {
		t.Fatalf("NewQueryService failed: %v", err)
	}

	health, err := q.GetNetworkHealth(context.Background())
	if err != nil {
		t.Fatalf("GetNetworkHealth failed: %v", err)
	}

	if health.TransitionsApplied != 6 {
		t.Errorf("expected 6 transitions, got %d", health.TransitionsApplied)
	}
	if health.ValidationFailures != 1 {
		t.Errorf("expected 1 validation failure, got %d", health.ValidationFailures)
	}
	if health.PropagationStalls != 2 {
		t.Errorf("expected 2 stalls, got %d", health.PropagationStalls)
	}
	if health.RecoveryActions["RETRY"] != 3 {
		t.Errorf("expected 3 retries, got %d", health.RecoveryActions["RETRY"])
	}
	if health.RecoveryActions["WAIT"] != 1 {
		t.Errorf("expected 1 wait, got %d", health.RecoveryActions["WAIT"])
	}
}

func TestGetTypeActivity(t *testing.T) {
	server := fakePrometheus(t)
	defer server.Close()

	q, err := NewQueryService(server.URL)
	if err != nil {
		t.Fatalf("NewQueryService failed: %v", err)
	}

	activity, err := q.GetTypeActivity(context.Background())
	if err != nil {
		t.Fatalf("GetTypeActivity failed: %v", err)
	}

	coder, ok := activity["coder"]
	if !ok {
		t.Fatalf("expected activity for coder, got %v", activity)
	}
	if coder.Requested != 4 {
		t.Errorf("expected 4 requested, got %d", coder.Requested)
	}
	if coder.Propagated != 2 {
		t.Errorf("expected 2 propagated, got %d", coder.Propagated)
	}
	if coder.StallsTotal != 0 {
		t.Errorf("expected 0 stalls, got %d", coder.StallsTotal)
	}
}

func TestHealthHandler(t *testing.T) {
	server := fakePrometheus(t)
	defer server.Close()

	q, err := NewQueryService(server.URL)
	if err != nil {
		t.Fatalf("NewQueryService failed: %v", err)
	}

	rec := httptest.NewRecorder()
	q.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/network", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var diag NetworkDiagnostics
	if err := json.NewDecoder(rec.Body).Decode(&diag); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if diag.Health == nil || diag.Health.TransitionsApplied != 6 {
		t.Errorf("unexpected health payload: %+v", diag.Health)
	}
	if diag.Activity["coder"] == nil || diag.Activity["coder"].Requested != 4 {
		t.Errorf("unexpected activity payload: %+v", diag.Activity)
	}
}
