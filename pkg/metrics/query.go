package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// NetworkHealth represents aggregated coordination telemetry for the
// whole network over the scrape window.
type NetworkHealth struct {
	TransitionsApplied int64            `json:"transitions_applied"`
	ValidationFailures int64            `json:"validation_failures"`
	PropagationStalls  int64            `json:"propagation_stalls"`
	RecoveryActions    map[string]int64 `json:"recovery_actions"`
}

// TypeActivity represents transition counts for one agent type.
type TypeActivity struct {
	AgentType   string `json:"agent_type"`
	Requested   int64  `json:"requested"`
	Propagated  int64  `json:"propagated"`
	StallsTotal int64  `json:"stalls_total"`
}

// QueryService provides methods to query coordination metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetNetworkHealth retrieves the aggregate coordination counters.
func (q *QueryService) GetNetworkHealth(ctx context.Context) (*NetworkHealth, error) {
	health := &NetworkHealth{
		RecoveryActions: make(map[string]int64),
	}

	transitionsResult, _, err := q.queryAPI.Query(ctx, `sum(network_transitions_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	if vector, ok := transitionsResult.(model.Vector); ok && len(vector) > 0 {
		health.TransitionsApplied = int64(vector[0].Value)
	}

	failuresResult, _, err := q.queryAPI.Query(ctx, `sum(network_validation_failures_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query validation failures: %w", err)
	}
	if vector, ok := failuresResult.(model.Vector); ok && len(vector) > 0 {
		health.ValidationFailures = int64(vector[0].Value)
	}

	stallsResult, _, err := q.queryAPI.Query(ctx, `sum(network_propagation_stalls_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query propagation stalls: %w", err)
	}
	if vector, ok := stallsResult.(model.Vector); ok && len(vector) > 0 {
		health.PropagationStalls = int64(vector[0].Value)
	}

	recoveryResult, _, err := q.queryAPI.Query(ctx, `sum by (action) (network_recovery_actions_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery actions: %w", err)
	}
	if vector, ok := recoveryResult.(model.Vector); ok {
		for _, sample := range vector {
			if action, ok := sample.Metric["action"]; ok {
				health.RecoveryActions[string(action)] = int64(sample.Value)
			}
		}
	}

	return health, nil
}

// NetworkDiagnostics bundles the aggregate health counters with the
// per-type activity breakdown.
type NetworkDiagnostics struct {
	Health   *NetworkHealth           `json:"health"`
	Activity map[string]*TypeActivity `json:"activity"`
}

// HealthHandler serves the network diagnostics as JSON, for operators
// who want the coordination counters without writing PromQL.
func (q *QueryService) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health, err := q.GetNetworkHealth(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to query network health: %v", err), http.StatusBadGateway)
			return
		}
		activity, err := q.GetTypeActivity(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to query type activity: %v", err), http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(NetworkDiagnostics{Health: health, Activity: activity})
	}
}

// GetTypeActivity retrieves per-type transition activity, broken down
// by what was requested directly versus advanced by propagation.
func (q *QueryService) GetTypeActivity(ctx context.Context) (map[string]*TypeActivity, error) {
	result := make(map[string]*TypeActivity)

	typesResult, _, err := q.queryAPI.Query(ctx, `group by (agent_type) (network_transitions_total)`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query agent types: %w", err)
	}

	var types []string
	if vector, ok := typesResult.(model.Vector); ok {
		for _, sample := range vector {
			if agentType, ok := sample.Metric["agent_type"]; ok {
				types = append(types, string(agentType))
			}
		}
	}

	for _, agentType := range types {
		activity := &TypeActivity{AgentType: agentType}

		requestedQuery := fmt.Sprintf(`sum(network_transitions_total{agent_type=%q, trigger="request"})`, agentType)
		requestedResult, _, err := q.queryAPI.Query(ctx, requestedQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query requested transitions for %s: %w", agentType, err)
		}
		if vector, ok := requestedResult.(model.Vector); ok && len(vector) > 0 {
			activity.Requested = int64(vector[0].Value)
		}

		propagatedQuery := fmt.Sprintf(`sum(network_transitions_total{agent_type=%q, trigger="propagation"})`, agentType)
		propagatedResult, _, err := q.queryAPI.Query(ctx, propagatedQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query propagated transitions for %s: %w", agentType, err)
		}
		if vector, ok := propagatedResult.(model.Vector); ok && len(vector) > 0 {
			activity.Propagated = int64(vector[0].Value)
		}

		stallsQuery := fmt.Sprintf(`sum(network_propagation_stalls_total{agent_type=%q})`, agentType)
		stallsResult, _, err := q.queryAPI.Query(ctx, stallsQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query stalls for %s: %w", agentType, err)
		}
		if vector, ok := stallsResult.(model.Vector); ok && len(vector) > 0 {
			activity.StallsTotal = int64(vector[0].Value)
		}

		result[agentType] = activity
	}

	return result, nil
}
