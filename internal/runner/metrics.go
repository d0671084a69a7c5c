package runner

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// runnerMetrics holds the runner's OpenTelemetry instruments. They record
// through the global meter provider; when none is configured the no-op
// provider makes every call free.
type runnerMetrics struct {
	jobsCreated  metric.Int64Counter
	jobsDeleted  metric.Int64Counter
	nodesSpawned metric.Int64Counter
	activeJobs   metric.Int64UpDownCounter
}

func newRunnerMetrics(meter metric.Meter) (*runnerMetrics, error) {
	jobsCreated, err := meter.Int64Counter("trainer_jobs_created_total",
		metric.WithDescription("Jobs created by the process runner"))
	if err != nil {
		return nil, fmt.Errorf("create jobs_created counter: %w", err)
	}

	jobsDeleted, err := meter.Int64Counter("trainer_jobs_deleted_total",
		metric.WithDescription("Jobs deleted from the process runner"))
	if err != nil {
		return nil, fmt.Errorf("create jobs_deleted counter: %w", err)
	}

	nodesSpawned, err := meter.Int64Counter("trainer_nodes_spawned_total",
		metric.WithDescription("Node processes spawned across all jobs"))
	if err != nil {
		return nil, fmt.Errorf("create nodes_spawned counter: %w", err)
	}

	activeJobs, err := meter.Int64UpDownCounter("trainer_active_jobs",
		metric.WithDescription("Jobs currently held in the registry"))
	if err != nil {
		return nil, fmt.Errorf("create active_jobs counter: %w", err)
	}

	return &runnerMetrics{
		jobsCreated:  jobsCreated,
		jobsDeleted:  jobsDeleted,
		nodesSpawned: nodesSpawned,
		activeJobs:   activeJobs,
	}, nil
}

func (m *runnerMetrics) recordCreate(ctx context.Context, framework Framework, numNodes int) {
	attrs := metric.WithAttributes(attribute.String("framework", string(framework)))
	m.jobsCreated.Add(ctx, 1, attrs)
	m.nodesSpawned.Add(ctx, int64(numNodes), attrs)
	m.activeJobs.Add(ctx, 1)
}

func (m *runnerMetrics) recordDelete(ctx context.Context) {
	m.jobsDeleted.Add(ctx, 1)
	m.activeJobs.Add(ctx, -1)
}
