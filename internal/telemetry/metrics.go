package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/imobflow/imobflow"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Authorization metrics
	AuthzDeniedTotal metric.Int64Counter

	// Campaign metrics
	CampaignRunsTotal         metric.Int64Counter
	CampaignMessagesSentTotal metric.Int64Counter
	CampaignMessagesFailed    metric.Int64Counter
	CampaignRunDuration       metric.Float64Histogram

	// Agent metrics
	AgentTurnsTotal        metric.Int64Counter
	AgentTurnErrorsTotal   metric.Int64Counter
	AgentMaxTurnsTotal     metric.Int64Counter
	AgentToolCallsTotal    metric.Int64Counter
	AgentToolFailuresTotal metric.Int64Counter
	ProviderCallDuration   metric.Float64Histogram
	ProviderCacheMisses    metric.Int64Counter

	// Store metrics
	VersionConflictsTotal metric.Int64Counter

	// Background work
	ActiveTasks metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.AuthzDeniedTotal, _ = meter.Int64Counter(
		"imobflow.authz.denied.total",
		metric.WithDescription("Total number of authorization denials"),
		metric.WithUnit("{decision}"),
	)

	m.CampaignRunsTotal, _ = meter.Int64Counter(
		"imobflow.campaigns.runs.total",
		metric.WithDescription("Total number of campaign executions started"),
		metric.WithUnit("{run}"),
	)

	m.CampaignMessagesSentTotal, _ = meter.Int64Counter(
		"imobflow.campaigns.messages.sent.total",
		metric.WithDescription("Total number of campaign messages delivered to the gateway"),
		metric.WithUnit("{message}"),
	)

	m.CampaignMessagesFailed, _ = meter.Int64Counter(
		"imobflow.campaigns.messages.failed.total",
		metric.WithDescription("Total number of campaign messages the gateway rejected"),
		metric.WithUnit("{message}"),
	)

	m.CampaignRunDuration, _ = meter.Float64Histogram(
		"imobflow.campaigns.run.duration",
		metric.WithDescription("Duration of a campaign send loop"),
		metric.WithUnit("ms"),
	)

	m.AgentTurnsTotal, _ = meter.Int64Counter(
		"imobflow.agent.turns.total",
		metric.WithDescription("Total number of orchestration turns"),
		metric.WithUnit("{turn}"),
	)

	m.AgentTurnErrorsTotal, _ = meter.Int64Counter(
		"imobflow.agent.turns.errors.total",
		metric.WithDescription("Total number of orchestration turns that failed"),
		metric.WithUnit("{turn}"),
	)

	m.AgentMaxTurnsTotal, _ = meter.Int64Counter(
		"imobflow.agent.max_turns.total",
		metric.WithDescription("Total number of invocations stopped by the turn limit"),
		metric.WithUnit("{invocation}"),
	)

	m.AgentToolCallsTotal, _ = meter.Int64Counter(
		"imobflow.agent.tool_calls.total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("{call}"),
	)

	m.AgentToolFailuresTotal, _ = meter.Int64Counter(
		"imobflow.agent.tool_calls.failures.total",
		metric.WithDescription("Total number of tool executions that returned a failure payload"),
		metric.WithUnit("{call}"),
	)

	m.ProviderCallDuration, _ = meter.Float64Histogram(
		"imobflow.agent.provider.duration",
		metric.WithDescription("Duration of AI provider completion calls"),
		metric.WithUnit("ms"),
	)

	m.ProviderCacheMisses, _ = meter.Int64Counter(
		"imobflow.agent.provider_cache.misses.total",
		metric.WithDescription("Total number of provider clients built"),
		metric.WithUnit("{client}"),
	)

	m.VersionConflictsTotal, _ = meter.Int64Counter(
		"imobflow.store.version_conflicts.total",
		metric.WithDescription("Total number of optimistic concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	m.ActiveTasks, _ = meter.Int64UpDownCounter(
		"imobflow.worker.active_tasks",
		metric.WithDescription("Number of background tasks in flight"),
		metric.WithUnit("{task}"),
	)

	return m
}
