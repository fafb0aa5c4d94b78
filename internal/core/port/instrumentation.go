package port

import "context"

// Instrumentation records application-level metrics.
type Instrumentation interface {
	RecordQueryDuration(ctx context.Context, ms float64)
	IncrementQueryCount(ctx context.Context)
	IncrementQueryErrors(ctx context.Context)
	IncrementRejections(ctx context.Context, reason string)
	RecordLLMDuration(ctx context.Context, ms float64)
}

// NoopInstrumentation discards all metrics.
type NoopInstrumentation struct{}

func (NoopInstrumentation) RecordQueryDuration(context.Context, float64)    {}
func (NoopInstrumentation) IncrementQueryCount(context.Context)             {}
func (NoopInstrumentation) IncrementQueryErrors(context.Context)            {}
func (NoopInstrumentation) IncrementRejections(context.Context, string)     {}
func (NoopInstrumentation) RecordLLMDuration(context.Context, float64)      {}
