package ai

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docchat/internal/logger"
)

// BreakerGenerator guards a Generator with a circuit breaker and traces every
// call. Credential and request errors do not count against the breaker.
type BreakerGenerator struct {
	name    string
	next    Generator
	breaker *gobreaker.CircuitBreaker
	tracer  trace.Tracer
}

var _ Generator = (*BreakerGenerator)(nil)

func NewBreakerGenerator(name string, next Generator) *BreakerGenerator {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("ai: circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrProviderAuth) || errors.Is(err, ErrProviderRequest) || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerGenerator{
		name:    name,
		next:    next,
		breaker: breaker,
		tracer:  otel.Tracer("docchat/ai"),
	}
}

func (g *BreakerGenerator) Generate(ctx context.Context, req GenerateRequest) (*Completion, error) {
	return g.run(ctx, "ai.generate", req, func(ctx context.Context) (*Completion, error) {
		return g.next.Generate(ctx, req)
	})
}

func (g *BreakerGenerator) Stream(ctx context.Context, req GenerateRequest, onFragment func(string) error) (*Completion, error) {
	return g.run(ctx, "ai.stream", req, func(ctx context.Context) (*Completion, error) {
		return g.next.Stream(ctx, req, onFragment)
	})
}

func (g *BreakerGenerator) run(ctx context.Context, spanName string, req GenerateRequest, call func(context.Context) (*Completion, error)) (*Completion, error) {
	ctx, span := g.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("ai.provider", g.name),
		attribute.Int("ai.messages", len(req.Messages)),
		attribute.Int("ai.system_chars", len(req.System)),
	))
	defer span.End()

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return call(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &ProviderError{Provider: g.name, Kind: ErrProviderUnavailable, Message: err.Error()}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	completion := result.(*Completion)
	span.SetAttributes(
		attribute.Int("ai.input_tokens", completion.Usage.InputTokens),
		attribute.Int("ai.output_tokens", completion.Usage.OutputTokens),
	)
	return completion, nil
}
