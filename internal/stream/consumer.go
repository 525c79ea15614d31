// Package stream executes the attempt chain for one request: it consumes
// each provider stream, classifies failures and drives single-shot
// parameter downgrades before falling back to the next attempt.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-chat-core/internal/capability"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

const tracerName = "github.com/tjfontaine/polyglot-chat-core/internal/stream"

// Request is what the consumer needs to run one request.
type Request struct {
	ID            domain.RequestID
	Prompt        string // sent to the provider, history included
	SystemMessage string
}

// Sink receives the stream of one request. OnSubscribe is called once per
// attempt execution with the handle that cancels it.
type Sink interface {
	OnSubscribe(cancel context.CancelFunc)
	OnNext(chunk string)
}

// SinkFunc adapts a chunk callback to Sink.
type SinkFunc func(chunk string)

func (f SinkFunc) OnSubscribe(context.CancelFunc) {}
func (f SinkFunc) OnNext(chunk string)            { f(chunk) }

// Result is the outcome of Run.
type Result struct {
	Text       string
	Err        error
	Attempts   int // attempt executions, retries included
	Downgrades DowngradeState
}

type decision int

const (
	retrySame decision = iota
	advance
)

// Consumer runs attempt chains. It is safe for concurrent use; all
// per-request state lives on the stack of Run.
type Consumer struct {
	clients ports.ClientResolver
	caps    *capability.Cache
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Consumer) {
		c.tracer = tracer
	}
}

// NewConsumer creates a consumer.
func NewConsumer(clients ports.ClientResolver, caps *capability.Cache, opts ...Option) *Consumer {
	c := &Consumer{
		clients: clients,
		caps:    caps,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.caps == nil {
		c.caps = capability.New(capability.WithLogger(c.logger))
	}
	return c
}

// Run executes chain until an attempt succeeds, a failure is terminal, or
// ctx is cancelled. Chunks are forwarded to sink in arrival order.
func (c *Consumer) Run(ctx context.Context, req Request, chain []domain.Attempt, sink Sink) Result {
	var (
		res Result
		buf strings.Builder
	)
	if len(chain) == 0 {
		res.Err = domain.ErrNoAttempts
		return res
	}

	logger := c.logger.With(slog.Uint64("request_id", uint64(req.ID)))

	for i := 0; i < len(chain); {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		a := chain[i]
		call := c.prepare(a, req)
		res.Attempts++
		err := c.execute(ctx, a, call, &buf, sink)
		if err == nil {
			break
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Err = ctxErr
			break
		}
		if buf.Len() > 0 {
			logger.Error("stream failed after output started",
				slog.Int("attempt", a.Index),
				slog.String("provider", a.Provider.ID),
				slog.String("error", err.Error()))
			res.Err = err
			break
		}

		if c.classify(ctx, logger, a, call, err, &res.Downgrades) == retrySame {
			continue
		}
		if i+1 < len(chain) {
			logger.Info("falling back to next attempt",
				slog.Int("attempt", a.Index),
				slog.String("from", string(a.Kind)),
				slog.String("to", string(chain[i+1].Kind)),
				slog.String("error", err.Error()))
			trace.SpanFromContext(ctx).AddEvent("fallback.advance", trace.WithAttributes(
				attribute.Int("attempt.index", i+1),
				attribute.String("attempt.kind", string(chain[i+1].Kind)),
			))
			i++
			continue
		}

		logger.Error("attempt chain exhausted",
			slog.Int("attempts", res.Attempts),
			slog.String("error", err.Error()))
		res.Err = err
		break
	}

	res.Text = buf.String()
	return res
}

// prepare builds the immutable call for one attempt execution. Cached
// capabilities are consulted on every execution, so a downgrade learned by
// the previous execution takes effect on the retry.
func (c *Consumer) prepare(a domain.Attempt, req Request) domain.CallRequest {
	p := a.Provider.Clone()
	call := domain.CallRequest{
		Provider:        p.ID,
		Model:           p.Model,
		APIKey:          p.APIKey,
		BaseURL:         a.BaseURL(),
		StreamMode:      a.StreamMode(),
		Prompt:          req.Prompt,
		SystemMessage:   req.SystemMessage,
		MaxTokens:       p.MaxTokens,
		ReasoningEffort: p.ReasoningEffort,
	}

	if safe, ok := c.caps.SafeMaxTokens(p.ID, p.Model); ok && (call.MaxTokens == 0 || call.MaxTokens > safe) {
		call.MaxTokens = safe
	}
	if c.caps.SamplingAllowed(p.ID, p.Model) {
		call.Temperature = p.Temperature
		call.TopP = p.TopP
	}
	if call.ReasoningEffort != "" && !c.caps.ReasoningAllowed(p.ID, p.Model) {
		call.ReasoningEffort = ""
	}
	return call
}

// execute runs one attempt and returns nil on success. The first terminal
// event wins; anything after it is drained and ignored.
func (c *Consumer) execute(ctx context.Context, a domain.Attempt, call domain.CallRequest, buf *strings.Builder, sink Sink) (err error) {
	ctx, span := c.tracer.Start(ctx, "chat.attempt", trace.WithAttributes(
		attribute.String("provider", call.Provider),
		attribute.String("submodel", call.Model),
		attribute.Int("attempt.index", a.Index),
		attribute.String("attempt.kind", string(a.Kind)),
		attribute.String("stream_mode", string(call.StreamMode)),
		attribute.Int("max_tokens", call.MaxTokens),
		attribute.Bool("sampling", call.HasSampling()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	client, ok := c.clients.Client(call.Provider)
	if !ok {
		return domain.NewAPIError(domain.ErrorTypeNotFound,
			fmt.Sprintf("no client configured for provider %q", call.Provider))
	}

	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	sink.OnSubscribe(cancel)

	events, err := client.Stream(actx, &call)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			cancel()
			go drain(events)
			return ctx.Err()
		case ev, open := <-events:
			if !open {
				if err := ctx.Err(); err != nil {
					return err
				}
				return domain.ErrServer("stream closed without a terminal event")
			}
			switch ev.Type {
			case domain.EventTypeContentDelta:
				if ev.ContentDelta == "" {
					continue
				}
				buf.WriteString(ev.ContentDelta)
				sink.OnNext(ev.ContentDelta)
			case domain.EventTypeError:
				cancel()
				go drain(events)
				if ev.Error == nil {
					return domain.ErrServer("stream failed without a message")
				}
				return ev.Error
			case domain.EventTypeDone:
				cancel()
				go drain(events)
				return nil
			}
		}
	}
}

// classify decides between a downgrade retry of the same attempt and
// advancing the chain. It only runs while nothing has been emitted.
func (c *Consumer) classify(ctx context.Context, logger *slog.Logger, a domain.Attempt, call domain.CallRequest, err error, state *DowngradeState) decision {
	apiErr := domain.ToAPIError(err)
	span := trace.SpanFromContext(ctx)
	provider, submodel := call.Provider, call.Model

	if !state.RetriedMaxTokens && isMaxTokensError(apiErr) {
		if safe, ok := DeriveSafeMaxTokens(apiErr.Message, call.MaxTokens); ok && c.caps.SetSafeMaxTokens(ctx, provider, submodel, safe) {
			state.RetriedMaxTokens = true
			logger.Info("downgrading max tokens",
				slog.String("provider", provider),
				slog.String("submodel", submodel),
				slog.Int("from", call.MaxTokens),
				slog.Int("to", safe))
			span.AddEvent("downgrade.max_tokens", trace.WithAttributes(
				attribute.Int("from", call.MaxTokens),
				attribute.Int("to", safe),
			))
			return retrySame
		}
	}

	if !state.RetriedSamplingParams && call.HasSampling() && isSamplingError(apiErr) {
		state.RetriedSamplingParams = true
		c.caps.SetSupportsTemperature(ctx, provider, submodel, false)
		logger.Info("dropping sampling parameters",
			slog.String("provider", provider),
			slog.String("submodel", submodel))
		span.AddEvent("downgrade.sampling")
		return retrySame
	}

	if !state.RetriedReasoning && call.ReasoningEffort != "" && isReasoningError(apiErr) {
		state.RetriedReasoning = true
		c.caps.SetSupportsReasoning(ctx, provider, submodel, false)
		logger.Info("dropping reasoning parameters",
			slog.String("provider", provider),
			slog.String("submodel", submodel))
		span.AddEvent("downgrade.reasoning")
		return retrySame
	}

	logger.Debug("attempt failed",
		slog.Int("attempt", a.Index),
		slog.String("type", string(apiErr.Type)),
		slog.String("error", err.Error()))
	return advance
}

// drain discards events until the producer closes the channel.
func drain(events <-chan domain.StreamEvent) {
	for range events {
	}
}

// IsCanceled reports whether err came from cancellation rather than the
// provider.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrCanceled)
}
