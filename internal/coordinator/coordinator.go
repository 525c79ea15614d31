// Package coordinator is the entry point of the chat core. It admits
// requests under a concurrency policy, runs them one at a time on a
// dedicated worker and fans listener callbacks out on a single FIFO
// delivery goroutine.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-chat-core/internal/attempt"
	"github.com/tjfontaine/polyglot-chat-core/internal/capability"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-core/internal/memory"
	"github.com/tjfontaine/polyglot-chat-core/internal/pacing"
	"github.com/tjfontaine/polyglot-chat-core/internal/stream"
	"github.com/tjfontaine/polyglot-chat-core/internal/tokens"
)

const tracerName = "github.com/tjfontaine/polyglot-chat-core/internal/coordinator"

var (
	errSuperseded = errors.New("request superseded")
	errDropped    = errors.New("queued request replaced")
)

// GenerateOptions are the optional arguments of GenerateResponse.
type GenerateOptions struct {
	SystemMessage string
	RoleID        string // overrides the active role for this request
	UseMemory     bool
}

type job struct {
	id      domain.RequestID
	traceID string
	prompt  string
	opts    GenerateOptions

	ctx    context.Context
	cancel context.CancelCauseFunc

	// superseded is guarded by Coordinator.mu. A superseded job receives
	// no further callbacks.
	superseded bool

	// Set by the worker once the reply has been fully rendered; finish
	// stores it as a turn when the request completes.
	scope string
	reply string
}

// Coordinator owns request identity and the concurrency policy.
type Coordinator struct {
	clients  ports.ClientResolver
	caps     *capability.Cache
	memory   *memory.Store
	consumer *stream.Consumer
	logger   *slog.Logger
	tracer   trace.Tracer
	sleep    pacing.SleepFunc
	initial  []ports.Listener

	settings atomic.Pointer[Settings]
	disp     *dispatcher

	baseCtx context.Context
	stopAll context.CancelFunc

	mu        sync.Mutex
	nextID    domain.RequestID
	active    *job
	queued    *job
	pending   []*job
	liveFloor domain.RequestID
	closed    bool

	wake chan struct{}
	quit chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithCapabilities shares a capability cache.
func WithCapabilities(cache *capability.Cache) Option {
	return func(c *Coordinator) {
		c.caps = cache
	}
}

// WithMemory shares a conversation memory store.
func WithMemory(store *memory.Store) Option {
	return func(c *Coordinator) {
		c.memory = store
	}
}

// WithListener registers a listener at construction.
func WithListener(l ports.Listener) Option {
	return func(c *Coordinator) {
		c.initial = append(c.initial, l)
	}
}

// WithTracer overrides the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// WithPacingSleep replaces the render timer.
func WithPacingSleep(fn pacing.SleepFunc) Option {
	return func(c *Coordinator) {
		c.sleep = fn
	}
}

// New creates a coordinator and starts its worker and delivery goroutines.
// Close releases them.
func New(clients ports.ClientResolver, settings Settings, opts ...Option) *Coordinator {
	c := &Coordinator{
		clients: clients,
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
		sleep:   pacing.Sleep,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.caps == nil {
		c.caps = capability.New(capability.WithLogger(c.logger))
	}
	if c.memory == nil {
		c.memory = memory.New(memory.WithLogger(c.logger))
	}
	c.consumer = stream.NewConsumer(clients, c.caps,
		stream.WithLogger(c.logger),
		stream.WithTracer(c.tracer))

	s := settings.Normalize()
	c.settings.Store(&s)
	c.memory.EnsureScope(s.Scope())
	c.memory.SetCounter(counterFor(&s))

	c.baseCtx, c.stopAll = context.WithCancel(context.Background())
	c.disp = newDispatcher(c.live)
	for _, l := range c.initial {
		c.disp.add(l)
	}

	c.wg.Add(1)
	go c.work()
	return c
}

// AddListener registers l and returns a function that removes it.
func (c *Coordinator) AddListener(l ports.Listener) (remove func()) {
	return c.disp.add(l)
}

// Capabilities returns the shared capability cache.
func (c *Coordinator) Capabilities() *capability.Cache {
	return c.caps
}

// Memory returns the shared conversation memory.
func (c *Coordinator) Memory() *memory.Store {
	return c.memory
}

// Settings returns the current settings snapshot. Treat it as read-only.
func (c *Coordinator) Settings() Settings {
	return *c.settings.Load()
}

// UpdateSettings swaps the settings used by subsequent requests. A
// different provider or role scope clears conversation memory.
func (c *Coordinator) UpdateSettings(s Settings) {
	n := s.Normalize()
	old := c.settings.Swap(&n)
	c.memory.SetCounter(counterFor(&n))
	if c.memory.EnsureScope(n.Scope()) {
		c.logger.Info("memory scope changed",
			slog.String("from", old.Scope()),
			slog.String("to", n.Scope()))
	}
	c.logger.Info("settings updated",
		slog.String("primary_provider", n.PrimaryProvider),
		slog.String("policy", string(n.Policy)),
		slog.Bool("pacing", n.PacingEnabled))
}

// counterFor picks the tokenizer of the primary provider's model.
func counterFor(s *Settings) tokens.Counter {
	primary, _ := s.Primary()
	return tokens.ForModel(primary.Model)
}

// Active returns the in-flight request id, or zero.
func (c *Coordinator) Active() domain.RequestID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0
	}
	return c.active.id
}

// GenerateResponse admits a request under the current concurrency policy.
// It never blocks on the request itself. An empty prompt is a no-op; the
// returned bool is false when the request was not admitted.
func (c *Coordinator) GenerateResponse(prompt string, opts GenerateOptions) (domain.RequestID, bool) {
	if strings.TrimSpace(prompt) == "" {
		return 0, false
	}
	policy := c.settings.Load().Policy

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}

	busy := c.active != nil
	if busy && policy == domain.PolicyIgnoreNew {
		c.logger.Info("request ignored, another is in flight",
			slog.Uint64("active_id", uint64(c.active.id)),
			slog.String("policy", string(policy)))
		return 0, false
	}

	c.nextID++
	j := c.newJob(c.nextID, prompt, opts)

	if !busy {
		c.start(j)
		return j.id, true
	}

	switch policy {
	case domain.PolicyQueueLatest:
		if c.queued != nil {
			c.logger.Info("queued request replaced",
				slog.Uint64("request_id", uint64(c.queued.id)),
				slog.Uint64("replacement_id", uint64(j.id)))
			c.queued.cancel(errDropped)
		}
		c.queued = j
	default:
		c.logger.Info("superseding in-flight request",
			slog.Uint64("request_id", uint64(c.active.id)),
			slog.Uint64("replacement_id", uint64(j.id)))
		c.supersede(c.active)
		if c.queued != nil {
			c.queued.cancel(errDropped)
			c.queued = nil
		}
		c.liveFloor = j.id
		c.start(j)
	}
	return j.id, true
}

// Cancel stops the in-flight request. It finishes with
// OnAIError(domain.ErrCanceled) and any queued request starts after it.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return false
	}
	c.logger.Info("request canceled by user", slog.Uint64("request_id", uint64(c.active.id)))
	c.active.cancel(domain.ErrCanceled)
	return true
}

// Close cancels outstanding work without further callbacks and waits for
// the worker and delivery goroutines to exit.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, j := range append([]*job{c.active, c.queued}, c.pending...) {
		if j != nil {
			c.supersede(j)
		}
	}
	c.queued = nil
	c.liveFloor = c.nextID + 1
	c.mu.Unlock()

	c.stopAll()
	close(c.quit)
	c.wg.Wait()
	c.disp.stop()
	return nil
}

func (c *Coordinator) newJob(id domain.RequestID, prompt string, opts GenerateOptions) *job {
	ctx, cancel := context.WithCancelCause(c.baseCtx)
	return &job{
		id:      id,
		traceID: uuid.NewString(),
		prompt:  prompt,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// start makes j active and hands it to the worker. Callers hold c.mu.
func (c *Coordinator) start(j *job) {
	c.active = j
	c.pending = append(c.pending, j)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// supersede silences j and cancels its work. Callers hold c.mu.
func (c *Coordinator) supersede(j *job) {
	j.superseded = true
	j.cancel(errSuperseded)
}

// live is the delivery-time freshness check.
func (c *Coordinator) live(id domain.RequestID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id >= c.liveFloor
}

// emit queues a callback for j if j is still the active request.
func (c *Coordinator) emit(j *job, fn func(ports.Listener)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j.superseded || c.active != j {
		return
	}
	c.disp.enqueue(j.id, fn)
}

func (c *Coordinator) work() {
	defer c.wg.Done()
	for {
		j, ok := c.next()
		if !ok {
			return
		}
		c.run(j)
	}
}

func (c *Coordinator) next() (*job, bool) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, false
		}
		if len(c.pending) > 0 {
			j := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()
			return j, true
		}
		c.mu.Unlock()

		select {
		case <-c.wake:
		case <-c.quit:
			return nil, false
		}
	}
}

func (c *Coordinator) run(j *job) {
	defer j.cancel(nil)

	c.mu.Lock()
	skip := j.superseded
	c.mu.Unlock()
	if skip {
		return
	}

	ctx, span := c.tracer.Start(j.ctx, "chat.request", trace.WithAttributes(
		attribute.Int64("request_id", int64(j.id)),
		attribute.String("trace_id", j.traceID),
	))
	defer span.End()

	logger := c.logger.With(
		slog.Uint64("request_id", uint64(j.id)),
		slog.String("trace_id", j.traceID))

	c.emit(j, func(l ports.Listener) { l.OnAIPrepare() })
	err := c.execute(ctx, j, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.finish(j, err)
}

func (c *Coordinator) execute(ctx context.Context, j *job, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := c.settings.Load()

	primary, ok := s.Primary()
	if !ok {
		return c.synthesize(j, logger, "No AI provider is configured. Add one under providers in the config file.")
	}
	if _, ok := c.clients.Client(primary.ID); !ok {
		return c.synthesize(j, logger, fmt.Sprintf("No AI client is available for provider %q. Check the provider type in the config file.", primary.ID))
	}
	if strings.TrimSpace(primary.APIKey) == "" {
		return c.synthesize(j, logger, fmt.Sprintf("No API key is set for provider %q. Add api_key to its config entry.", primary.ID))
	}

	role := s.Role(j.opts.RoleID)
	scope := memory.ScopeKey(primary.ID, role.ID)
	if c.memory.EnsureScope(scope) {
		logger.Debug("memory scope switched", slog.String("scope", scope))
	}
	prompt := j.prompt
	if j.opts.UseMemory {
		prompt = c.memory.BuildPromptWithHistory(prompt, s.MemoryLevel, s.AutoSummarize)
	}

	chain := attempt.Build(primary, s.Fallback, s)
	logger.Info("request started",
		slog.String("chain", attempt.Describe(chain)),
		slog.String("role", role.ID),
		slog.Bool("use_memory", j.opts.UseMemory))

	var (
		sink     stream.Sink = directSink{c: c, j: j}
		renderer *pacing.Renderer
	)
	if s.PacingEnabled {
		renderer = pacing.NewRenderer(s.Pacing, rand.Uint64(), func(chunk string) {
			c.emit(j, func(l ports.Listener) { l.OnAINext(chunk) })
		}, pacing.WithSleep(c.sleep))
		renderer.Start(ctx)
		sink = renderSink{r: renderer}
	}

	res := c.consumer.Run(ctx, stream.Request{
		ID:            j.id,
		Prompt:        prompt,
		SystemMessage: MergeSystemMessage(role, j.opts.SystemMessage),
	}, chain, sink)

	if renderer != nil {
		renderer.Close()
		if err := renderer.Wait(ctx); err != nil && res.Err == nil {
			res.Err = err
		}
	}
	if res.Err == nil && ctx.Err() != nil {
		res.Err = ctx.Err()
	}
	if res.Err == nil {
		j.scope, j.reply = scope, res.Text
	}

	logger.Info("request finished",
		slog.Int("attempts", res.Attempts),
		slog.Int("chars", len(res.Text)),
		slog.Bool("ok", res.Err == nil))
	return res.Err
}

// synthesize answers a configuration problem with a message the user can
// read instead of an error.
func (c *Coordinator) synthesize(j *job, logger *slog.Logger, msg string) error {
	logger.Warn("configuration problem, answering with synthetic message", slog.String("message", msg))
	c.emit(j, func(l ports.Listener) { l.OnAINext(msg) })
	return nil
}

// finish delivers the terminal callback and starts the queued request.
func (c *Coordinator) finish(j *job, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != j {
		return
	}
	if !j.superseded {
		switch {
		case err == nil:
			c.remember(j)
			c.disp.enqueue(j.id, func(l ports.Listener) { l.OnAIComplete() })
		case stream.IsCanceled(err):
			c.disp.enqueue(j.id, func(l ports.Listener) { l.OnAIError(domain.ErrCanceled) })
		default:
			c.disp.enqueue(j.id, func(l ports.Listener) { l.OnAIError(err) })
		}
	}

	c.active = nil
	if c.queued != nil && !c.closed {
		q := c.queued
		c.queued = nil
		c.start(q)
	}
}

// remember stores j's turn. Callers hold c.mu, so a request that was
// superseded or canceled before completing never reaches memory.
func (c *Coordinator) remember(j *job) {
	if !j.opts.UseMemory || j.reply == "" {
		return
	}
	c.memory.Append(j.scope, domain.ConversationTurn{User: j.prompt, Assistant: j.reply})
}

type directSink struct {
	c *Coordinator
	j *job
}

func (s directSink) OnSubscribe(context.CancelFunc) {}

func (s directSink) OnNext(chunk string) {
	s.c.emit(s.j, func(l ports.Listener) { l.OnAINext(chunk) })
}

type renderSink struct {
	r *pacing.Renderer
}

func (s renderSink) OnSubscribe(context.CancelFunc) {}

func (s renderSink) OnNext(chunk string) {
	s.r.Push(chunk)
}
