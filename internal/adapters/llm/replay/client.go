// Package replay implements a scripted ports.Client. A YAML script decides
// what the fake backend says and how it misbehaves, so the fallback chain,
// parameter downgrades and pacing can be driven without a network.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

// DefaultMaxTokensMessage mimics the wording of OpenAI-compatible backends.
const DefaultMaxTokensMessage = "max_tokens is too large: {requested}. This model supports at most {limit} completion tokens, whereas you provided {requested}."

// Script describes one fake backend.
type Script struct {
	// Reply is the full response text. Empty echoes the prompt.
	Reply string `yaml:"reply"`
	// ChunkSize is the number of runes per content delta. 0 sends one delta.
	ChunkSize  int           `yaml:"chunk_size"`
	ChunkDelay time.Duration `yaml:"chunk_delay"`

	// FailFirst fails the first N calls with a server error.
	FailFirst   int    `yaml:"fail_first"`
	FailMessage string `yaml:"fail_message"`
	// FailAfterChars breaks the stream after emitting this many runes.
	FailAfterChars int `yaml:"fail_after_chars"`

	// MaxTokensLimit rejects requests asking for more output tokens.
	MaxTokensLimit int `yaml:"max_tokens_limit"`
	// MaxTokensMessage supports the {limit} and {requested} placeholders.
	MaxTokensMessage string `yaml:"max_tokens_message"`

	RejectSampling  bool `yaml:"reject_sampling"`
	RejectReasoning bool `yaml:"reject_reasoning"`
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read replay script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("failed to parse replay script %s: %w", path, err)
	}
	return s, nil
}

// Client plays a Script. It is safe for concurrent use.
type Client struct {
	script Script
	calls  atomic.Int64
	logger *slog.Logger
}

var _ ports.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for script.
func New(script Script, opts ...Option) *Client {
	c := &Client{
		script: script,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calls returns how many times Stream has been called.
func (c *Client) Calls() int {
	return int(c.calls.Load())
}

// Stream implements ports.Client.
func (c *Client) Stream(ctx context.Context, req *domain.CallRequest) (<-chan domain.StreamEvent, error) {
	n := c.calls.Add(1)
	c.logger.Debug("replay call",
		slog.String("provider", req.Provider),
		slog.String("model", req.Model),
		slog.Int64("call", n),
		slog.Int("max_tokens", req.MaxTokens))

	if err := c.reject(int(n), req); err != nil {
		return nil, err
	}

	text := c.script.Reply
	if text == "" {
		text = "You said: " + req.Prompt
	}
	chunks := split(text, c.script.ChunkSize)
	if req.StreamMode == domain.StreamModeTypewriter {
		chunks = []string{text}
	}

	out := make(chan domain.StreamEvent)
	go c.play(ctx, chunks, out)
	return out, nil
}

func (c *Client) reject(call int, req *domain.CallRequest) error {
	s := c.script
	switch {
	case call <= s.FailFirst:
		msg := s.FailMessage
		if msg == "" {
			msg = "upstream unavailable"
		}
		return domain.ErrServer(msg).WithStatusCode(503)

	case s.RejectSampling && req.HasSampling():
		return domain.ErrUnsupportedParam("temperature",
			"Unsupported parameter: 'temperature' is not supported with this model.").
			WithStatusCode(400)

	case s.RejectReasoning && req.ReasoningEffort != "":
		return domain.ErrUnsupportedParam("reasoning_effort",
			"Unsupported parameter: 'reasoning_effort' is not supported with this model.").
			WithStatusCode(400)

	case s.MaxTokensLimit > 0 && req.MaxTokens > s.MaxTokensLimit:
		tmpl := s.MaxTokensMessage
		if tmpl == "" {
			tmpl = DefaultMaxTokensMessage
		}
		msg := strings.NewReplacer(
			"{limit}", strconv.Itoa(s.MaxTokensLimit),
			"{requested}", strconv.Itoa(req.MaxTokens),
		).Replace(tmpl)
		return domain.NewAPIError(domain.ErrorTypeInvalidRequest, msg).
			WithParam("max_tokens").
			WithStatusCode(400)
	}
	return nil
}

func (c *Client) play(ctx context.Context, chunks []string, out chan<- domain.StreamEvent) {
	defer close(out)

	send := func(ev domain.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	emitted := 0
	for i, chunk := range chunks {
		if i > 0 && c.script.ChunkDelay > 0 {
			timer := time.NewTimer(c.script.ChunkDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		if limit := c.script.FailAfterChars; limit > 0 {
			runes := []rune(chunk)
			if emitted+len(runes) >= limit {
				if head := string(runes[:limit-emitted]); head != "" {
					if !send(domain.StreamEvent{Type: domain.EventTypeContentDelta, ContentDelta: head}) {
						return
					}
				}
				send(domain.StreamEvent{
					Type:  domain.EventTypeError,
					Error: domain.ErrServer("stream interrupted: connection reset by peer"),
				})
				return
			}
			emitted += len(runes)
		}

		if !send(domain.StreamEvent{Type: domain.EventTypeContentDelta, ContentDelta: chunk}) {
			return
		}
	}
	send(domain.StreamEvent{Type: domain.EventTypeDone})
}

func split(text string, size int) []string {
	runes := []rune(text)
	if size <= 0 || size >= len(runes) {
		return []string{text}
	}
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
