package domain

import "time"

// RequestID identifies a request within one coordinator. IDs are strictly
// increasing; zero means "no request".
type RequestID uint64

// StreamMode selects how a provider response is delivered.
type StreamMode string

const (
	// StreamModeStream consumes server-sent deltas as they arrive.
	StreamModeStream StreamMode = "stream"
	// StreamModeTypewriter requests a non-streaming response that is
	// rendered locally as if it were typed.
	StreamModeTypewriter StreamMode = "typewriter"
)

// ConcurrencyPolicy decides what happens when a request arrives while
// another one is in flight.
type ConcurrencyPolicy string

const (
	PolicyCancelPrevious ConcurrencyPolicy = "cancel_previous"
	PolicyIgnoreNew      ConcurrencyPolicy = "ignore_new"
	PolicyQueueLatest    ConcurrencyPolicy = "queue_latest"
)

// Valid reports whether p is a known policy.
func (p ConcurrencyPolicy) Valid() bool {
	switch p {
	case PolicyCancelPrevious, PolicyIgnoreNew, PolicyQueueLatest:
		return true
	}
	return false
}

// TriState is learned knowledge that may not be known yet.
type TriState int8

const (
	Unknown TriState = iota
	True
	False
)

// TriStateOf converts a learned boolean.
func TriStateOf(b bool) TriState {
	if b {
		return True
	}
	return False
}

// Known reports whether the value has been learned.
func (t TriState) Known() bool { return t != Unknown }

// Or returns t when known, otherwise fallback.
func (t TriState) Or(fallback bool) bool {
	switch t {
	case True:
		return true
	case False:
		return false
	}
	return fallback
}

// MarshalText encodes t as "true", "false" or "unknown".
func (t TriState) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the MarshalText forms; anything else is unknown.
func (t *TriState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "true":
		*t = True
	case "false":
		*t = False
	default:
		*t = Unknown
	}
	return nil
}

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unknown"
}

// ProviderProfile holds the stored field values of one configured provider.
type ProviderProfile struct {
	ID              string
	Model           string
	APIKey          string
	BaseURL         string
	StreamMode      StreamMode
	MaxTokens       int      // 0 omits the field
	Temperature     *float64 // nil omits the field
	TopP            *float64
	ReasoningEffort string // "" omits the field
}

// Clone returns a deep copy so attempt descriptors never alias settings.
func (p ProviderProfile) Clone() ProviderProfile {
	out := p
	if p.Temperature != nil {
		v := *p.Temperature
		out.Temperature = &v
	}
	if p.TopP != nil {
		v := *p.TopP
		out.TopP = &v
	}
	return out
}

// AttemptKind labels where an attempt sits in the fallback chain.
type AttemptKind string

const (
	AttemptPrimary        AttemptKind = "primary"
	AttemptTypewriter     AttemptKind = "typewriter"
	AttemptBackupURL      AttemptKind = "backup_url"
	AttemptBackupProvider AttemptKind = "backup_provider"
)

// Attempt is one concrete configuration tried within a request.
type Attempt struct {
	Index              int
	Kind               AttemptKind
	Provider           ProviderProfile
	StreamModeOverride StreamMode // "" keeps the provider's mode
	BaseURLOverride    string     // "" keeps the provider's URL
}

// StreamMode resolves the effective stream mode.
func (a Attempt) StreamMode() StreamMode {
	if a.StreamModeOverride != "" {
		return a.StreamModeOverride
	}
	if a.Provider.StreamMode == "" {
		return StreamModeStream
	}
	return a.Provider.StreamMode
}

// BaseURL resolves the effective base URL.
func (a Attempt) BaseURL() string {
	if a.BaseURLOverride != "" {
		return a.BaseURLOverride
	}
	return a.Provider.BaseURL
}

// CallRequest is the immutable descriptor handed to a Client for one
// execution of an attempt. It is built by copy; nothing shared is mutated.
type CallRequest struct {
	Provider        string
	Model           string
	APIKey          string
	BaseURL         string
	StreamMode      StreamMode
	Prompt          string
	SystemMessage   string
	MaxTokens       int
	Temperature     *float64
	TopP            *float64
	ReasoningEffort string
}

// HasSampling reports whether sampling fields will be sent.
func (r *CallRequest) HasSampling() bool {
	return r.Temperature != nil || r.TopP != nil
}

// StreamEventType identifies the type of streaming event.
type StreamEventType string

const (
	EventTypeContentDelta StreamEventType = "content_delta"
	EventTypeError        StreamEventType = "error"
	EventTypeDone         StreamEventType = "done"
)

// StreamEvent is one push from a provider stream. A stream emits any number
// of content deltas and then at most one terminal event (done or error).
type StreamEvent struct {
	Type         StreamEventType
	ContentDelta string
	Error        error
}

// ConversationTurn is one completed (user, assistant) exchange.
type ConversationTurn struct {
	User      string
	Assistant string
}

// CapabilityRecord is the persisted form of one capability cache entry.
type CapabilityRecord struct {
	Provider            string
	Submodel            string
	SupportsTemperature TriState
	SupportsReasoning   TriState
	SafeMaxTokens       int
	UpdatedAt           time.Time
}

// Role is a named persona whose prompt prefixes the system message.
type Role struct {
	ID     string
	Name   string
	Prompt string
}

// DefaultRoleID names the built-in role.
const DefaultRoleID = "default"
