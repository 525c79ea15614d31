package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/llm/replay"
	"github.com/tjfontaine/polyglot-chat-core/internal/coordinator"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
)

func newTestServer(t *testing.T, script replay.Script) (*Server, *coordinator.Coordinator) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	settings := coordinator.DefaultSettings()
	settings.Providers = []domain.ProviderProfile{{ID: "replay", Model: "scripted", APIKey: "k"}}
	settings.PrimaryProvider = "replay"

	coord := coordinator.New(ports.StaticClients{"replay": replay.New(script)}, settings,
		coordinator.WithLogger(logger))
	t.Cleanup(func() { coord.Close() })

	return New(0, coord, logger), coord
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, replay.Script{})

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestGenerate_Validation(t *testing.T) {
	s, _ := newTestServer(t, replay.Script{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{`, http.StatusBadRequest},
		{"empty prompt", `{"prompt":"   "}`, http.StatusBadRequest},
		{"accepted", `{"prompt":"hi"}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(tt.body))
			s.Router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestGenerate_IgnoreNewConflicts(t *testing.T) {
	s, coord := newTestServer(t, replay.Script{Reply: "slow", ChunkSize: 1, ChunkDelay: time.Second})
	st := coord.Settings()
	st.Policy = domain.PolicyIgnoreNew
	coord.UpdateSettings(st)

	post := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(`{"prompt":"go"}`)))
		return rec
	}

	if rec := post(); rec.Code != http.StatusAccepted {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := post()
	if rec.Code != http.StatusConflict {
		t.Fatalf("second status = %d, want 409", rec.Code)
	}
	var resp GenerateResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Accepted {
		t.Error("second request reported accepted")
	}

	cancel := httptest.NewRecorder()
	s.Router.ServeHTTP(cancel, httptest.NewRequest(http.MethodPost, "/v1/cancel", nil))
	if !strings.Contains(cancel.Body.String(), `"canceled":true`) {
		t.Errorf("cancel body = %s", cancel.Body.String())
	}
}

func readEvent(t *testing.T, r *bufio.Reader) Event {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			var ev Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				t.Fatalf("bad event %q: %v", data, err)
			}
			return ev
		}
	}
}

func TestEvents_StreamsListenerCallbacks(t *testing.T) {
	s, _ := newTestServer(t, replay.Script{Reply: "hello there", ChunkSize: 5})
	ts := httptest.NewServer(s.Router)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /v1/events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q", line)
	}

	post, err := http.Post(ts.URL+"/v1/generate", "application/json", strings.NewReader(`{"prompt":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("generate status = %d", post.StatusCode)
	}

	var got []string
	for {
		ev := readEvent(t, reader)
		if ev.Type == "next" {
			got = append(got, "next:"+ev.Chunk)
		} else {
			got = append(got, ev.Type)
		}
		if ev.Type == "complete" || ev.Type == "error" {
			break
		}
	}

	want := []string{"prepare", "next:hello", "next: ther", "next:e", "complete"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", got, want)
	}

	cancel()
	s.Shutdown(context.Background())
}

func TestCapabilitiesAdmin(t *testing.T) {
	s, coord := newTestServer(t, replay.Script{})
	coord.Capabilities().SetSafeMaxTokens(context.Background(), "OpenAI", "gpt-4o", 4096)
	coord.Capabilities().SetSupportsTemperature(context.Background(), "openai", "gpt-4o", false)

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/capabilities", nil))
	var views []CapabilityView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("got %d entries, want 1", len(views))
	}
	if v := views[0]; v.Provider != "openai" || v.SafeMaxTokens != 4096 || v.SupportsTemperature != "false" || v.SupportsReasoning != "unknown" {
		t.Errorf("view = %+v", v)
	}

	rec = httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/capabilities", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	if n := len(coord.Capabilities().Snapshot()); n != 0 {
		t.Errorf("%d entries left after reset", n)
	}
}

func TestClearMemory(t *testing.T) {
	s, coord := newTestServer(t, replay.Script{})
	coord.Memory().Append(coord.Memory().Scope(), domain.ConversationTurn{User: "q", Assistant: "a"})

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/memory", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if coord.Memory().Len() != 0 {
		t.Error("memory not cleared")
	}
}

func TestSettingsHidesSecrets(t *testing.T) {
	s, _ := newTestServer(t, replay.Script{})

	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/settings", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `"primary_provider":"replay"`) {
		t.Errorf("body = %s", body)
	}
	if strings.Contains(body, `"k"`) {
		t.Errorf("settings leaked api key: %s", body)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"generated", "", false},
		{"kept", "1b4e28ba-2fa1-11d2-883f-0016d3cca427", true},
		{"garbage replaced", "not-a-uuid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" || rec.Header().Get(RequestIDHeader) != seen {
				t.Fatalf("context id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
			}
			if (seen == tt.incoming) != tt.keep {
				t.Errorf("id = %q, incoming %q, keep %v", seen, tt.incoming, tt.keep)
			}
		})
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestIDMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "provider", "replay")
		AddError(r.Context(), io.ErrUnexpectedEOF)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/generate", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line: %v (%s)", err, buf.String())
	}
	checks := map[string]any{
		"msg":      "request completed",
		"status":   float64(http.StatusTeapot),
		"bytes":    float64(5),
		"provider": "replay",
		"error":    io.ErrUnexpectedEOF.Error(),
		"path":     "/v1/generate",
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s = %v, want %v", k, entry[k], want)
		}
	}
	if entry["request_id"] == "" {
		t.Error("request_id missing")
	}
}
