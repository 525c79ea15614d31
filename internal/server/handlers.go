package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/polyglot-chat-core/internal/coordinator"
)

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	Prompt        string `json:"prompt"`
	SystemMessage string `json:"system_message,omitempty"`
	Role          string `json:"role,omitempty"`
	// UseMemory defaults to true.
	UseMemory *bool `json:"use_memory,omitempty"`
}

// GenerateResponse is returned by POST /v1/generate.
type GenerateResponse struct {
	RequestID uint64 `json:"request_id,omitempty"`
	Accepted  bool   `json:"accepted"`
}

// CapabilityView is the JSON form of one learned capability entry.
type CapabilityView struct {
	Provider            string    `json:"provider"`
	Submodel            string    `json:"submodel"`
	SupportsTemperature string    `json:"supports_temperature"`
	SupportsReasoning   string    `json:"supports_reasoning"`
	SafeMaxTokens       int       `json:"safe_max_tokens,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// SettingsView summarizes the active settings without secrets.
type SettingsView struct {
	PrimaryProvider string   `json:"primary_provider"`
	Providers       []string `json:"providers"`
	Policy          string   `json:"policy"`
	MemoryLevel     int      `json:"memory_level"`
	AutoSummarize   bool     `json:"auto_summarize"`
	ActiveRole      string   `json:"active_role"`
	PacingEnabled   bool     `json:"pacing_enabled"`
	PacingModel     string   `json:"pacing_model"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	AddError(r.Context(), err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("prompt is required"))
		return
	}

	useMemory := req.UseMemory == nil || *req.UseMemory
	id, ok := s.coord.GenerateResponse(req.Prompt, coordinator.GenerateOptions{
		SystemMessage: req.SystemMessage,
		RoleID:        req.Role,
		UseMemory:     useMemory,
	})
	if !ok {
		AddLogField(r.Context(), "admission", "rejected")
		writeJSON(w, http.StatusConflict, GenerateResponse{Accepted: false})
		return
	}

	AddLogField(r.Context(), "chat_request_id", fmt.Sprint(id))
	writeJSON(w, http.StatusAccepted, GenerateResponse{RequestID: uint64(id), Accepted: true})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": s.coord.Cancel()})
}

func (s *Server) handleListCapabilities(w http.ResponseWriter, r *http.Request) {
	records := s.coord.Capabilities().Snapshot()
	out := make([]CapabilityView, 0, len(records))
	for _, rec := range records {
		out = append(out, CapabilityView{
			Provider:            rec.Provider,
			Submodel:            rec.Submodel,
			SupportsTemperature: rec.SupportsTemperature.String(),
			SupportsReasoning:   rec.SupportsReasoning.String(),
			SafeMaxTokens:       rec.SafeMaxTokens,
			UpdatedAt:           rec.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleResetCapabilities(w http.ResponseWriter, r *http.Request) {
	s.coord.Capabilities().Reset(r.Context())
	s.logger.Info("capabilities reset", slog.String("request_id", GetRequestID(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	s.coord.Memory().Clear()
	s.logger.Info("conversation memory cleared", slog.String("request_id", GetRequestID(r.Context())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	st := s.coord.Settings()
	view := SettingsView{
		PrimaryProvider: st.PrimaryProvider,
		Providers:       make([]string, 0, len(st.Providers)),
		Policy:          string(st.Policy),
		MemoryLevel:     st.MemoryLevel,
		AutoSummarize:   st.AutoSummarize,
		ActiveRole:      st.ActiveRole,
		PacingEnabled:   st.PacingEnabled,
		PacingModel:     string(st.Pacing.Model),
	}
	for _, p := range st.Providers {
		view.Providers = append(view.Providers, p.ID)
	}
	writeJSON(w, http.StatusOK, view)
}

// handleEvents streams listener callbacks as server-sent events. Each
// event's name is its callback type and its data is the JSON Event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	events, unsubscribe := s.events.subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
