package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pipboy3000/usual-tone-of-voice/internal/capability"
	"github.com/pipboy3000/usual-tone-of-voice/internal/eventstore"
	"github.com/pipboy3000/usual-tone-of-voice/internal/session"
)

const (
	maxNormalizeBody = 1 << 20
	actionTimeout    = 10 * time.Second
)

type sessionAPI interface {
	Execute(ctx context.Context, action string) error
	Status() session.Status
}

// api serves the local control surface. store and registry are optional.
type api struct {
	session  sessionAPI
	rewriter session.TextRewriter
	store    *eventstore.Store
	registry *capability.Registry
	ready    func() bool
	metrics  http.Handler
	logger   *slog.Logger
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /readyz", a.handleReady)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}
	mux.HandleFunc("GET /v1/session", a.handleStatus)
	mux.HandleFunc("POST /v1/session/{action}", a.handleAction)
	mux.HandleFunc("GET /v1/transcripts/last", a.handleLastTranscript)
	mux.HandleFunc("GET /v1/transcripts", a.handleTranscripts)
	mux.HandleFunc("GET /v1/sessions/{id}/events", a.handleSessionEvents)
	mux.HandleFunc("POST /v1/normalize", a.handleNormalize)
	mux.HandleFunc("GET /v1/nodes", a.handleNodes)
	return mux
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) handleReady(w http.ResponseWriter, _ *http.Request) {
	if a.ready != nil && a.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Status())
}

func (a *api) handleAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	ctx, cancel := context.WithTimeout(r.Context(), actionTimeout)
	defer cancel()

	if err := a.session.Execute(ctx, action); err != nil {
		a.logger.Info("session action rejected", slog.String("action", action), slogError(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.session.Status())
}

type transcriptResponse struct {
	SessionID string    `json:"session_id,omitempty"`
	Text      string    `json:"text"`
	Delivered bool      `json:"delivered"`
	Pasted    bool      `json:"pasted"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func (a *api) handleLastTranscript(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		tr, err := a.store.LatestTranscript(r.Context())
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, toTranscriptResponse(tr))
			return
		case !errors.Is(err, eventstore.ErrNotFound):
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	// ephemeral store: fall back to the controller's memory
	if text := a.session.Status().LastTranscript; text != "" {
		writeJSON(w, http.StatusOK, transcriptResponse{Text: text})
		return
	}
	writeError(w, http.StatusNotFound, session.ErrNothingToRecopy)
}

func (a *api) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var out []transcriptResponse
	if a.store != nil {
		list, err := a.store.RecentTranscripts(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, tr := range list {
			out = append(out, toTranscriptResponse(tr))
		}
	}
	if out == nil {
		out = []transcriptResponse{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	out := []json.RawMessage{}
	if a.store != nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		events, err := a.store.ListSessionEvents(r.Context(), r.PathValue("id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, ev := range events {
			out = append(out, json.RawMessage(ev.Payload))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type normalizeRequest struct {
	Text string `json:"text"`
}

func (a *api) handleNormalize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNormalizeBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req normalizeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"text\": \"...\"}"))
		return
	}
	writeJSON(w, http.StatusOK, normalizeRequest{Text: a.rewriter.Rewrite(req.Text)})
}

func (a *api) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := []capability.NodeInfo{}
	if a.registry != nil {
		nodes = append(nodes, a.registry.Nodes(nil)...)
	}
	writeJSON(w, http.StatusOK, nodes)
}

func toTranscriptResponse(tr eventstore.Transcript) transcriptResponse {
	return transcriptResponse{
		SessionID: tr.SessionID,
		Text:      tr.Text,
		Delivered: tr.Delivered,
		Pasted:    tr.Pasted,
		CreatedAt: tr.CreatedAt,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrUnknownAction), errors.Is(err, session.ErrNothingToRecopy):
		return http.StatusNotFound
	case errors.Is(err, session.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, session.ErrResourceUnavailable), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
