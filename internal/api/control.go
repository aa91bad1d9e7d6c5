package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/steptrace/internal/coordinator"
	"github.com/kalambet/steptrace/internal/export"
	"github.com/kalambet/steptrace/internal/model"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxEventBodySize = 16 << 20  // 16MB

// Recorder is the coordinator surface exposed over HTTP and MCP.
type Recorder interface {
	Status(ctx context.Context) (model.Settings, error)
	Start(ctx context.Context, opts *model.OptionsPatch) (model.Settings, error)
	Stop(ctx context.Context) (model.Settings, error)
	Clear(ctx context.Context) (model.Settings, error)
	SetOptions(ctx context.Context, opts *model.OptionsPatch) (model.Settings, error)
	Export(ctx context.Context) (coordinator.ExportResult, error)
	OnActionEvent(ctx context.Context, ev model.ActionEvent) (coordinator.StepResult, bool, error)
}

type ControlDeps struct {
	Recorder Recorder
	Token    string
}

// EventResponse answers POST /events.
type EventResponse struct {
	OK         bool `json:"ok"`
	StepNumber *int `json:"stepNumber,omitempty"`
}

// NewControlHandler returns the recorder control API. Everything but
// /health requires the bearer token.
func NewControlHandler(deps ControlDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/status", handleSettingsOp(deps.Recorder.Status))
		r.Post("/recording/start", handleStart(deps))
		r.Post("/recording/stop", handleSettingsOp(deps.Recorder.Stop))
		r.Post("/recording/clear", handleSettingsOp(deps.Recorder.Clear))
		r.Patch("/options", handleSetOptions(deps))
		r.Get("/export", handleExport(deps))
		r.Post("/events", handleEvent(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSettingsOp(op func(context.Context) (model.Settings, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := op(r.Context())
		if err != nil {
			recorderError(w, err)
			return
		}
		writeJSON(w, st)
	}
}

func handleStart(deps ControlDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Options *model.OptionsPatch `json:"options"`
		}
		if !decodeOptional(w, r, &req) {
			return
		}
		st, err := deps.Recorder.Start(r.Context(), req.Options)
		if err != nil {
			recorderError(w, err)
			return
		}
		writeJSON(w, st)
	}
}

func handleSetOptions(deps ControlDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch model.OptionsPatch
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		st, err := deps.Recorder.SetOptions(r.Context(), &patch)
		if err != nil {
			recorderError(w, err)
			return
		}
		writeJSON(w, st)
	}
}

func handleExport(deps ControlDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Recorder.Export(r.Context())
		if err != nil {
			recorderError(w, err)
			return
		}
		// ?download=1 returns the bare episode file.
		if r.URL.Query().Get("download") != "" {
			if res.Episode == nil {
				httpError(w, http.StatusNotFound, "not_found_error", "%s", res.LastMessage)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(res.Episode.EpisodeID)+`"`)
			export.Encode(w, res.Episode)
			return
		}
		writeJSON(w, res)
	}
}

func handleEvent(deps ControlDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxEventBodySize)
		defer r.Body.Close()

		var ev model.ActionEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if ev.Kind == "" {
			ev.Kind = model.KindStep
		}
		res, ok, err := deps.Recorder.OnActionEvent(r.Context(), ev)
		if err != nil {
			recorderError(w, err)
			return
		}
		out := EventResponse{OK: ok}
		if ok {
			out.StepNumber = &res.StepNumber
		}
		writeJSON(w, out)
	}
}

// decodeOptional decodes an optional JSON body into v. An empty body is
// accepted.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
	return false
}

func recorderError(w http.ResponseWriter, err error) {
	if errors.Is(err, coordinator.ErrClosed) {
		httpError(w, http.StatusServiceUnavailable, "unavailable_error", "recorder is shutting down")
		return
	}
	httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
}
