package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/squadscrape/squadpanel/config"
	"github.com/squadscrape/squadpanel/handler/schema"
	"github.com/squadscrape/squadpanel/internal/execution/supervisor"
	"github.com/squadscrape/squadpanel/internal/execution/validation"
)

// maxBodySize limits the size of request bodies.
const maxBodySize = 1 << 20

type SlotHandlerParams struct {
	fx.In

	Supervisor supervisor.Supervisor
	Config     config.Config
	Log        *zap.Logger
}

func NewSlotHandler(params SlotHandlerParams) (*SlotHandler, error) {
	startSchema, err := schema.NewStartRequestSchema()
	if err != nil {
		return nil, err
	}

	return &SlotHandler{
		supervisor:  params.Supervisor,
		startSchema: startSchema,
		apiKey:      params.Config.Auth.Key,
		log:         params.Log.Named("slots"),
	}, nil
}

// SlotHandler exposes the supervisor over HTTP.
type SlotHandler struct {
	supervisor  supervisor.Supervisor
	startSchema *schema.Schema
	apiKey      string
	log         *zap.Logger
}

type startRequest struct {
	Worker string `json:"worker"`
	URL    string `json:"url"`
	Output string `json:"output"`
}

type startResponse struct {
	RunID string `json:"run_id"`
	URL   string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// List writes the status of all slots.
func (h *SlotHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	h.writeJSON(w, http.StatusOK, h.supervisor.Status())
}

// Start starts a worker in the slot named by the path.
func (h *SlotHandler) Start(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(zap.String("path", r.URL.Path))

	if !h.authorize(w, r) {
		return
	}

	slot, err := supervisor.ParseSlot(r.PathValue("slot"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		log.Debug("failed to read body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, errors.New("failed to read body"))
		return
	}

	if err := h.startSchema.Validate(body); err != nil {
		log.Debug("invalid start request", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	var req startRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	run, err := h.supervisor.Start(slot, supervisor.StartParams{
		Worker: req.Worker,
		URL:    req.URL,
		Output: req.Output,
	})
	if err != nil {
		log.Debug("start failed", zap.Error(err))
		h.writeError(w, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, startResponse{RunID: run.ID(), URL: run.URL()})
}

// Cancel cancels the run of the slot named by the path.
func (h *SlotHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	slot, err := supervisor.ParseSlot(r.PathValue("slot"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err)
		return
	}

	if err := h.supervisor.Cancel(slot); err != nil {
		h.log.Debug("cancel failed", zap.Stringer("slot", slot), zap.Error(err))
		h.writeError(w, statusFor(err), err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// MARK: - Helpers

func (h *SlotHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.apiKey == "" || r.Header.Get("api-key") == h.apiKey {
		return true
	}

	h.log.Debug("unauthorized request", zap.String("path", r.URL.Path))
	http.Error(w, "unauthorized", http.StatusUnauthorized)

	return false
}

func (h *SlotHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("failed to write response", zap.Error(err))
	}
}

func (h *SlotHandler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, validation.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrUnknownSlot):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrWorkerNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrNothingToCancel):
		return http.StatusConflict
	case errors.Is(err, supervisor.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
