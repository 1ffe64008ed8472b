package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockd/stockd/internal/app/taskctl"
	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
)

type handlers struct {
	svc    *taskctl.Service
	logger log.Logger
}

type taskDTO struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	CurrentIndex   int             `json:"current_index"`
	TotalItems     int             `json:"total_items"`
	Stats          model.TaskStats `json:"stats"`
	Params         json.RawMessage `json:"params,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	Message        string          `json:"message,omitempty"`
	StopRequested  bool            `json:"stop_requested"`
	PauseRequested bool            `json:"pause_requested"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

type checkpointDTO struct {
	CurrentIndex int             `json:"current_index"`
	Stats        model.TaskStats `json:"stats"`
	Stage        string          `json:"stage,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type createTaskRequest struct {
	Type     string          `json:"type"`
	Params   json.RawMessage `json:"params,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func taskToDTO(t *model.Task) taskDTO {
	return taskDTO{
		ID:             t.ID,
		Type:           t.Type,
		Status:         string(t.Status),
		Progress:       t.Progress,
		CurrentIndex:   t.CurrentIndex,
		TotalItems:     t.TotalItems,
		Stats:          t.Stats,
		Params:         t.Params,
		Metadata:       t.Metadata,
		Result:         t.Result,
		Error:          t.Error,
		Message:        t.Message,
		StopRequested:  t.StopRequested,
		PauseRequested: t.PauseRequested,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.CompletedAt,
	}
}

func (h handlers) createTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	var req createTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	task, err := h.svc.Create(r.Context(), req.Type, req.Params, req.Metadata)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, taskToDTO(task))
}

func (h handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	var status *model.TaskStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := model.ParseTaskStatus(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		status = &s
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	tasks, err := h.svc.List(r.Context(), status, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out := make([]taskDTO, 0, len(tasks))
	for i := range tasks {
		out = append(out, taskToDTO(&tasks[i]))
	}

	h.writeJSON(w, http.StatusOK, out)
}

func (h handlers) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	task, err := h.svc.Get(r.Context(), taskID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	dto := struct {
		taskDTO
		Checkpoint *checkpointDTO `json:"checkpoint,omitempty"`
	}{taskDTO: taskToDTO(task)}

	cp, err := h.svc.GetCheckpoint(r.Context(), taskID)
	if err == nil && cp != nil {
		dto.Checkpoint = &checkpointDTO{
			CurrentIndex: cp.CurrentIndex,
			Stats:        cp.Stats,
			Stage:        cp.Stage,
			UpdatedAt:    cp.UpdatedAt,
		}
	}

	h.writeJSON(w, http.StatusOK, dto)
}

func (h handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h handlers) stopTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.svc.Stop)
}

func (h handlers) pauseTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.svc.Pause)
}

func (h handlers) resumeTask(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.svc.Resume)
}

func (h handlers) control(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, taskID string) error) {
	taskID := chi.URLParam(r, "id")
	if err := op(r.Context(), taskID); err != nil {
		h.writeServiceError(w, err)
		return
	}

	task, err := h.svc.Get(r.Context(), taskID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, taskToDTO(task))
}

func (h handlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, model.ErrNotValid):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrAlreadyExists):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Errorf("Request failed: %s", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h handlers) writeError(w http.ResponseWriter, code int, msg string) {
	h.writeJSON(w, code, errorResponse{Error: msg})
}

func (h handlers) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
