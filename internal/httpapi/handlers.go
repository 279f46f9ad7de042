package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/basecrew/taskscheduler/internal/api"
	"github.com/basecrew/taskscheduler/internal/batch"
	"github.com/basecrew/taskscheduler/internal/core"
)

type handlers struct {
	svc    *api.Service
	logger *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeDataMeta(w, http.StatusOK, view.Accounts, map[string]any{
		"posix_supported": view.PosixSupported,
		"default_account": view.DefaultAccount,
	})
}

func (h *handlers) previewCron(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Expression string `json:"expression"`
		Count      int    `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid request body", err))
		return
	}
	if body.Count <= 0 {
		body.Count = 5
	}
	times, err := h.svc.PreviewCron(body.Expression, time.Now(), body.Count)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, times)
}

func (h *handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.ListTasks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tasks)
}

func (h *handlers) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "taskID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid task id", err))
		return
	}
	task, err := h.svc.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func (h *handlers) createTask(w http.ResponseWriter, r *http.Request) {
	var in api.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid request body", err))
		return
	}
	task, err := h.svc.CreateTask(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, task)
}

func (h *handlers) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "taskID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid task id", err))
		return
	}
	var in api.TaskInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid request body", err))
		return
	}
	task, err := h.svc.UpdateTask(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func (h *handlers) toggleTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "taskID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid task id", err))
		return
	}
	task, err := h.svc.ToggleTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, task)
}

func (h *handlers) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "taskID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid task id", err))
		return
	}
	if err := h.svc.DeleteTask(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) runTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "taskID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid task id", err))
		return
	}
	result, err := h.svc.RunTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusAccepted, result)
}

func (h *handlers) listResults(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "taskID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid task id", err))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	results, err := h.svc.ListResults(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, results)
}

func (h *handlers) deleteResult(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathInt64(r, "taskID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid task id", err))
		return
	}
	resultID, err := pathInt64(r, "resultID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid result id", err))
		return
	}
	if err := h.svc.DeleteResult(r.Context(), taskID, resultID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clearResults(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathInt64(r, "taskID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid task id", err))
		return
	}
	if err := h.svc.ClearResults(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) batch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action  string  `json:"action"`
		TaskIDs []int64 `json:"task_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid request body", err))
		return
	}
	result, err := h.svc.Batch(r.Context(), batch.Request{Action: batch.Action(body.Action), TaskIDs: body.TaskIDs})
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, http.StatusOK, result)
}

func (h *handlers) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.ListTemplates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, templates)
}

func (h *handlers) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "templateID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid template id", err))
		return
	}
	tpl, err := h.svc.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tpl)
}

func (h *handlers) createTemplate(w http.ResponseWriter, r *http.Request) {
	var in api.TemplateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid request body", err))
		return
	}
	tpl, err := h.svc.CreateTemplate(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, tpl)
}

func (h *handlers) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "templateID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid template id", err))
		return
	}
	var in api.TemplateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid request body", err))
		return
	}
	tpl, err := h.svc.UpdateTemplate(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, tpl)
}

func (h *handlers) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "templateID")
	if err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid template id", err))
		return
	}
	if err := h.svc.DeleteTemplate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) exportTemplates(w http.ResponseWriter, r *http.Request) {
	mapping, err := h.svc.ExportTemplates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, mapping)
}

func (h *handlers) importTemplates(w http.ResponseWriter, r *http.Request) {
	var mapping map[string]core.Template
	if err := json.NewDecoder(r.Body).Decode(&mapping); err != nil {
		writeError(w, core.NewError(core.ErrValidationFailed, "invalid request body", err))
		return
	}
	summary, err := h.svc.ImportTemplates(r.Context(), mapping)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}
