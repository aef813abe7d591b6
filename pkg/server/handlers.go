package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/schedops/shiftgen/pkg/core/services"
)

// Runner executes one generation run. Implemented by services.SchedulerJob.
type Runner interface {
	Run(ctx context.Context, params services.RunParams) services.RunResult
}

// Handler holds the HTTP handler dependencies
type Handler struct {
	job      Runner
	logger   *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a handler around the scheduler job
func NewHandler(job Runner, logger *zap.Logger) *Handler {
	return &Handler{
		job:      job,
		logger:   logger,
		validate: validator.New(),
	}
}

// runRequest is the trigger payload. Zero-valued fields mean "no filter" /
// "use the configured default".
type runRequest struct {
	CompanyID          int64 `json:"companyId" validate:"omitempty,min=1"`
	ModelID            int64 `json:"modelId" validate:"omitempty,min=1"`
	AdvanceDays        int   `json:"advanceDays" validate:"omitempty,min=1,max=366"`
	MonthlyMonthsAhead int   `json:"monthlyMonthsAhead" validate:"omitempty,min=1,max=24"`
	Reset              bool  `json:"reset"`
}

// runResponse is the Run Result payload returned to the caller
type runResponse struct {
	RunID             string  `json:"runId"`
	Status            string  `json:"status"`
	ShiftsCreated     int     `json:"shiftsCreated"`
	DuplicatesSkipped int     `json:"duplicatesSkipped"`
	OverlapsBlocked   int     `json:"overlapsBlocked"`
	OrphanedDeleted   int     `json:"orphanedDeleted"`
	ResetDeleted      int     `json:"resetDeleted"`
	WeeklyModels      int     `json:"weeklyModels"`
	MonthlyModels     int     `json:"monthlyModels"`
	Conflicts         int     `json:"conflicts"`
	AuditEntries      int     `json:"auditEntries"`
	DurationSeconds   float64 `json:"durationSeconds"`
	Error             string  `json:"error,omitempty"`
}

// TriggerRun validates the request and invokes the orchestrator synchronously
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	// Reset is scoped to exactly one model; rejected here so the engine never
	// sees a reset without a target
	if req.Reset && req.ModelID <= 0 {
		writeError(w, http.StatusBadRequest, "reset requires a positive modelId")
		return
	}

	h.logger.Info("Triggering generation run",
		zap.Int64("company_id", req.CompanyID),
		zap.Int64("model_id", req.ModelID),
		zap.Bool("reset", req.Reset))

	result := h.job.Run(r.Context(), services.RunParams{
		CompanyID:          req.CompanyID,
		ModelID:            req.ModelID,
		AdvanceDays:        req.AdvanceDays,
		MonthlyMonthsAhead: req.MonthlyMonthsAhead,
		Reset:              req.Reset,
		TriggeredBy:        "http",
	})

	h.logger.Info("Generation run finished",
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)),
		zap.Int("shifts_created", result.ShiftsCreated),
		zap.Int("duplicates_skipped", result.DuplicatesSkipped),
		zap.Int("overlaps_blocked", result.OverlapsBlocked),
		zap.Int("orphaned_deleted", result.OrphanedDeleted),
		zap.Int("reset_deleted", result.ResetDeleted),
		zap.Duration("duration", result.Duration))

	writeJSON(w, http.StatusOK, runResponse{
		RunID:             result.RunID,
		Status:            string(result.Status),
		ShiftsCreated:     result.ShiftsCreated,
		DuplicatesSkipped: result.DuplicatesSkipped,
		OverlapsBlocked:   result.OverlapsBlocked,
		OrphanedDeleted:   result.OrphanedDeleted,
		ResetDeleted:      result.ResetDeleted,
		WeeklyModels:      result.WeeklyModels,
		MonthlyModels:     result.MonthlyModels,
		Conflicts:         result.Conflicts,
		AuditEntries:      result.AuditEntries,
		DurationSeconds:   result.Duration.Seconds(),
		Error:             result.ErrorMessage,
	})
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
