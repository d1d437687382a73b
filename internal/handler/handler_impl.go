// Package handler provides HTTP request handlers for the application.
package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/api"
	"github.com/popeskul/insdr-dispatcher/internal/middleware"
	"github.com/popeskul/insdr-dispatcher/internal/scheduler"
	"github.com/popeskul/insdr-dispatcher/internal/service"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

const (
	errorCodeSchedulerAlreadyRunning = "SCHEDULER_ALREADY_RUNNING"
	errorCodeSchedulerNotRunning     = "SCHEDULER_NOT_RUNNING"
	errorCodeCycleInProgress         = "CYCLE_IN_PROGRESS"
	errorCodeAccountNotFound         = "ACCOUNT_NOT_FOUND"
	errorCodeInvalidRequest          = "INVALID_REQUEST"
)

const (
	errorMessageSchedulerAlreadyRunning  = "Scheduler is already running"
	errorMessageSchedulerNotRunning      = "Scheduler is not running"
	errorMessageFailedToStartScheduler   = "Failed to start scheduler"
	errorMessageFailedToStopScheduler    = "Failed to stop scheduler"
	errorMessageFailedToRetrieveMessages = "Failed to retrieve messages"
	errorMessageCycleInProgress          = "A dispatch cycle is already in progress"
	errorMessageFailedToRunCycle         = "Failed to run dispatch cycle"
	errorMessageAccountNotFound          = "Account not found"
	errorMessageFailedToGetBalance       = "Failed to get account balance"
)

const (
	schedulerMessageStarted = "Scheduler started successfully"
	schedulerMessageStopped = "Scheduler stopped successfully"
)

type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler instance that implements api.ServerInterface.
func NewHandler(service *service.Service, logger *zap.Logger) api.ServerInterface {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RunDispatchCycle implements api.ServerInterface. Per-message failures are
// part of a successful response; only cycle-level problems are errors.
func (h *Handler) RunDispatchCycle(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	result, err := h.service.Dispatch.RunDispatchCycle(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrCycleInProgress) {
			h.sendError(w, r, http.StatusConflict, errorCodeCycleInProgress, errorMessageCycleInProgress)
			return
		}

		h.logger.Error("Failed to run dispatch cycle",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToRunCycle)
		return
	}

	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}

	render.JSON(w, r, api.DispatchResponse{
		Checked: result.Checked,
		Sent:    result.Sent,
		Failed:  result.Failed,
		Errors:  errs,
	})
}

// GetMessages implements api.ServerInterface.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request, params api.GetMessagesParams) {
	if params.Status != nil && !validStatus(*params.Status) {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, "Invalid status filter: "+string(*params.Status))
		return
	}

	page := defaultPage
	limit := defaultLimit

	if params.Page != nil && *params.Page >= 1 {
		page = *params.Page
	}

	if params.Limit != nil && *params.Limit >= 1 && *params.Limit <= maxLimit {
		limit = *params.Limit
	}

	result, err := h.service.Message.GetMessages(r.Context(), params.Status, page, limit)
	if err != nil {
		h.logger.Error("Failed to get messages",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToRetrieveMessages)
		return
	}

	render.JSON(w, r, result)
}

// GetAccountBalance implements api.ServerInterface.
func (h *Handler) GetAccountBalance(w http.ResponseWriter, r *http.Request, accountId string) {
	balance, err := h.service.Balance.GetBalance(r.Context(), accountId)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			h.sendError(w, r, http.StatusNotFound, errorCodeAccountNotFound, errorMessageAccountNotFound)
			return
		}

		h.logger.Error("Failed to get account balance",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("account_id", accountId),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToGetBalance)
		return
	}

	render.JSON(w, r, balance)
}

// StartScheduler implements api.ServerInterface.
func (h *Handler) StartScheduler(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	err := h.service.Scheduler.Start()
	if err != nil {
		if errors.Is(err, scheduler.ErrSchedulerAlreadyRunning) {
			h.sendError(w, r, http.StatusConflict, errorCodeSchedulerAlreadyRunning, errorMessageSchedulerAlreadyRunning)
			return
		}

		h.logger.Error("Failed to start scheduler",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToStartScheduler)
		return
	}

	render.JSON(w, r, api.SchedulerResponse{
		Status:  api.SchedulerResponseStatusStarted,
		Message: schedulerMessageStarted,
	})
}

// StopScheduler implements api.ServerInterface.
func (h *Handler) StopScheduler(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	err := h.service.Scheduler.Stop()
	if err != nil {
		if errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			h.sendError(w, r, http.StatusConflict, errorCodeSchedulerNotRunning, errorMessageSchedulerNotRunning)
			return
		}

		h.logger.Error("Failed to stop scheduler",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToStopScheduler)
		return
	}

	render.JSON(w, r, api.SchedulerResponse{
		Status:  api.SchedulerResponseStatusStopped,
		Message: schedulerMessageStopped,
	})
}

// HealthCheck implements api.ServerInterface.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health.GetHealth()

	response := api.HealthResponse{
		Status:    health.Status,
		Timestamp: time.Now(),
	}

	if health.SchedulerStatus != "" {
		status := health.SchedulerStatus
		response.SchedulerStatus = &status
	}

	if health.DatabaseStatus != "" {
		status := health.DatabaseStatus
		response.DatabaseStatus = &status
	}

	if health.RedisStatus != "" {
		status := health.RedisStatus
		response.RedisStatus = &status
	}

	if health.CircuitBreakerStatus != "" {
		response.CircuitBreakerStatus = &health.CircuitBreakerStatus
	}

	if health.CircuitBreakerState != "" {
		state := health.CircuitBreakerState
		response.CircuitBreakerState = &state
	}

	// Degraded stays 200 so the trigger keeps running while the gateway recovers.
	if health.Status == api.Unhealthy {
		render.Status(r, http.StatusServiceUnavailable)
	}

	render.JSON(w, r, response)
}

// ParamErrorHandler renders request binding errors from the generated router.
func ParamErrorHandler(logger *zap.Logger) func(w http.ResponseWriter, r *http.Request, err error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("Invalid request parameters",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, err.Error())
	}
}

func validStatus(status api.MessageStatus) bool {
	switch status {
	case api.Pending, api.Sent, api.Failed:
		return true
	}
	return false
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	writeError(w, r, statusCode, errorCode, message)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	now := time.Now()
	render.Status(r, statusCode)
	render.JSON(w, r, api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		Timestamp: &now,
	})
}
