package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"care-companion/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	healthStatusText  = "CareCompanion API is running"

	codeNotFound         usecase.ErrorCode = "NOT_FOUND"
	codeMethodNotAllowed usecase.ErrorCode = "METHOD_NOT_ALLOWED"
	codePayloadTooLarge  usecase.ErrorCode = "PAYLOAD_TOO_LARGE"
)

// ChatUseCase is the service surface the transport depends on.
type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	Health(ctx context.Context) usecase.HealthStatus
}

type Handler struct {
	uc     ChatUseCase
	logger *slog.Logger
	newID  func() string
}

type chatResponse struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply"`
	Model   string `json:"model"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Model       string `json:"model,omitempty"`
	Source      string `json:"source,omitempty"`
}

func NewHandler(uc ChatUseCase, logger *slog.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{uc: uc, logger: logger, newID: uuid.NewString}, nil
}

// Handle serves API Gateway proxy events. Every outcome is a JSON response;
// the returned error is always nil.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	correlationID := h.correlationID(req.Headers)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling request",
				"correlation_id", correlationID,
				"path", req.Path,
				"panic", fmt.Sprint(r),
			)
			resp = h.errorResponse(http.StatusInternalServerError, usecase.ErrorInternal, usecase.MessageInternal, correlationID)
			err = nil
		}
	}()

	switch normalizePath(req.Path) {
	case "/", "/api/health":
		if req.HTTPMethod != http.MethodGet && req.HTTPMethod != http.MethodHead {
			return h.methodNotAllowed(correlationID), nil
		}
		return h.health(ctx, correlationID), nil
	case "/api/ai/chat", "/chat":
		if req.HTTPMethod != http.MethodPost {
			return h.methodNotAllowed(correlationID), nil
		}
		return h.chat(ctx, req, correlationID), nil
	default:
		return h.errorResponse(http.StatusNotFound, codeNotFound, "Not found", correlationID), nil
	}
}

func (h *Handler) health(ctx context.Context, correlationID string) events.APIGatewayProxyResponse {
	status := h.uc.Health(ctx)
	return h.jsonResponse(http.StatusOK, healthResponse{
		Status:      healthStatusText,
		ModelLoaded: status.ModelLoaded,
		Model:       status.Model,
		Source:      status.Source,
	}, correlationID)
}

func (h *Handler) chat(ctx context.Context, req events.APIGatewayProxyRequest, correlationID string) events.APIGatewayProxyResponse {
	message, err := parseMessage(req)
	if err != nil {
		return h.useCaseErrorResponse(err, correlationID)
	}

	out, err := h.uc.Chat(ctx, usecase.ChatInput{Message: message, CorrelationID: correlationID})
	if err != nil {
		return h.useCaseErrorResponse(err, correlationID)
	}

	return h.jsonResponse(http.StatusOK, chatResponse{
		Success: true,
		Reply:   out.Reply,
		Model:   out.Model,
	}, correlationID)
}

// parseMessage extracts the "message" field. An unparseable body, a missing
// field and an explicit null are all reported as a missing field.
func parseMessage(req events.APIGatewayProxyRequest) (string, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return "", usecase.NewValidationError("invalid_body", usecase.MessageFieldRequired)
		}
		body = decoded
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", usecase.NewValidationError("invalid_body", usecase.MessageFieldRequired)
	}
	raw, ok := fields["message"]
	if !ok || string(raw) == "null" {
		return "", usecase.NewValidationError("missing_message", usecase.MessageFieldRequired)
	}

	var message string
	if err := json.Unmarshal(raw, &message); err != nil {
		return "", usecase.NewValidationError("message_not_string", usecase.MessageMustBeString)
	}
	return message, nil
}

func (h *Handler) useCaseErrorResponse(err error, correlationID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		h.logger.Error("unexpected error", "correlation_id", correlationID, "err", err)
		return h.errorResponse(http.StatusInternalServerError, usecase.ErrorInternal, usecase.MessageInternal, correlationID)
	}

	status := statusForCode(ucErr.Code)
	message := ucErr.Message
	if message == "" {
		message = http.StatusText(status)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("chat request failed",
			"correlation_id", correlationID,
			"code", ucErr.Code,
			"reason", ucErr.Reason,
			"err", ucErr.Err,
		)
	} else {
		h.logger.Info("chat request rejected",
			"correlation_id", correlationID,
			"code", ucErr.Code,
			"reason", ucErr.Reason,
		)
	}
	return h.errorResponse(status, ucErr.Code, message, correlationID)
}

func statusForCode(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorValidation:
		return http.StatusBadRequest
	case usecase.ErrorModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) methodNotAllowed(correlationID string) events.APIGatewayProxyResponse {
	return h.errorResponse(http.StatusMethodNotAllowed, codeMethodNotAllowed, "Method not allowed", correlationID)
}

func (h *Handler) errorResponse(status int, code usecase.ErrorCode, message, correlationID string) events.APIGatewayProxyResponse {
	return h.jsonResponse(status, errorResponse{
		Success: false,
		Error:   message,
		Code:    string(code),
	}, correlationID)
}

func (h *Handler) jsonResponse(status int, payload any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal response", "correlation_id", correlationID, "err", err)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"Internal server error","code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

// correlationID returns the caller's X-Correlation-Id or a new one.
func (h *Handler) correlationID(headers map[string]string) string {
	if id := headerValue(headers, correlationHeader); id != "" {
		return id
	}
	return h.newID()
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if p = strings.TrimRight(p, "/"); p == "" {
		return "/"
	}
	return p
}
