package handler

import (
	"net/http"

	"github.com/PipeOpsHQ/hookscope/internal/capture"
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeForbidden     = "FORBIDDEN"
	textCodeBodyTooLarge  = "BODY_TOO_LARGE"
	textCodeReplayFailed  = "REPLAY_FAILED"
	textCodeInternalError = "INTERNAL_ERROR"
)

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func badRequest(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithCode(http.StatusBadRequest).
		WithTextCode(capture.TextCodeValidation)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := capture.StatusCode(err)
	resp := errorResponse{Message: "internal error", Code: textCodeInternalError}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		resp.Message = rich.Message
		if rich.TextCode != "" {
			resp.Code = rich.TextCode
		}
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}
