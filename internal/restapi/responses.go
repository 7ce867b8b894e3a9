package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"subwaylive.org/internal/logging"
	"subwaylive.org/internal/models"
)

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

// sendJSON encodes payload before touching the response so an encoding
// failure can still produce a clean 500.
func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}
	setJSONResponseType(w)
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		api.logger().Debug("failed to write response", slog.String("error", err.Error()),
			slog.String("path", r.URL.Path))
	}
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	setJSONResponseType(w)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(models.ErrorResponse{Error: message, Code: code}); err != nil {
		logging.LogError(api.logger(), "failed to encode error response", err,
			slog.String("path", r.URL.Path))
	}
}

func (api *RestAPI) sendNotFound(w http.ResponseWriter, r *http.Request, message string) {
	api.sendError(w, r, http.StatusNotFound, message)
}

// serverErrorResponse logs err and sends a generic 500 body; internal error
// text never reaches the client.
func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(api.logger(), "internal server error", err,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())))
	api.sendError(w, r, http.StatusInternalServerError, "internal server error")
}

// validationErrorResponse sends a 400 with per-parameter messages.
func (api *RestAPI) validationErrorResponse(w http.ResponseWriter, r *http.Request, fieldErrors map[string][]string) {
	setJSONResponseType(w)
	w.WriteHeader(http.StatusBadRequest)
	response := models.FieldErrorResponse{
		Error:  "invalid request parameters",
		Code:   http.StatusBadRequest,
		Fields: fieldErrors,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(api.logger(), "failed to encode validation error response", err)
	}
}
