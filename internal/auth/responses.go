// responses.go -- Package-wide HTTP response helpers.
//
// Shared by handlers and middleware. Messages are constants chosen by the caller;
// no user-controlled input is interpolated, so string concat is safe here.
package auth

import (
	"net/http"
)

// writeMessage writes {"message": message} with the given status.
func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write([]byte(`{"message":"` + message + `"}`))
}

// InternalServerError logs the error and returns a generic 500 JSON response.
// Never exposes internal error details to prevent information leakage.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	writeMessage(w, http.StatusInternalServerError, "internal server error")
}

// ConfigurationError returns a 500 naming the missing configuration.
// Use only for operator mistakes, never for request-dependent failures.
func ConfigurationError(w http.ResponseWriter, r *http.Request, message string) {
	logError(r, "configuration error", "detail", message)
	writeMessage(w, http.StatusInternalServerError, message)
}

// BadRequest returns a 400 JSON response with the given message.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusBadRequest, message)
}

// Unauthorized returns a 401 JSON response.
// Keep message generic; it must not reveal which check failed.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	writeMessage(w, http.StatusUnauthorized, message)
}

// TooManyRequests returns a 429 JSON response.
func TooManyRequests(w http.ResponseWriter) {
	writeMessage(w, http.StatusTooManyRequests, "too many requests")
}

// BadGateway returns a 502 JSON response for upstream failures.
func BadGateway(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusBadGateway, message)
}

// ServiceUnavailable returns a 503 JSON response for disabled features.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	writeMessage(w, http.StatusServiceUnavailable, message)
}
