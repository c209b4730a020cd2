// Package apierr provides a standardised error response format for the
// CueMap HTTP API.
//
// Every error response returned by the API uses the same JSON envelope:
//
//	{
//	  "ok":     false,
//	  "error":  "human-readable description",
//	  "code":   "MACHINE_READABLE_CODE",
//	  "status": 400
//	}
//
// Clients can branch on "code" for programmatic handling and show "error"
// to humans.
package apierr

import (
	"encoding/json"
	"net/http"
)

const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidJSON      = "INVALID_JSON"
	CodePayloadTooLarge  = "PAYLOAD_TOO_LARGE"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeNotFound         = "NOT_FOUND"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"

	CodeTenantRequired = "TENANT_REQUIRED"
	CodeMemoryNotFound = "MEMORY_NOT_FOUND"
	CodeQueryRequired  = "QUERY_REQUIRED"
	CodeCueRequired    = "CUE_REQUIRED"
	CodeInvalidWeight  = "INVALID_WEIGHT"
)

// Response is the standard error envelope returned to API clients.
type Response struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Code   string `json:"code"`
	Status int    `json:"status"`
}

// Write serialises an error Response and writes it to w with the given
// HTTP status code.
func Write(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{OK: false, Error: message, Code: code, Status: status})
}

func BadRequest(w http.ResponseWriter, code, msg string) { Write(w, http.StatusBadRequest, code, msg) }

func NotFound(w http.ResponseWriter, code, msg string) { Write(w, http.StatusNotFound, code, msg) }

func MethodNotAllowed(w http.ResponseWriter) {
	Write(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "method not allowed")
}

func Unauthorized(w http.ResponseWriter, msg string) {
	Write(w, http.StatusUnauthorized, CodeUnauthorized, msg)
}

func Internal(w http.ResponseWriter, msg string) {
	Write(w, http.StatusInternalServerError, CodeInternalError, msg)
}

func InvalidJSON(w http.ResponseWriter) {
	BadRequest(w, CodeInvalidJSON, "invalid JSON in request body")
}

func TenantRequired(w http.ResponseWriter) {
	BadRequest(w, CodeTenantRequired, "X-Project-ID header required")
}

func MemoryNotFound(w http.ResponseWriter) {
	NotFound(w, CodeMemoryNotFound, "memory not found")
}

func CueRequired(w http.ResponseWriter) {
	BadRequest(w, CodeCueRequired, "cue required in path")
}

func InvalidWeight(w http.ResponseWriter) {
	BadRequest(w, CodeInvalidWeight, "weight must be in (0, 1]")
}
