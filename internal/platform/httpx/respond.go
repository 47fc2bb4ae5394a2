// Package httpx carries the HTTP response helpers shared by the local
// daemon facade and the remote sync authority. Errors are rendered as
// RFC7807 problem details with a kess-namespaced machine-readable type.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
)

// problemTypeBase namespaces the problem type emitted with every error
// response, so UI clients can switch on it without parsing titles.
const problemTypeBase = "kess:problem:"

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response. The problem type is
// derived from the title ("Invalid State" -> "kess:problem:invalid-state").
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Type:   problemTypeBase + problemSlug(title),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func problemSlug(title string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "-")
}

// DecodeJSON decodes a JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
