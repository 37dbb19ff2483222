package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Ack writes the empty 200 {} body an event front expects for every
// accepted invocation
func Ack(w http.ResponseWriter) {
	JSON(w, http.StatusOK, struct{}{})
}
