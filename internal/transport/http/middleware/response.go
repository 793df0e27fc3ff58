package middleware

import (
	"encoding/json"
	"net/http"
)

type messageBody struct {
	Message string `json:"message"`
}

// writeMessage writes a {"message": ...} body, the same shape handlers use
// for business outcomes. Responses from the gate are never cached.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(messageBody{Message: msg})
}
