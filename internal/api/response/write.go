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

// AcceptedOn writes a 202 for work whose result is published on topic
func AcceptedOn(w http.ResponseWriter, topic string) {
	JSON(w, http.StatusAccepted, Accepted{Status: "accepted", Topic: topic})
}
