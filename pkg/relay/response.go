package relay

import (
	"encoding/json"
	"net/http"

	"github.com/dmitrymomot/mediakit/pkg/media"
)

func render(w http.ResponseWriter, status int, body media.RelayResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func fail(w http.ResponseWriter, status int, code, message string) {
	render(w, status, media.RelayResponse{Error: &media.RelayError{Code: code, Message: message}})
}
