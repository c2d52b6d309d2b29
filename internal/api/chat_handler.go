// Package api contains the HTTP handlers that sit beside the websocket
// endpoint: the AI chat proxy and the health check.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"prompt-together/internal/ai"
)

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Completer is the part of the AI provider the handler needs.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] Failed to write response: %v", err)
	}
}

// ChatHandler proxies POST /api/chat to the completion provider. A nil
// provider answers 503; provider failures map to 502 without touching any
// room state.
func ChatHandler(provider Completer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "Method not allowed"})
			return
		}
		if provider == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "AI provider is not configured"})
			return
		}

		var payload chatRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			log.Printf("[API] Chat decode error: %v", err)
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid request body"})
			return
		}
		if payload.Prompt == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Prompt is required"})
			return
		}

		completion, err := provider.Complete(r.Context(), payload.Prompt)
		if err != nil {
			var upstream *ai.UpstreamError
			if errors.As(err, &upstream) {
				log.Printf("[API] AI provider failure: %v", upstream)
				writeJSON(w, http.StatusBadGateway, errorResponse{Message: "No response from AI provider"})
				return
			}
			log.Printf("[API] Chat handler error: %v", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal Server Error"})
			return
		}

		writeJSON(w, http.StatusOK, chatResponse{Response: completion})
	}
}

// HealthHandler reports process liveness.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
