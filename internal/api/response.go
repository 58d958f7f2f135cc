package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gramcare/gramcare/internal/models"
	"github.com/twilio/twilio-go/twiml"
)

// Pre-marshaled fallback response so a marshal failure at request time can
// still produce valid JSON.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// writeTwiMLResponse writes a TwiML document containing exactly one
// message. Twilio relays it back to the sender on the WhatsApp channel.
func writeTwiMLResponse(w http.ResponseWriter, body string) {
	doc, err := twiml.Messages([]twiml.Element{
		&twiml.MessagingMessage{Body: body},
	})
	if err != nil {
		slog.Error("Server.writeTwiMLResponse: failed to render TwiML", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	if _, writeErr := w.Write([]byte(doc)); writeErr != nil {
		slog.Error("Server.writeTwiMLResponse: failed to write TwiML response", "error", writeErr)
	}
}
