package dispatch

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// WebhookNotifier posts events to an external endpoint for clients without
// a live WebSocket, with WS preferred when a session exists.
type WebhookNotifier struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
}

func NewWebhookNotifier(endpoint string, ws *WSRegistry) *WebhookNotifier {
	return &WebhookNotifier{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}, WS: ws}
}

func (w *WebhookNotifier) Notify(userID string, ev Event) error {
	if w.WS != nil {
		if err := w.WS.Notify(userID, ev); err == nil {
			return nil
		}
	}
	if w.Endpoint == "" {
		return nil
	}
	b, _ := json.Marshal(map[string]any{"user_id": userID, "event": ev})
	_, err := w.Client.Post(w.Endpoint, "application/json", bytes.NewReader(b))
	return err
}
