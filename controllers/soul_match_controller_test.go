package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulse_server/services"

	"github.com/jonboulle/clockwork"
)

func newClientStateController() *SoulMatchController {
	store := services.NewMemoryMatchStore()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(900_000))
	config := services.DefaultFocusConfig
	sessions := &services.MatchSessionService{Store: store, Clock: clock, Config: config}
	match := &services.SoulMatchService{Store: store, Clock: clock, Config: config, Sessions: sessions}
	return NewSoulMatchController(match)
}

// An anonymous poll (no queueEntryId) still answers with the current focus
// window so clients can render the countdown before joining the queue.
func TestClientStateWithoutQueueEntryID(t *testing.T) {
	controller := newClientStateController()

	req := httptest.NewRequest(http.MethodGet, "/api/soul/state", nil)
	rec := httptest.NewRecorder()
	controller.ClientState(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var state struct {
		FocusWindow services.FocusWindow `json:"focusWindow"`
		QueueActive bool                 `json:"queueActive"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if state.FocusWindow.ID == "" {
		t.Fatal("expected a focus window in the bare state")
	}
	if state.QueueActive {
		t.Fatal("anonymous poll should not report an active queue entry")
	}
}
