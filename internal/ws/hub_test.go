package ws

import (
	"encoding/json"
	"testing"
)

func testClient() *Client {
	return &Client{send: make(chan []byte, 1)}
}

func TestHubRoomDelivery(t *testing.T) {
	hub := NewHub()
	a, b, other := testClient(), testClient(), testClient()
	hub.Join(1, a)
	hub.Join(1, b)
	hub.Join(2, other)

	if err := hub.Broadcast(1, EventMessage, map[string]string{"content": "hi"}); err != nil {
		t.Fatalf("broadcasting: %v", err)
	}

	for name, c := range map[string]*Client{"a": a, "b": b} {
		select {
		case data := <-c.send:
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				t.Fatalf("decoding event for %s: %v", name, err)
			}
			if ev.Type != EventMessage || ev.MatchID != 1 {
				t.Errorf("client %s got %+v", name, ev)
			}
		default:
			t.Errorf("client %s received nothing", name)
		}
	}

	select {
	case <-other.send:
		t.Error("client in another room received the event")
	default:
	}
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	hub := NewHub()
	c := testClient()
	hub.Join(7, c)
	hub.Leave(7, c)

	if err := hub.Broadcast(7, EventMatchUpdate, nil); err != nil {
		t.Fatalf("broadcasting: %v", err)
	}
	select {
	case <-c.send:
		t.Error("departed client received an event")
	default:
	}
}
