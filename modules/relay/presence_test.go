package relay

import (
	"encoding/json"
	"testing"
)

func statusEvents(t *testing.T, c *fakeConn) []StatusPayload {
	t.Helper()
	var result []StatusPayload
	for _, ev := range c.events(t) {
		if ev.Type != "user-status-changed" {
			continue
		}
		var p StatusPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			t.Fatalf("bad status payload: %v", err)
		}
		result = append(result, p)
	}
	return result
}

func TestRouter_TypingRelayedToRoomExceptSender(t *testing.T) {
	router := NewRouter()

	c1, c2, outsider := newFakeConn(), newFakeConn(), newFakeConn()
	id1 := router.Connect(c1, "")
	id2 := router.Connect(c2, "")
	router.Connect(outsider, "")
	router.Join(id1, "general")
	router.Join(id2, "general")

	router.Typing(id1, "general", "alice", true)

	if got := c1.countType(t, "user-typing"); got != 0 {
		t.Errorf("sender received %d user-typing events, want 0", got)
	}
	if got := outsider.countType(t, "user-typing"); got != 0 {
		t.Errorf("non-member received %d user-typing events, want 0", got)
	}

	var payload TypingPayload
	found := false
	for _, ev := range c2.events(t) {
		if ev.Type == "user-typing" {
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				t.Fatalf("bad typing payload: %v", err)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("room member did not receive user-typing")
	}
	if payload.Username != "alice" || !payload.IsTyping {
		t.Errorf("user-typing payload = %+v, want {alice true}", payload)
	}
}

func TestRouter_TypingIsStateless(t *testing.T) {
	router := NewRouter()

	c1, c2 := newFakeConn(), newFakeConn()
	id1 := router.Connect(c1, "")
	id2 := router.Connect(c2, "")
	router.Join(id1, "general")
	router.Join(id2, "general")

	// Every hint is relayed as-is, including the client-sent stop. The
	// router holds no timer, so without the second call c2 would keep
	// showing "alice is typing".
	router.Typing(id1, "general", "alice", true)
	router.Typing(id1, "general", "alice", false)

	if got := c2.countType(t, "user-typing"); got != 2 {
		t.Errorf("member received %d user-typing events, want 2", got)
	}
}

func TestRouter_UpdateStatusBroadcastsToEveryConnectionOnce(t *testing.T) {
	router := NewRouter()

	conns := make([]*fakeConn, 4)
	for i := range conns {
		conns[i] = newFakeConn()
		id := router.Connect(conns[i], "")
		if i%2 == 0 {
			router.Join(id, "general")
		}
	}

	router.SetStatus("u1", string(StatusOnline))

	for i, c := range conns {
		events := statusEvents(t, c)
		if len(events) != 1 {
			t.Errorf("connection %d received %d status events, want exactly 1", i, len(events))
			continue
		}
		if events[0].UserID != "u1" || events[0].Status != string(StatusOnline) {
			t.Errorf("connection %d status payload = %+v", i, events[0])
		}
	}
}

func TestRouter_EveryStatusCallRelayed(t *testing.T) {
	router := NewRouter()

	c := newFakeConn()
	router.Connect(c, "")

	// No debounce, no coalescing: three calls, three broadcasts, even
	// when the status never changes.
	router.SetStatus("u1", string(StatusOnline))
	router.SetStatus("u1", string(StatusOnline))
	router.SetStatus("u1", string(StatusOffline))

	if got := len(statusEvents(t, c)); got != 3 {
		t.Errorf("received %d status events, want 3", got)
	}
}

func TestRouter_FirstIdentifiedJoinFlipsOnline(t *testing.T) {
	router := NewRouter()

	observer := newFakeConn()
	router.Connect(observer, "")

	id := router.Connect(newFakeConn(), "u1")
	router.Join(id, "general")
	router.Join(id, "random") // second join, no second transition

	events := statusEvents(t, observer)
	if len(events) != 1 {
		t.Fatalf("observer received %d status events, want 1", len(events))
	}
	if events[0].UserID != "u1" || events[0].Status != string(StatusOnline) {
		t.Errorf("status payload = %+v, want u1 online", events[0])
	}
	if got := router.Status("u1"); got != string(StatusOnline) {
		t.Errorf("Status(u1) = %q, want online", got)
	}
}

func TestRouter_DisconnectEmitsOffline(t *testing.T) {
	router := NewRouter()

	observer := newFakeConn()
	router.Connect(observer, "")

	id := router.Connect(newFakeConn(), "u1")
	router.Join(id, "general")
	router.Disconnect(id)

	events := statusEvents(t, observer)
	if len(events) != 2 {
		t.Fatalf("observer received %d status events, want 2 (online then offline)", len(events))
	}
	if events[1].Status != string(StatusOffline) {
		t.Errorf("last status = %q, want offline", events[1].Status)
	}
	if got := router.Status("u1"); got != string(StatusOffline) {
		t.Errorf("Status(u1) = %q, want offline", got)
	}
}

func TestRouter_AnonymousDisconnectEmitsNoStatus(t *testing.T) {
	router := NewRouter()

	observer := newFakeConn()
	router.Connect(observer, "")

	id := router.Connect(newFakeConn(), "")
	router.Join(id, "general")
	router.Disconnect(id)

	if got := len(statusEvents(t, observer)); got != 0 {
		t.Errorf("observer received %d status events for an anonymous connection, want 0", got)
	}
}
