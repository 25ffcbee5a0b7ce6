package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestRegisterAcknowledgesGuestName(t *testing.T) {
	h := newTestHub(0)
	c := h.NewClient("127.0.0.1")
	h.Register(c)

	ack := mustFrame(t, c, "ackName")
	name, _ := ack["name"].(string)
	if !strings.HasPrefix(name, "guest-") || len(name) != len("guest-")+6 {
		t.Fatalf("unexpected default name %q", name)
	}
}

func TestJoinNoticeExcludesNewcomer(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")

	bob := h.NewClient("10.0.0.2")
	h.Register(bob)

	notice := mustFrame(t, alice, "system")
	if text, _ := notice["text"].(string); !strings.Contains(text, "heeft de chat betreden") {
		t.Fatalf("unexpected join notice %q", text)
	}
	mustFrame(t, bob, "ackName")
	assertNoFrameOfType(t, bob, "system")
}

func TestChatBroadcastIncludesSender(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	bob := connect(t, h, "10.0.0.2")
	drainFrames(t, alice)

	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"chat","text":" hi "}`)); derr != nil {
		t.Fatalf("chat rejected: %v", derr)
	}

	for _, c := range []*Client{alice, bob} {
		msg := mustFrame(t, c, "chat")
		if msg["text"] != "hi" {
			t.Fatalf("expected trimmed text, got %+v", msg)
		}
		if from, _ := msg["from"].(string); !strings.HasPrefix(from, "guest-") {
			t.Fatalf("unexpected sender %v", msg["from"])
		}
	}

	if got := h.Stats().MessagesSent(); got != 1 {
		t.Fatalf("expected 1 message counted, got %d", got)
	}
}

func TestChatValidation(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	bob := connect(t, h, "10.0.0.2")
	drainFrames(t, alice)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"empty", "   ", "Message cannot be empty."},
		{"too long", strings.Repeat("a", 501), "Message is too long (max 500 characters)."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := fmt.Sprintf(`{"type":"chat","text":%q}`, tt.text)
			derr := h.Dispatch(context.Background(), alice, []byte(frame))
			if derr == nil || derr.Kind != ErrValidation {
				t.Fatalf("expected validation error, got %v", derr)
			}
			if derr.Message != tt.want {
				t.Fatalf("got message %q, want %q", derr.Message, tt.want)
			}
			assertNoFrameOfType(t, bob, "chat")
		})
	}

	if got := h.Stats().MessagesSent(); got != 0 {
		t.Fatalf("rejected messages must not be counted, got %d", got)
	}
}

func TestChatAtExactLimitIsBroadcast(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")

	text := strings.Repeat("b", 500)
	frame := fmt.Sprintf(`{"type":"chat","text":%q}`, text)
	if derr := h.Dispatch(context.Background(), alice, []byte(frame)); derr != nil {
		t.Fatalf("500-rune message should pass: %v", derr)
	}
	msg := mustFrame(t, alice, "chat")
	if msg["text"] != text {
		t.Fatal("broadcast text mangled")
	}
}

func TestChatRateLimit(t *testing.T) {
	h := newTestHub(2)
	alice := connect(t, h, "10.0.0.1")

	frame := []byte(`{"type":"chat","text":"spam"}`)
	for i := 0; i < 2; i++ {
		if derr := h.Dispatch(context.Background(), alice, frame); derr != nil {
			t.Fatalf("message %d should be admitted: %v", i, derr)
		}
	}

	derr := h.Dispatch(context.Background(), alice, frame)
	if derr == nil || derr.Kind != ErrRateLimit {
		t.Fatalf("expected rate limit rejection, got %v", derr)
	}
	if !strings.Contains(derr.Message, "Please wait") {
		t.Fatalf("rejection must carry a wait hint: %q", derr.Message)
	}
	if got := h.Stats().MessagesSent(); got != 2 {
		t.Fatalf("rejected message must not be counted, got %d", got)
	}
}

func TestChatRateLimitIsPerClient(t *testing.T) {
	h := newTestHub(1)
	alice := connect(t, h, "10.0.0.1")
	bob := connect(t, h, "10.0.0.2")

	frame := []byte(`{"type":"chat","text":"hi"}`)
	if derr := h.Dispatch(context.Background(), alice, frame); derr != nil {
		t.Fatalf("alice's first message rejected: %v", derr)
	}
	if derr := h.Dispatch(context.Background(), alice, frame); derr == nil {
		t.Fatal("alice's second message should be rejected")
	}
	if derr := h.Dispatch(context.Background(), bob, frame); derr != nil {
		t.Fatalf("bob must not be coupled to alice's window: %v", derr)
	}
}

func TestSetNameAcksAndNotifiesOthers(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	bob := connect(t, h, "10.0.0.2")
	oldName := alice.Name()
	drainFrames(t, alice)

	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"setName","name":"Alice"}`)); derr != nil {
		t.Fatalf("rename rejected: %v", derr)
	}

	ack := mustFrame(t, alice, "ackName")
	if ack["name"] != "Alice" {
		t.Fatalf("expected ack for Alice, got %+v", ack)
	}
	assertNoFrameOfType(t, alice, "system")

	notice := mustFrame(t, bob, "system")
	want := fmt.Sprintf("%s heet nu Alice.", oldName)
	if notice["text"] != want {
		t.Fatalf("got notice %q, want %q", notice["text"], want)
	}

	if alice.Name() != "Alice" {
		t.Fatalf("name not updated: %q", alice.Name())
	}
}

func TestSetNameValidationLeavesNameUnchanged(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	oldName := alice.Name()

	tests := []struct {
		name  string
		value string
	}{
		{"too short", "a"},
		{"too long", strings.Repeat("x", 33)},
		{"bad charset", "evil!name"},
		{"only spaces", "    "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := fmt.Sprintf(`{"type":"setName","name":%q}`, tt.value)
			derr := h.Dispatch(context.Background(), alice, []byte(frame))
			if derr == nil || derr.Kind != ErrValidation {
				t.Fatalf("expected validation error, got %v", derr)
			}
			if alice.Name() != oldName {
				t.Fatalf("stored name changed to %q", alice.Name())
			}
		})
	}
}

func TestSetNameAllowsUnicodeLetters(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")

	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"setName","name":"Zoë_42"}`)); derr != nil {
		t.Fatalf("unicode letters should be allowed: %v", derr)
	}
	if alice.Name() != "Zoë_42" {
		t.Fatalf("name not stored: %q", alice.Name())
	}
}

func TestMalformedFrameKeepsConnectionUsable(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")

	for _, frame := range []string{`not json`, `{"type":"explode"}`, `{}`} {
		derr := h.Dispatch(context.Background(), alice, []byte(frame))
		if derr == nil || derr.Kind != ErrProtocol {
			t.Fatalf("frame %q: expected protocol error, got %v", frame, derr)
		}
		if derr.Message != "Bericht moet geldig JSON zijn." {
			t.Fatalf("unexpected message %q", derr.Message)
		}
	}

	// The same connection still works afterwards.
	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"chat","text":"still here"}`)); derr != nil {
		t.Fatalf("chat after protocol error rejected: %v", derr)
	}
	mustFrame(t, alice, "chat")
}

func TestPingEchoesToken(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	bob := connect(t, h, "10.0.0.2")
	drainFrames(t, alice)

	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"ping","token":"abc"}`)); derr != nil {
		t.Fatalf("ping rejected: %v", derr)
	}

	pong := mustFrame(t, alice, "pong")
	if pong["token"] != "abc" {
		t.Fatalf("token not echoed: %+v", pong)
	}
	if _, ok := pong["at"].(float64); !ok {
		t.Fatalf("pong missing timestamp: %+v", pong)
	}
	assertNoFrameOfType(t, bob, "pong")
}

func TestListUsersSnapshotsRegistry(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	connect(t, h, "10.0.0.2")
	drainFrames(t, alice)

	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"listUsers"}`)); derr != nil {
		t.Fatalf("listUsers rejected: %v", derr)
	}

	reply := mustFrame(t, alice, "listUsers")
	users, ok := reply["users"].([]any)
	if !ok || len(users) != 2 {
		t.Fatalf("expected 2 users, got %+v", reply)
	}
	for _, u := range users {
		entry := u.(map[string]any)
		for _, field := range []string{"id", "name", "ip"} {
			if _, ok := entry[field]; !ok {
				t.Fatalf("user entry missing %q: %+v", field, entry)
			}
		}
	}
}

func TestStatusReply(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	connect(t, h, "10.0.0.2")
	drainFrames(t, alice)

	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"chat","text":"hello"}`)); derr != nil {
		t.Fatalf("chat rejected: %v", derr)
	}
	drainFrames(t, alice)

	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"status"}`)); derr != nil {
		t.Fatalf("status rejected: %v", derr)
	}

	status := mustFrame(t, alice, "status")
	if status["userCount"] != float64(2) {
		t.Fatalf("expected userCount 2, got %v", status["userCount"])
	}
	if status["peakUsers"] != float64(2) {
		t.Fatalf("expected peakUsers 2, got %v", status["peakUsers"])
	}
	if status["connectionsTotal"] != float64(2) {
		t.Fatalf("expected connectionsTotal 2, got %v", status["connectionsTotal"])
	}
	if status["messagesSent"] != float64(1) {
		t.Fatalf("expected messagesSent 1, got %v", status["messagesSent"])
	}
	if status["aiEnabled"] != false {
		t.Fatalf("ai should be reported disabled, got %v", status["aiEnabled"])
	}
	if _, present := status["aiModel"]; present {
		t.Fatal("aiModel must be omitted when ai is disabled")
	}
	if status["version"] != Version {
		t.Fatalf("unexpected version %v", status["version"])
	}
}

func TestAIDisabledFailsWithoutNetwork(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	bob := connect(t, h, "10.0.0.2")
	drainFrames(t, alice)

	derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"ai","prompt":"hello"}`))
	if derr == nil || derr.Kind != ErrAIService {
		t.Fatalf("expected ai service error, got %v", derr)
	}
	if derr.Message != "AI is niet geactiveerd op deze server." {
		t.Fatalf("unexpected message %q", derr.Message)
	}
	assertNoFrameOfType(t, bob, "ai")
}

func TestUnregisterBroadcastsCurrentName(t *testing.T) {
	h := newTestHub(0)
	alice := connect(t, h, "10.0.0.1")
	bob := connect(t, h, "10.0.0.2")

	if derr := h.Dispatch(context.Background(), alice, []byte(`{"type":"setName","name":"Alice"}`)); derr != nil {
		t.Fatalf("rename rejected: %v", derr)
	}
	drainFrames(t, bob)

	h.Unregister(alice.ID)

	notice := mustFrame(t, bob, "system")
	if notice["text"] != "Alice heeft de chat verlaten." {
		t.Fatalf("departure should use the renamed name, got %q", notice["text"])
	}
	if h.Registry().Len() != 1 {
		t.Fatalf("registry should hold 1 client, has %d", h.Registry().Len())
	}

	// Repeated removal is a no-op.
	h.Unregister(alice.ID)
}

func TestBroadcastIsolatesSaturatedPeer(t *testing.T) {
	h := newTestHub(0)
	slow := connect(t, h, "10.0.0.1")
	fast := connect(t, h, "10.0.0.2")
	drainFrames(t, fast)

	for slow.TrySend([]byte(`{"type":"system","text":"filler"}`)) {
	}

	start := time.Now()
	for i := 0; i < 100; i++ {
		frame := fmt.Sprintf(`{"type":"chat","text":"msg %d"}`, i)
		if derr := h.Dispatch(context.Background(), fast, []byte(frame)); derr != nil {
			t.Fatalf("chat rejected: %v", derr)
		}
	}
	elapsed := time.Since(start)

	// One saturated peer must not stall the fan-out.
	if elapsed > time.Second {
		t.Fatalf("fan-out blocked on saturated peer: took %v", elapsed)
	}

	received := 0
	for _, m := range drainFrames(t, fast) {
		if m["type"] == "chat" {
			received++
		}
	}
	if received != 100 {
		t.Fatalf("fast client should receive all 100 broadcasts, got %d", received)
	}
}

func TestBroadcastToClosedClientDoesNotPanic(t *testing.T) {
	h := newTestHub(0)
	gone := connect(t, h, "10.0.0.1")
	alive := connect(t, h, "10.0.0.2")
	drainFrames(t, alive)

	// Simulate a write loop that died before the registry caught up.
	gone.Close()

	if derr := h.Dispatch(context.Background(), alive, []byte(`{"type":"chat","text":"hi"}`)); derr != nil {
		t.Fatalf("chat rejected: %v", derr)
	}
	mustFrame(t, alive, "chat")
}
