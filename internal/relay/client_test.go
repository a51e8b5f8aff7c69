package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{}

// newFakeRelay starts an in-process relay speaking the wire protocol. The
// handler receives the connection after the REQ frame has been consumed.
func newFakeRelay(t *testing.T, handler func(conn *websocket.Conn, subID string, f Filter)) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil || len(parts) != 3 {
			t.Errorf("malformed REQ frame: %s", string(data))
			return
		}

		var subID string
		var f Filter
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			t.Errorf("decoding subID: %v", err)
			return
		}
		if err := json.Unmarshal(parts[2], &f); err != nil {
			t.Errorf("decoding filter: %v", err)
			return
		}

		handler(conn, subID, f)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame []any) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Errorf("marshaling frame: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Errorf("writing frame: %v", err)
	}
}

func TestPollSuccess(t *testing.T) {
	endpoint := newFakeRelay(t, func(conn *websocket.Conn, subID string, f Filter) {
		// One qualifying event, one wrong-kind event, one malformed frame.
		writeFrame(t, conn, []any{"EVENT", subID, Event{ID: "ev1", Kind: 1059, CreatedAt: 1700000000}})
		writeFrame(t, conn, []any{"EVENT", subID, Event{ID: "ev2", Kind: 1, CreatedAt: 1700000001}})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"not":"a frame"}`))
		writeFrame(t, conn, []any{"EOSE", subID})
	})

	logger, _ := zap.NewDevelopment()
	client := NewClient(5*time.Second, logger)

	res := client.Poll(context.Background(), endpoint, NewFilter(1059, nil, time.Now()))

	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (err: %v)", res.Outcome, res.Err)
	}
	if res.Events != 1 {
		t.Errorf("expected 1 qualifying event, got %d", res.Events)
	}
}

func TestPollIgnoresOtherSubscriptions(t *testing.T) {
	endpoint := newFakeRelay(t, func(conn *websocket.Conn, subID string, f Filter) {
		writeFrame(t, conn, []any{"EVENT", "someone-else", Event{ID: "ev1", Kind: 1059}})
		writeFrame(t, conn, []any{"EOSE", "someone-else"})
		writeFrame(t, conn, []any{"EOSE", subID})
	})

	logger, _ := zap.NewDevelopment()
	client := NewClient(5*time.Second, logger)

	res := client.Poll(context.Background(), endpoint, NewFilter(1059, nil, time.Now()))

	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", res.Outcome)
	}
	if res.Events != 0 {
		t.Errorf("expected 0 events, got %d", res.Events)
	}
}

func TestPollSendsFilter(t *testing.T) {
	since := time.Unix(1700000000, 0)
	gotFilter := make(chan Filter, 1)

	endpoint := newFakeRelay(t, func(conn *websocket.Conn, subID string, f Filter) {
		gotFilter <- f
		writeFrame(t, conn, []any{"EOSE", subID})
	})

	logger, _ := zap.NewDevelopment()
	client := NewClient(5*time.Second, logger)
	client.Poll(context.Background(), endpoint, NewFilter(1059, []string{"author1"}, since))

	f := <-gotFilter
	if len(f.Kinds) != 1 || f.Kinds[0] != 1059 {
		t.Errorf("unexpected kinds: %v", f.Kinds)
	}
	if f.Since != since.Unix() {
		t.Errorf("expected since %d, got %d", since.Unix(), f.Since)
	}
	if len(f.Authors) != 1 || f.Authors[0] != "author1" {
		t.Errorf("unexpected authors: %v", f.Authors)
	}
}

func TestPollTimeoutKeepsPartialCount(t *testing.T) {
	endpoint := newFakeRelay(t, func(conn *websocket.Conn, subID string, f Filter) {
		// One event, then no EOSE: the client's deadline has to fire.
		writeFrame(t, conn, []any{"EVENT", subID, Event{ID: "ev1", Kind: 1059}})
		time.Sleep(2 * time.Second)
	})

	logger, _ := zap.NewDevelopment()
	client := NewClient(300*time.Millisecond, logger)

	start := time.Now()
	res := client.Poll(context.Background(), endpoint, NewFilter(1059, nil, time.Now()))

	if res.Outcome != OutcomeTimeout {
		t.Fatalf("expected timeout, got %s (err: %v)", res.Outcome, res.Err)
	}
	if res.Events != 1 {
		t.Errorf("expected partial count 1, got %d", res.Events)
	}
	if elapsed := time.Since(start); elapsed > 1500*time.Millisecond {
		t.Errorf("poll did not respect timeout, took %s", elapsed)
	}
}

func TestPollDialFailure(t *testing.T) {
	// Grab a URL from a server that is already closed.
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	logger, _ := zap.NewDevelopment()
	client := NewClient(time.Second, logger)

	res := client.Poll(context.Background(), endpoint, NewFilter(1059, nil, time.Now()))

	if res.Outcome != OutcomeError {
		t.Fatalf("expected connection-error, got %s", res.Outcome)
	}
	if res.Err == nil {
		t.Error("expected error to be recorded")
	}
	if res.Events != 0 {
		t.Errorf("expected 0 events, got %d", res.Events)
	}
}

func TestPollUsesFreshSubscriptionIDs(t *testing.T) {
	subIDs := make(chan string, 2)

	endpoint := newFakeRelay(t, func(conn *websocket.Conn, subID string, f Filter) {
		subIDs <- subID
		writeFrame(t, conn, []any{"EOSE", subID})
	})

	logger, _ := zap.NewDevelopment()
	client := NewClient(5*time.Second, logger)
	f := NewFilter(1059, nil, time.Now())

	client.Poll(context.Background(), endpoint, f)
	client.Poll(context.Background(), endpoint, f)

	first, second := <-subIDs, <-subIDs
	if !strings.HasPrefix(first, "wake-") {
		t.Errorf("unexpected subID format: %s", first)
	}
	if first == second {
		t.Errorf("expected fresh subscription id per poll, got %s twice", first)
	}
}
