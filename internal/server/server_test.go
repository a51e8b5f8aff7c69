package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubWatcher struct {
	wm time.Time
}

func (s stubWatcher) Watermark() time.Time { return s.wm }

type stubGate struct {
	last time.Time
}

func (s stubGate) LastSentAt() time.Time { return s.last }

type stubSender struct {
	id  string
	err error
}

func (s stubSender) Send(ctx context.Context) (string, error) {
	return s.id, s.err
}

func newTestRouter(gate stubGate, sender stubSender) http.Handler {
	logger, _ := zap.NewDevelopment()
	srv := NewServer(
		[]string{"wss://r1.example.com", "wss://r2.example.com"},
		"wake_notifications",
		stubWatcher{wm: time.Unix(1700000000, 0)},
		gate,
		sender,
		logger,
	)
	return NewRouter(srv, logger)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(stubGate{}, stubSender{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	last := time.Unix(1700000100, 0)
	router := newTestRouter(stubGate{last: last}, stubSender{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if len(resp.Relays) != 2 {
		t.Errorf("expected 2 relays, got %d", len(resp.Relays))
	}
	if resp.Topic != "wake_notifications" {
		t.Errorf("unexpected topic: %s", resp.Topic)
	}
	if resp.Watermark != 1700000000 {
		t.Errorf("unexpected watermark: %d", resp.Watermark)
	}
	if resp.LastNotificationAt == "" {
		t.Error("expected last_notification_at to be set")
	}
}

func TestStatusBeforeFirstNotification(t *testing.T) {
	router := newTestRouter(stubGate{}, stubSender{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.LastNotificationAt != "" {
		t.Errorf("expected empty last_notification_at, got %s", resp.LastNotificationAt)
	}
}

func TestManualNotify(t *testing.T) {
	router := newTestRouter(stubGate{}, stubSender{id: "msg-42"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notify", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp notifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.MessageID != "msg-42" {
		t.Errorf("unexpected message id: %s", resp.MessageID)
	}
}

func TestManualNotifySendFailure(t *testing.T) {
	router := newTestRouter(stubGate{}, stubSender{err: fmt.Errorf("fcm rejected")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notify", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	var resp notifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("expected failure response")
	}
	if resp.Error == "" {
		t.Error("expected error message in response")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(stubGate{}, stubSender{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
