package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailwatch/pkg/message"
)

func TestNotifyPostsSummary(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(WithWebhookURL(srv.URL + "/"))
	msg := message.Message{
		Subject: "Hi",
		Sender:  "a@x.com",
		UID:     6,
		Date:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := n.Notify(msg); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	if gotPath != "/notifications" {
		t.Errorf("posted to %q, want /notifications", gotPath)
	}
	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	if payload["uid"] != float64(6) {
		t.Errorf("uid = %v, want 6", payload["uid"])
	}
}

func TestNotifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := New(WithWebhookURL(srv.URL))
	if err := n.Notify(message.Message{Subject: "Hi"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestNotifyWithoutURLIsNoop(t *testing.T) {
	if err := New().Notify(message.Message{Subject: "Hi"}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
}
