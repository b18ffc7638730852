package daily

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestProvisioner(t *testing.T, srv *httptest.Server, retries uint64) *Provisioner {
	t.Helper()
	p, err := NewProvisioner(Config{
		APIBase:       srv.URL,
		APIKey:        "secret",
		RoomTTL:       time.Minute,
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
		Now:           func() time.Time { return time.Unix(1000, 0) },
	})
	if err != nil {
		t.Fatalf("new provisioner: %v", err)
	}
	return p
}

func TestCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rooms" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization %q", got)
		}
		var body createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Properties.Exp != 1060 {
			t.Errorf("expected exp 1060, got %d", body.Properties.Exp)
		}
		w.Write([]byte(`{"name":"room1","url":"https://example.daily.co/room1"}`))
	}))
	defer srv.Close()

	room, err := newTestProvisioner(t, srv, 0).CreateRoom(context.Background())
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if room != "https://example.daily.co/room1" {
		t.Fatalf("unexpected room %s", room)
	}
}

func TestCreateRoomRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"url":"https://example.daily.co/room1"}`))
	}))
	defer srv.Close()

	if _, err := newTestProvisioner(t, srv, 5).CreateRoom(context.Background()); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestCreateRoomClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"authentication-error"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestProvisioner(t, srv, 5).CreateRoom(context.Background())
	if !errors.Is(err, ErrProvision) {
		t.Fatalf("expected ErrProvision, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestCreateRoomRejectsBadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":""}`))
	}))
	defer srv.Close()

	if _, err := newTestProvisioner(t, srv, 2).CreateRoom(context.Background()); !errors.Is(err, ErrProvision) {
		t.Fatalf("expected ErrProvision, got %v", err)
	}
}

func TestNewProvisionerRequiresKey(t *testing.T) {
	if _, err := NewProvisioner(Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
