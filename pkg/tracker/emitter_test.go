package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewEmitterRequiresBaseURL(t *testing.T) {
	if _, err := NewEmitter("   ", nil); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestEmitPostsEventToTrackEndpoint(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/track" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("NewEmitter returned error: %v", err)
	}
	err = emitter.Emit(context.Background(), Event{
		ApplicationID: "app-1",
		RepositoryURL: "https://github.com/acme/app",
		Runtime:       "go",
	})
	if err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	if got["repository_url"] != "https://github.com/acme/app" {
		t.Fatalf("unexpected payload: %v", got)
	}
	if _, present := got["test"]; present {
		t.Fatal("expected no test flag on real emission")
	}
}

func TestValidateSetsTestFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if payload["test"] != true {
			t.Errorf("expected test flag, got %v", payload["test"])
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewEmitter returned error: %v", err)
	}
	if err := emitter.Validate(context.Background(), Event{ApplicationID: "app-1"}); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestValidateSurfacesMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"missing":["space_id","config"]}`))
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewEmitter returned error: %v", err)
	}
	err = emitter.Validate(context.Background(), Event{ApplicationID: "app-1"})
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if !strings.Contains(err.Error(), "space_id") || !strings.Contains(err.Error(), "config") {
		t.Fatalf("expected missing fields in error, got %v", err)
	}
}

func TestEmitMapsServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewEmitter returned error: %v", err)
	}
	err = emitter.Emit(context.Background(), Event{ApplicationID: "app-1"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
