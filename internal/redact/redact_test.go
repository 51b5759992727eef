package redact

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRedactSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"redacted_text":"call me at [REDACTED]"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, false)
	text, note, err := c.Redact(context.Background(), "call me at 555-1234")
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if text != "call me at [REDACTED]" {
		t.Fatalf("unexpected text %q", text)
	}
	if note != "" {
		t.Fatalf("successful redaction should carry no note, got %q", note)
	}
}

func TestRedactFailOpenKeepsOriginalWithNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, false)
	text, note, err := c.Redact(context.Background(), "original text")
	if err != nil {
		t.Fatalf("fail-open must not error: %v", err)
	}
	if text != "original text" {
		t.Fatalf("fail-open must keep the original text, got %q", text)
	}
	if !strings.Contains(note, "redaction unavailable") {
		t.Fatalf("expected fallback note, got %q", note)
	}
}

func TestRedactFailClosedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, true)
	if _, _, err := c.Redact(context.Background(), "original text"); err == nil {
		t.Fatal("fail-closed must surface the error")
	}
}

func TestRedactNoServiceConfigured(t *testing.T) {
	c := NewClient("", time.Second, false)
	text, note, err := c.Redact(context.Background(), "as is")
	if err != nil {
		t.Fatalf("redact: %v", err)
	}
	if text != "as is" {
		t.Fatalf("unexpected text %q", text)
	}
	if !strings.Contains(note, "no redactor configured") {
		t.Fatalf("expected skip note, got %q", note)
	}
}

func TestRedactUnreachableService(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 200*time.Millisecond, false)
	text, note, err := c.Redact(context.Background(), "still here")
	if err != nil {
		t.Fatalf("fail-open must not error: %v", err)
	}
	if text != "still here" || note == "" {
		t.Fatalf("expected original text with note, got %q / %q", text, note)
	}
	// The note records why the service was unreachable, not just that it was.
	if !strings.Contains(note, "refused") && !strings.Contains(note, "connect") {
		t.Fatalf("note should carry the transport cause, got %q", note)
	}
}
