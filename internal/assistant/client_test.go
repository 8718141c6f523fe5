package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGenerate_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get(apiKeyHeader); got != "secret" {
			t.Fatalf("api key = %q, want secret", got)
		}

		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "be brief" {
			t.Fatalf("unexpected system instruction: %+v", req.SystemInstruction)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[0].Text != "clean code" {
			t.Fatalf("unexpected contents: %+v", req.Contents)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Try Clean Code."},{"text":"It is in the catalog."}]}}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "secret", nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	reply, err := client.Generate(ctx, "be brief", "clean code")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if reply != "Try Clean Code.\nIt is in the catalog." {
		t.Fatalf("reply = %q", reply)
	}
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Generate(ctx, "", "q")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if reply != "ok" {
		t.Fatalf("reply = %q, want ok", reply)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestGenerate_EmptyReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "", nil)

	_, err := client.Generate(context.Background(), "", "q")
	if err != ErrEmptyReply {
		t.Fatalf("err = %v, want ErrEmptyReply", err)
	}
}

func TestGenerate_NotConfigured(t *testing.T) {
	var client *Client
	if _, err := client.Generate(context.Background(), "", "q"); err != ErrNotConfigured {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}

	client = NewClient("", "", nil)
	if _, err := client.Generate(context.Background(), "", "q"); err != ErrNotConfigured {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGenerate_BadRequest(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "", nil)

	if _, err := client.Generate(context.Background(), "", "q"); err == nil {
		t.Fatalf("expected error for 400")
	}
}
