package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/janekbaraniewski/usagewatch/internal/core"
)

func TestDo_SuccessDecodesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept header = %q, want application/json", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	env, err := NewClient().Get(context.Background(), srv.URL, RequestOptions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !env.Success || env.Status != 200 {
		t.Fatalf("env = %+v, want success with status 200", env)
	}
	if string(env.Data) != `{"ok":true}` {
		t.Fatalf("env.Data = %s, want raw JSON body", env.Data)
	}
	if env.Text != "" {
		t.Fatalf("env.Text = %q, want empty for JSON responses", env.Text)
	}
}

func TestDo_NonJSONBodyLandsInText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain body"))
	}))
	defer srv.Close()

	env, err := NewClient().Get(context.Background(), srv.URL, RequestOptions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if env.Text != "plain body" || env.Data != nil {
		t.Fatalf("env = %+v, want text body and no data", env)
	}
}

func TestDo_InvalidJSONFallsBackToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"broken":`))
	}))
	defer srv.Close()

	env, err := NewClient().Get(context.Background(), srv.URL, RequestOptions{})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if env.Data != nil {
		t.Fatalf("env.Data = %s, want nil for invalid JSON", env.Data)
	}
	if env.Text != `{"broken":` {
		t.Fatalf("env.Text = %q, want the raw body", env.Text)
	}
}

func TestDo_FailureStatusIsDataNotError(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		ct      string
		wantMsg string
	}{
		{"error field", 400, `{"error":"bad request body"}`, "application/json", "bad request body"},
		{"message field", 500, `{"message":"internal problem"}`, "application/json", "internal problem"},
		{"no parsable body", 502, "gateway blew up", "text/plain", "HTTP 502: Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.ct)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			env, err := NewClient().Get(context.Background(), srv.URL, RequestOptions{})
			if err != nil {
				t.Fatalf("Get() error = %v, want nil (HTTP failures are envelope data)", err)
			}
			if env.Success {
				t.Fatal("env.Success = true, want false")
			}
			if env.Status != tt.status {
				t.Fatalf("env.Status = %d, want %d", env.Status, tt.status)
			}
			if env.ErrMessage != tt.wantMsg {
				t.Fatalf("env.ErrMessage = %q, want %q", env.ErrMessage, tt.wantMsg)
			}
		})
	}
}

func TestDo_PostMarshalsBodyAndSetsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	env, err := NewClient().Post(context.Background(), srv.URL, RequestOptions{
		Body: map[string]string{"key": "value"},
	})
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if !env.Success {
		t.Fatalf("env = %+v, want success", env)
	}
}

func TestDo_PerRequestHeadersOverrideDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/html" {
			t.Errorf("Accept = %q, want text/html override", got)
		}
		if got := r.Header.Get("Cookie"); got != "__session=abc" {
			t.Errorf("Cookie = %q, want __session=abc", got)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient()
	c.SetDefaultHeader("Cookie", "__session=abc")
	_, err := c.Get(context.Background(), srv.URL, RequestOptions{
		Headers: map[string]string{"Accept": "text/html"},
	})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
}

func TestDo_TimeoutClassifiedAsNetworkTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	_, err := NewClient().Get(context.Background(), srv.URL, RequestOptions{
		Timeout: 50 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("Get() = nil error, want timeout")
	}
	if core.KindOf(err) != core.KindNetwork {
		t.Fatalf("error kind = %v, want network", core.KindOf(err))
	}
	if core.ReasonOf(err) != core.ReasonTimeout {
		t.Fatalf("error reason = %v, want timeout", core.ReasonOf(err))
	}
}

func TestDo_ConnectionRefusedClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient().Get(context.Background(), url, RequestOptions{})
	if err == nil {
		t.Fatal("Get() = nil error, want connection failure")
	}
	if core.ReasonOf(err) != core.ReasonRefused {
		t.Fatalf("error reason = %v, want refused", core.ReasonOf(err))
	}
}

func TestDo_UnmarshalableBodyIsValidationError(t *testing.T) {
	_, err := NewClient().Post(context.Background(), "http://127.0.0.1:0", RequestOptions{
		Body: make(chan int),
	})
	if core.KindOf(err) != core.KindValidation {
		t.Fatalf("error kind = %v, want validation", core.KindOf(err))
	}
}
