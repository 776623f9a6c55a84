package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
)

func newTestClient(url string, opts ...ClientOption) *Client {
	opts = append([]ClientOption{WithBaseURL(url), WithTimeout(2 * time.Second)}, opts...)
	return NewClient("test-token", opts...)
}

func TestNewClient(t *testing.T) {
	t.Run("creates client with default config", func(t *testing.T) {
		client := NewClient("tok")

		if client.config.Token != "tok" {
			t.Errorf("expected token 'tok', got '%s'", client.config.Token)
		}
		if client.config.BaseURL != DefaultBaseURL {
			t.Errorf("expected base URL '%s', got '%s'", DefaultBaseURL, client.config.BaseURL)
		}
		if client.config.MaxRetries != DefaultMaxRetries {
			t.Errorf("expected %d max retries, got %d", DefaultMaxRetries, client.config.MaxRetries)
		}
	})

	t.Run("applies functional options", func(t *testing.T) {
		client := NewClient("tok",
			WithBaseURL("https://study.example.com/api/"),
			WithTimeout(3*time.Second),
			WithMaxRetries(0),
		)

		if client.BaseURL() != "https://study.example.com/api" {
			t.Errorf("expected trailing slash trimmed, got '%s'", client.BaseURL())
		}
		if client.httpClient.Timeout != 3*time.Second {
			t.Errorf("expected timeout 3s, got %v", client.httpClient.Timeout)
		}
		if client.config.MaxRetries != 0 {
			t.Errorf("expected 0 retries, got %d", client.config.MaxRetries)
		}
	})
}

func TestClient_StartSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != EndpointStart {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer token, got '%s'", got)
		}
		var req session.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if req.Subject != "Math" || req.TargetTime != 1500 {
			t.Errorf("unexpected body %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sessionId":"abc","subject":"Math","targetTime":1500,"status":"active","elapsedTime":0}`))
	}))
	defer server.Close()

	sess, err := newTestClient(server.URL).StartSession(context.Background(), session.StartRequest{Subject: "Math", TargetTime: 1500})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if sess.ID != "abc" || !sess.IsActive() || sess.TargetTime != 1500 {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestClient_StartSessionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(3)).StartSession(context.Background(), session.StartRequest{Subject: "Math", TargetTime: 60})
	if !errors.IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestClient_ActiveSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != EndpointSessions {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"sessionId":"a","subject":"Math","status":"active","targetTime":60,"elapsedTime":5},
			{"sessionId":"b","subject":"Bio","status":"ended","targetTime":60,"elapsedTime":60},
			{"sessionId":"","subject":"Broken","status":"active"},
			{"sessionId":"c","subject":"Art","status":"paused","targetTime":60,"elapsedTime":9}
		]`))
	}))
	defer server.Close()

	sessions, err := newTestClient(server.URL).ActiveSessions(context.Background())
	if err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "a" || sessions[1].ID != "c" {
		t.Errorf("unexpected sessions %+v", sessions)
	}
}

func TestClient_ActiveSessionsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	sessions, err := newTestClient(server.URL, WithMaxRetries(2)).ActiveSessions(context.Background())
	if err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions, got %d", len(sessions))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestClient_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/session/abc" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type")
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"elapsedTime":42}` {
			t.Errorf("unexpected body %s", body)
		}
		_, _ = w.Write([]byte(`{"sessionId":"abc","elapsedTime":42}`))
	}))
	defer server.Close()

	body, err := newTestClient(server.URL).Execute(context.Background(), outbox.WriteRequest{
		Method: http.MethodPut,
		Path:   "/session/abc",
		Body:   json.RawMessage(`{"elapsedTime":42}`),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(body) != `{"sessionId":"abc","elapsedTime":42}` {
		t.Errorf("unexpected response %s", body)
	}
}

func TestClient_ExecuteErrorMapping(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
		wantRejected  bool
	}{
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, true, false},
		{"gateway timeout", http.StatusGatewayTimeout, ``, true, false},
		{"rate limited", http.StatusTooManyRequests, ``, true, false},
		{"not found", http.StatusNotFound, `{"message":"no session"}`, false, true},
		{"conflict", http.StatusConflict, `session ended`, false, true},
		{"unauthorized", http.StatusUnauthorized, ``, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Execute(context.Background(), outbox.WriteRequest{
				Method: http.MethodPost,
				Path:   "/session/abc/end",
				Body:   json.RawMessage(`{}`),
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient() = %v, want %v (err: %v)", got, tt.wantTransient, err)
			}
			if got := errors.IsRejected(err); got != tt.wantRejected {
				t.Errorf("IsRejected() = %v, want %v (err: %v)", got, tt.wantRejected, err)
			}
			if calls.Load() != 1 {
				t.Errorf("writes must not be retried, got %d calls", calls.Load())
			}
		})
	}
}

func TestClient_TransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url).Execute(context.Background(), outbox.WriteRequest{Method: http.MethodPut, Path: "/session/x", Body: json.RawMessage(`{}`)})
	if !errors.IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
	if err := newTestClient(url).Ping(context.Background()); !errors.IsTransient(err) {
		t.Errorf("Ping() expected transient error, got %v", err)
	}
}

func TestClient_ExecuteRejectsNonMutating(t *testing.T) {
	_, err := NewClient("").Execute(context.Background(), outbox.WriteRequest{Method: http.MethodGet, Path: "/session/x"})
	if errors.CodeOf(err) != errors.CodeValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestClient_Ping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"ok", http.StatusOK, false},
		{"unauthorized still reachable", http.StatusUnauthorized, false},
		{"server down", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := newTestClient(server.URL).Ping(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Ping() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_NoTokenOmitsAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header")
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	if _, err := NewClient("", WithBaseURL(server.URL)).ActiveSessions(context.Background()); err != nil {
		t.Fatalf("ActiveSessions() error = %v", err)
	}
}
