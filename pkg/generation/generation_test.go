package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMockProvider(t *testing.T) {
	ctx := context.Background()
	mock := NewMock("Hello", " there.")

	stream, err := mock.Stream(ctx, NewPrompt("be brief", "hi"))
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	text, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if text != "Hello there." {
		t.Errorf("Expected %q, got %q", "Hello there.", text)
	}

	if mock.CallCount("Stream") != 1 {
		t.Errorf("Expected 1 Stream call, got %d", mock.CallCount("Stream"))
	}
	reqs := mock.Requests()
	if len(reqs) != 1 || len(reqs[0].Messages) != 2 {
		t.Fatalf("Unexpected requests: %+v", reqs)
	}
	if reqs[0].Messages[0].Role != RoleSystem || reqs[0].Messages[1].Content != "hi" {
		t.Errorf("Unexpected prompt messages: %+v", reqs[0].Messages)
	}

	mock.Reset()
	if mock.CallCount("Stream") != 0 || len(mock.Requests()) != 0 {
		t.Error("Expected no recorded calls after reset")
	}
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := WithError(testErr)

	_, err := mock.Stream(context.Background(), NewPrompt("", "hi"))
	if !errors.Is(err, testErr) {
		t.Errorf("Expected test error, got: %v", err)
	}
}

func TestDeltas_SkipsEmptyAndStopsEarly(t *testing.T) {
	s := NewSliceStream(context.Background(), 0, "a", "", "b", "c")

	var got []string
	for d, err := range Deltas(s) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, d)
		if d == "b" {
			break
		}
	}

	if strings.Join(got, ",") != "a,b" {
		t.Errorf("Expected a,b got %v", got)
	}
	if _, err := s.Recv(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Expected stream closed after early stop, got %v", err)
	}
}

type failingStream struct{ n int }

func (f *failingStream) Recv() (*Chunk, error) {
	f.n++
	if f.n == 1 {
		return &Chunk{Delta: "partial"}, nil
	}
	return nil, errors.New("connection reset")
}

func (f *failingStream) Close() error { return nil }

func TestDeltas_PropagatesError(t *testing.T) {
	text, err := Collect(&failingStream{})
	if err == nil {
		t.Fatal("Expected error")
	}
	if text != "partial" {
		t.Errorf("Expected partial text before error, got %q", text)
	}
}

func TestSliceStream_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSliceStream(ctx, time.Hour, "never")

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if _, err := s.Recv(); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := newConfig(DefaultOpenAIModel,
		WithBaseURL("http://localhost:11434/v1"),
		WithAPIKey("test-key"),
		WithModel("llama3"),
		WithMaxTokens(128),
		WithTemperature(0.2),
		WithTimeout(time.Second),
	)

	if cfg.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("Expected Ollama URL, got %s", cfg.BaseURL)
	}
	if cfg.APIKey != "test-key" {
		t.Errorf("Expected test-key, got %s", cfg.APIKey)
	}
	if cfg.Model != "llama3" {
		t.Errorf("Expected llama3, got %s", cfg.Model)
	}
	if cfg.MaxTokens != 128 {
		t.Errorf("Expected 128, got %d", cfg.MaxTokens)
	}
	if cfg.Temperature != 0.2 {
		t.Errorf("Expected 0.2, got %f", cfg.Temperature)
	}
	if cfg.Timeout != time.Second {
		t.Errorf("Expected 1s, got %v", cfg.Timeout)
	}
}

func TestNewProviders_RequireAPIKey(t *testing.T) {
	if _, err := NewOpenAI(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("NewOpenAI without key: expected ErrNoAPIKey, got %v", err)
	}
	if _, err := NewGemini(context.Background()); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("NewGemini without key: expected ErrNoAPIKey, got %v", err)
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status       int
		code         string
		rateLimited  bool
		unauthorized bool
		temporary    bool
		wantText     string
	}{
		{429, "", true, false, true, "429 Too Many Requests"},
		{401, "", false, true, false, "401 Unauthorized"},
		{503, "overloaded", false, false, true, "503 overloaded"},
		{400, "", false, false, false, "400 Bad Request"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := &APIError{Provider: "test", StatusCode: tt.status, Code: tt.code, Message: "msg"}
			if err.RateLimited() != tt.rateLimited {
				t.Errorf("RateLimited() = %v", err.RateLimited())
			}
			if err.Unauthorized() != tt.unauthorized {
				t.Errorf("Unauthorized() = %v", err.Unauthorized())
			}
			if err.Temporary() != tt.temporary {
				t.Errorf("Temporary() = %v", err.Temporary())
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("Error() = %q, want it to contain %q", err.Error(), tt.wantText)
			}
		})
	}
}

func TestWrapError(t *testing.T) {
	if WrapError("x", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}

	base := errors.New("boom")
	wrapped := WrapError("openai", base)
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should unwrap to base")
	}
	if WrapError("openai", wrapped) != wrapped {
		t.Error("wrapping twice for the same provider should be a no-op")
	}
}

func TestOpenAI_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Xin", " chào", "!"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := NewOpenAI(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	defer p.Close()

	stream, err := p.Stream(context.Background(), NewPrompt("short answers", "chào"))
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	text, err := Collect(stream)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if text != "Xin chào!" {
		t.Errorf("Expected %q, got %q", "Xin chào!", text)
	}
}

func TestOpenAI_StreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit","code":"rate_limited"}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAI(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}

	_, err = p.Stream(context.Background(), NewPrompt("", "hi"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if !apiErr.RateLimited() {
		t.Errorf("Expected 429, got %d", apiErr.StatusCode)
	}
}

func TestSplitSystem(t *testing.T) {
	sys, turns := splitSystem([]Message{
		NewSystemMessage("a"),
		NewUserMessage("q"),
		NewSystemMessage("b"),
	})
	if sys != "a\nb" {
		t.Errorf("Expected joined system text, got %q", sys)
	}
	if len(turns) != 1 || turns[0].Content != "q" {
		t.Errorf("Unexpected turns %+v", turns)
	}
}
