package httpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{"bounded", time.Second},
		{"streaming", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.timeout)
			if c.Timeout != tt.timeout {
				t.Errorf("Timeout = %v, want %v", c.Timeout, tt.timeout)
			}
			tr, ok := c.Transport.(*http.Transport)
			if !ok || tr.ResponseHeaderTimeout != headerTimeout {
				t.Errorf("transport should bound header wait, got %+v", c.Transport)
			}

			resp, err := c.Get(srv.URL)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d", resp.StatusCode)
			}
		})
	}
}

func TestNewClient_Independent(t *testing.T) {
	a, b := NewClient(0), NewClient(0)
	if a.Transport == b.Transport {
		t.Error("clients must not share a transport")
	}
}
