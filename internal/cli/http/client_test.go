package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientDo(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-Id") == "" {
			t.Errorf("expected request id header")
		}
		if r.Header.Get("X-Trace-Id") != "trace-1" {
			t.Errorf("expected trace header, got %q", r.Header.Get("X-Trace-Id"))
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(r.Method + " " + r.URL.Path + " " + string(body)))
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	resp, err := client.Do(context.Background(), http.MethodPost, "/execute", map[string]string{"X-Trace-Id": "trace-1"}, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("do failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `POST /execute {"a":1}` {
		t.Fatalf("unexpected body %q", resp.Body)
	}
}
