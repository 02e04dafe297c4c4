package whttp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestSendHTTPRequestExtractsHTMLTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html><head><title>\n502 Bad Gateway\r\n</title></head><body>nginx</body></html>")
	}))
	defer srv.Close()

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{Method: "GET", URL: srv.URL}, NewClient(0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.StatusCode)
	}
	if res.HTTPTitle != "502 Bad Gateway" {
		t.Fatalf("unexpected title %q", res.HTTPTitle)
	}
	if res.IsSuccess() {
		t.Fatalf("502 is not a success")
	}
}

func TestSendHTTPRequestSendsBodyAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("X-Test") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write(b)
	}))
	defer srv.Close()

	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{
		Method:  "POST",
		URL:     srv.URL,
		Headers: []WHTTPHeader{{Name: "X-Test", Value: "1"}},
		Body:    []byte(`{"a":1}`),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsSuccess() || res.BodyString != `{"a":1}` || res.HTTPTitle != "" {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestNewClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(3, 0)
	c.RetryWaitMin = 0
	c.RetryWaitMax = 0
	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{Method: "GET", URL: srv.URL}, c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BodyString != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected success on third call, got %q after %d calls", res.BodyString, calls)
	}
}
