package peer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDeliver_Success(t *testing.T) {
	var gotPath string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	defer server.Close()

	client := New(server.URL, 0)
	resp, err := client.Deliver(context.Background(), json.RawMessage(`{"total":10}`))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if gotPath != "/sync/cc-sale" {
		t.Fatalf("expected /sync/cc-sale, got %s", gotPath)
	}
	if string(gotBody) != `{"total":10}` {
		t.Fatalf("unexpected body: %s", gotBody)
	}
	if !strings.Contains(string(resp), "received") {
		t.Fatalf("unexpected response: %s", resp)
	}
}

func TestDeliver_NonSuccessStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, 0)
	if _, err := client.Deliver(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestDeliver_TimesOut(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := New(server.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := client.Deliver(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestListProducts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync/products" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"barcode":"123"}]`))
	}))
	defer server.Close()

	client := New(server.URL, 0)
	listing, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if !strings.Contains(string(listing), "123") {
		t.Fatalf("unexpected listing: %s", listing)
	}
}
