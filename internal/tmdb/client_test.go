package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
)

func TestPopularMovies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/popular" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("api_key") != "secret-key" {
			t.Errorf("unexpected api_key %q", q.Get("api_key"))
		}
		if q.Get("language") != "es-ES" {
			t.Errorf("unexpected language %q", q.Get("language"))
		}
		if q.Get("page") != "2" {
			t.Errorf("unexpected page %q", q.Get("page"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"page":2,"results":[{"id":100,"title":"A"}],"total_pages":5,"total_results":90}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL)
	results, err := client.Popular(context.Background(), "secret-key", domain.KindMovie, 2)
	if err != nil {
		t.Fatalf("popular: %v", err)
	}
	if string(results) != `[{"id":100,"title":"A"}]` {
		t.Fatalf("unexpected results %s", results)
	}
}

func TestPopularSeriesPathAndDefaultPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tv/popular" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "1" {
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
		w.Write([]byte(`{"page":1,"results":[]}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL)
	results, err := client.Popular(context.Background(), "secret-key", domain.KindSeries, 0)
	if err != nil {
		t.Fatalf("popular: %v", err)
	}
	if string(results) != "[]" {
		t.Fatalf("unexpected results %s", results)
	}
}

func TestPopularMissingResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"page":1}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL)
	results, err := client.Popular(context.Background(), "secret-key", domain.KindMovie, 1)
	if err != nil {
		t.Fatalf("popular: %v", err)
	}
	if string(results) != "[]" {
		t.Fatalf("expected empty array, got %s", results)
	}
}

func TestPopularTransportErrorOmitsAPIKey(t *testing.T) {
	client := NewClientWithBaseURL("http://127.0.0.1:1")
	_, err := client.Popular(context.Background(), "super-secret-key", domain.KindMovie, 1)
	if err == nil {
		t.Fatalf("expected transport error for unreachable upstream")
	}
	if strings.Contains(err.Error(), "super-secret-key") {
		t.Fatalf("transport error leaks the api key: %v", err)
	}
}

func TestPopularUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status_message":"Invalid API key"}`))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(srv.URL)
	if _, err := client.Popular(context.Background(), "bad-key", domain.KindMovie, 1); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}
