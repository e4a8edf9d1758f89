package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchPageReturnsBodyAndHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("<html><body>Mass at 10:00 AM</body></html>"))
	}))
	defer srv.Close()

	f := New()
	html, hash, err := f.FetchPage(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if html == "" || hash == "" {
		t.Fatalf("FetchPage returned empty html or hash")
	}

	_, hash2, err := f.FetchPage(context.Background(), srv.URL+"/")
	if err != nil {
		t.Fatalf("second FetchPage returned error: %v", err)
	}
	if hash != hash2 {
		t.Errorf("hash not stable across identical fetches: %s != %s", hash, hash2)
	}
}

func TestFetchPageHonoursRobotsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		default:
			w.Write([]byte("ok"))
		}
	}))
	defer srv.Close()

	f := New()
	if _, _, err := f.FetchPage(context.Background(), srv.URL+"/private/page"); err == nil {
		t.Fatal("expected robots.txt disallow to produce an error")
	}
}

func TestFindLatestPDFLinkPicksLastMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<html><body>
			<a href="/bulletins/2026-01-04.pdf">Jan 4</a>
			<a href="/bulletins/2026-01-11.pdf">Jan 11</a>
			<a href="/about">About</a>
		</body></html>`))
	}))
	defer srv.Close()

	f := New()
	link, err := f.FindLatestPDFLink(context.Background(), srv.URL+"/", "")
	if err != nil {
		t.Fatalf("FindLatestPDFLink returned error: %v", err)
	}
	if link != srv.URL+"/bulletins/2026-01-11.pdf" {
		t.Errorf("FindLatestPDFLink = %q, want the last PDF link", link)
	}
}

func TestFindLatestPDFLinkAppliesPattern(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<html><body>
			<a href="/archive/old-bulletin.pdf">Old</a>
			<a href="/weekly/bulletin-2026-02.pdf">Weekly</a>
		</body></html>`))
	}))
	defer srv.Close()

	f := New()
	link, err := f.FindLatestPDFLink(context.Background(), srv.URL+"/", "weekly/bulletin")
	if err != nil {
		t.Fatalf("FindLatestPDFLink returned error: %v", err)
	}
	if link != srv.URL+"/weekly/bulletin-2026-02.pdf" {
		t.Errorf("FindLatestPDFLink = %q, want the pattern-matching link", link)
	}
}

func TestFindLatestPDFLinkNoMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`<html><body><a href="/about">About</a></body></html>`))
	}))
	defer srv.Close()

	f := New()
	if _, err := f.FindLatestPDFLink(context.Background(), srv.URL+"/", ""); err == nil {
		t.Fatal("expected error when no pdf links are present")
	}
}
