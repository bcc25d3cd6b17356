package preview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (s *stubFetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rawURL)
	s.mu.Unlock()

	if s.fail[rawURL] {
		return nil, errors.New("boom")
	}
	return &Preview{URL: rawURL, Title: "title of " + rawURL}, nil
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"none", "just words", nil},
		{"single", "check https://example.com out", []string{"https://example.com"}},
		{"ordered with duplicates", "a http://a.test/x b https://b.test a http://a.test/x",
			[]string{"http://a.test/x", "https://b.test", "http://a.test/x"}},
		{"trailing punctuation", "see https://example.com/page.", []string{"https://example.com/page"}},
		{"non http schemes skipped", "mail mailto:me@example.com or ftp://files.test", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractURLs(tt.input))
		})
	}
}

func TestEnrich_KeepsOrderAndSkipsFailures(t *testing.T) {
	fetcher := &stubFetcher{fail: map[string]bool{"https://b.test": true}}
	enricher := NewEnricher(fetcher)

	previews := enricher.Enrich(context.Background(), "https://a.test https://b.test https://c.test https://a.test")

	require.Len(t, previews, 3)
	assert.Equal(t, "https://a.test", previews[0].URL)
	assert.Equal(t, "https://c.test", previews[1].URL)
	assert.Equal(t, "https://a.test", previews[2].URL)
	assert.Len(t, fetcher.calls, 4)
}

func TestEnrich_NoURLs(t *testing.T) {
	fetcher := &stubFetcher{}
	previews := NewEnricher(fetcher).Enrich(context.Background(), "hello world")

	assert.NotNil(t, previews)
	assert.Empty(t, previews)
	assert.Empty(t, fetcher.calls)
}

func TestEnrich_SingleURLExample(t *testing.T) {
	previews := NewEnricher(&stubFetcher{}).Enrich(context.Background(), "check https://example.com out")

	require.LessOrEqual(t, len(previews), 1)
	require.Len(t, previews, 1)
	assert.Equal(t, "https://example.com", previews[0].URL)
}

func TestHTTPFetcher_ReadsOpenGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html><html><head>
<title>Plain title</title>
<meta property="og:title" content="OG title">
<meta name="description" content="A page about things">
<meta property="og:image" content="/img/cover.png">
</head><body><meta property="og:title" content="ignored"></body></html>`))
	}))
	defer server.Close()

	p, err := NewHTTPFetcher(time.Second).Fetch(context.Background(), server.URL+"/article")

	require.NoError(t, err)
	assert.Equal(t, server.URL+"/article", p.URL)
	assert.Equal(t, "OG title", p.Title)
	assert.Equal(t, "A page about things", p.Description)
	assert.Equal(t, server.URL+"/img/cover.png", p.Image)
}

func TestHTTPFetcher_FallsBackToTitleAndHost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Path == "/untitled" {
			w.Write([]byte(`<html><head></head><body>nothing</body></html>`))
			return
		}
		w.Write([]byte(`<html><head><title> Plain title </title></head></html>`))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(time.Second)

	p, err := fetcher.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "Plain title", p.Title)
	assert.Empty(t, p.Image)

	p, err = fetcher.Fetch(context.Background(), server.URL+"/untitled")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", p.Title)
}

func TestHTTPFetcher_RejectsNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"nope"}`))
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(time.Second).Fetch(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrNotHTML)
}

func TestHTTPFetcher_RejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(time.Second).Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestHTTPFetcher_TimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := NewHTTPFetcher(50 * time.Millisecond).Fetch(context.Background(), server.URL)

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEnrich_WithHTTPFetcherDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	previews := NewEnricher(NewHTTPFetcher(time.Second)).Enrich(context.Background(), "look "+server.URL)

	assert.Empty(t, previews)
}
