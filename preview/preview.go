package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"mvdan.cc/xurls/v2"
)

const (
	DefaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
	maxConcurrent  = 4
	userAgent      = "Mozilla/5.0 (compatible; SNSPreviewBot/1.0)"
)

var ErrNotHTML = errors.New("response is not html")

type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Preview, error)
}

var strict = xurls.Strict()

// ExtractURLs returns every URL in text in order of appearance, duplicates
// included.
func ExtractURLs(text string) []string {
	var urls []string
	for _, u := range strict.FindAllString(text, -1) {
		lower := strings.ToLower(u)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			urls = append(urls, u)
		}
	}
	return urls
}

// Enricher turns post text into the list of link previews stored with it.
type Enricher struct {
	fetcher Fetcher
}

func NewEnricher(fetcher Fetcher) *Enricher {
	return &Enricher{fetcher: fetcher}
}

// Enrich fetches a preview for every URL in text. URLs whose fetch fails
// are left out; the result keeps the order of the URLs in the text.
func (e *Enricher) Enrich(ctx context.Context, text string) []Preview {
	urls := ExtractURLs(text)
	if len(urls) == 0 || e == nil || e.fetcher == nil {
		return []Preview{}
	}

	results := make([]*Preview, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			p, err := e.fetcher.Fetch(gctx, u)
			if err != nil {
				log.Printf("preview %s: %v", u, err)
				return nil
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()

	previews := make([]Preview, 0, len(urls))
	for _, p := range results {
		if p != nil {
			previews = append(previews, *p)
		}
	}
	return previews
}

// HTTPFetcher reads title, description and image from a page's <head>.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || (mediaType != "text/html" && mediaType != "application/xhtml+xml") {
		return nil, ErrNotHTML
	}

	meta, err := parseHead(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base := resp.Request.URL
	p := &Preview{
		URL:         rawURL,
		Title:       firstNonEmpty(meta["og:title"], meta["twitter:title"], meta["title"]),
		Description: firstNonEmpty(meta["og:description"], meta["description"], meta["twitter:description"]),
		Image:       resolve(base, firstNonEmpty(meta["og:image"], meta["twitter:image"])),
	}
	if p.Title == "" {
		p.Title = base.Hostname()
	}
	return p, nil
}

// parseHead collects <title> and <meta> values keyed by property or name,
// stopping at <body>. The first value seen for a key wins.
func parseHead(r io.Reader) (map[string]string, error) {
	meta := map[string]string{}
	set := func(key, value string) {
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			return
		}
		if _, ok := meta[key]; !ok {
			meta[key] = value
		}
	}

	z := html.NewTokenizer(r)
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return meta, nil
			}
			return meta, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "body":
				return meta, nil
			case "title":
				inTitle = true
			case "meta":
				var key, content string
				for _, attr := range tok.Attr {
					switch strings.ToLower(attr.Key) {
					case "property", "name":
						if key == "" {
							key = attr.Val
						}
					case "content":
						content = attr.Val
					}
				}
				set(key, content)
			}
		case html.TextToken:
			if inTitle {
				set("title", string(z.Text()))
			}
		case html.EndTagToken:
			if tok := z.Token(); tok.Data == "title" {
				inTitle = false
			}
		}
	}
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
