// Package browser runs the post deploy smoke test of a site: every page
// listed in the site's test file must load with the expected title.
package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"deploy.evalgo.org/network"
)

// Browser loads pages and reports the title of the current page.
type Browser interface {
	Get(ctx context.Context, url string) error
	Title() string
	Close() error
}

// HTTPBrowser fetches pages over HTTP and reads the <title> element. It
// does not run scripts, so titles set by JavaScript are not seen.
type HTTPBrowser struct {
	mu     sync.Mutex
	client *http.Client
	title  string
	closed bool
}

func NewHTTPBrowser(client *http.Client) *HTTPBrowser {
	return &HTTPBrowser{client: client}
}

func (b *HTTPBrowser) Get(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("browser is closed")
	}
	b.title = ""
	status, body, err := network.HTTPGet(ctx, b.client, url)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return fmt.Errorf("GET %s: status %d", url, status)
	}
	b.title = PageTitle(body)
	return nil
}

func (b *HTTPBrowser) Title() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.title
}

// Close may be called more than once.
func (b *HTTPBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.client.CloseIdleConnections()
	}
	return nil
}

// PageTitle returns the text of the first <title> element, trimmed.
func PageTitle(page []byte) string {
	z := html.NewTokenizer(bytes.NewReader(page))
	inTitle := false
	var title strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(title.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "title" {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "title" && inTitle {
				return strings.TrimSpace(title.String())
			}
		case html.TextToken:
			if inTitle {
				title.Write(z.Text())
			}
		}
	}
}

// MockBrowser returns scripted titles per URL and records the pages
// loaded.
type MockBrowser struct {
	mu      sync.Mutex
	Titles  map[string]string
	Errors  map[string]error
	Visited []string
	Closed  int
	current string
}

func NewMockBrowser(titles map[string]string) *MockBrowser {
	return &MockBrowser{Titles: titles, Errors: map[string]error{}}
}

func (m *MockBrowser) Get(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Visited = append(m.Visited, url)
	m.current = url
	return m.Errors[url]
}

func (m *MockBrowser) Title() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Titles[m.current]
}

func (m *MockBrowser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed++
	return nil
}
