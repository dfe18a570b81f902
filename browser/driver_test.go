package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy.evalgo.org/common"
)

type testSite struct {
	name string
	url  string
}

func (s testSite) SiteName() string { return s.name }
func (s testSite) URL() string      { return s.url }

const siteURL = "https://westcountrycoders.co.uk/"

var fastOptions = Options{Timeout: 100 * time.Millisecond, PollInterval: 10 * time.Millisecond}

func newTestDriver(t *testing.T, name string, b Browser) *Driver {
	t.Helper()
	d, err := New(testSite{name: name, url: siteURL}, "testdata", b, fastOptions)
	require.NoError(t, err)
	return d
}

// TestNew tests loading test files
func TestNew(t *testing.T) {
	d := newTestDriver(t, "csw_web", NewMockBrowser(nil))
	assert.Equal(t, []Item{
		{URL: "/", Title: "Home"},
		{URL: "contact", Title: "Contact"},
		{URL: "/blog/", Title: "Blog"},
	}, d.Items())

	tests := []struct {
		site     string
		expected string
	}{
		{"test_crm", "Each item in the list of 'urls' should have a 'url'"},
		{"csw_mail", "Each item in the list of 'urls' should have a 'title'"},
		{"missing", "Cannot find test file"},
	}
	for _, tt := range tests {
		t.Run(tt.site, func(t *testing.T) {
			_, err := New(testSite{name: tt.site, url: siteURL}, "testdata", NewMockBrowser(nil), fastOptions)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrTask)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}

// TestPageURL tests joining test paths to the site
func TestPageURL(t *testing.T) {
	assert.Equal(t, siteURL, PageURL(siteURL, "/"))
	assert.Equal(t, siteURL, PageURL(siteURL, ""))
	assert.Equal(t, siteURL+"contact/", PageURL(siteURL, "contact"))
	assert.Equal(t, siteURL+"blog/", PageURL(siteURL, "/blog/"))
}

// TestTest tests every page is loaded with its title
func TestTest(t *testing.T) {
	b := NewMockBrowser(map[string]string{
		siteURL:              "West Country Coders | HOME",
		siteURL + "contact/": "Contact us",
		siteURL + "blog/":    "Our blog",
	})
	d := newTestDriver(t, "csw_web", b)
	require.NoError(t, d.Test(context.Background()))
	assert.Equal(t, []string{siteURL, siteURL + "contact/", siteURL + "blog/"}, b.Visited)
	require.NoError(t, d.Close())
	assert.Equal(t, 1, b.Closed)
}

// TestTest_Timeout tests a page whose title never matches
func TestTest_Timeout(t *testing.T) {
	b := NewMockBrowser(map[string]string{siteURL: "Home", siteURL + "contact/": "Error"})
	d := newTestDriver(t, "csw_web", b)
	err := d.Test(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Time out waiting for page with title 'Contact' to load: "+siteURL+"contact/", err.Error())
	assert.Greater(t, len(b.Visited), 2, "the page is polled")
}

// TestTest_NoURLs tests the home page check and an empty file
func TestTest_NoURLs(t *testing.T) {
	b := NewMockBrowser(map[string]string{siteURL: "KB Software - Home"})
	require.NoError(t, newTestDriver(t, "kb_couk", b).Test(context.Background()))
	assert.Equal(t, []string{siteURL}, b.Visited)

	empty := NewMockBrowser(nil)
	require.NoError(t, newTestDriver(t, "test_nodb", empty).Test(context.Background()))
	assert.Empty(t, empty.Visited)
}

// TestTestSitemap tests loading the pages of the sitemap
func TestTestSitemap(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>` + server.URL + `/b/</loc></url>
  <url><loc>` + server.URL + `/a/</loc></url>
</urlset>`))
	}))
	defer server.Close()

	b := NewMockBrowser(nil)
	opts := fastOptions
	opts.Client = server.Client()
	d, err := New(testSite{name: "csw_web", url: server.URL + "/"}, "testdata", b, opts)
	require.NoError(t, err)

	require.NoError(t, d.TestSitemap(context.Background()))
	assert.Equal(t, []string{server.URL + "/a/", server.URL + "/b/"}, b.Visited)
}

// TestSitemap_Missing tests a site without a sitemap
func TestSitemap_Missing(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	opts := fastOptions
	opts.Client = server.Client()
	d, err := New(testSite{name: "csw_web", url: server.URL + "/"}, "testdata", NewMockBrowser(nil), opts)
	require.NoError(t, err)

	urls, err := d.Sitemap(context.Background())
	require.NoError(t, err)
	assert.Empty(t, urls)
}
