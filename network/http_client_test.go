package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHTTPGet_Success tests fetching a page
func TestHTTPGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte("<html><title>Home</title></html>"))
	}))
	defer server.Close()

	status, body, err := HTTPGet(context.Background(), NewHTTPClient(5*time.Second), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "<title>Home</title>")
}

// TestHTTPGet_WithRedirect tests that redirects are followed
func TestHTTPGet_WithRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	status, body, err := HTTPGet(context.Background(), NewHTTPClient(5*time.Second), server.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "moved", string(body))
}

// TestHTTPGet_NotFound tests that the status is returned, not an error
func TestHTTPGet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	status, _, err := HTTPGet(context.Background(), NewHTTPClient(5*time.Second), server.URL+"/sitemap.xml")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, status)
}

// TestHTTPGet_InvalidURL tests request errors
func TestHTTPGet_InvalidURL(t *testing.T) {
	_, _, err := HTTPGet(context.Background(), NewHTTPClient(time.Second), "://bad")
	assert.ErrorContains(t, err, "failed to create HTTP request")

	_, _, err = HTTPGet(context.Background(), NewHTTPClient(time.Second), "http://127.0.0.1:1/")
	assert.ErrorContains(t, err, "failed to perform request")
}

// TestWriteCounter tests byte counting
func TestWriteCounter(t *testing.T) {
	wc := &WriteCounter{}
	n, err := wc.Write(make([]byte, 1500))
	require.NoError(t, err)
	assert.Equal(t, 1500, n)
	wc.Write(make([]byte, 500))
	assert.Equal(t, uint64(2000), wc.Total)
	assert.Equal(t, "2.0 kB", wc.String())
}
