package browser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"deploy.evalgo.org/common"
	"deploy.evalgo.org/network"
)

// Site is the part of the site settings the smoke test needs.
type Site interface {
	SiteName() string
	URL() string
}

// Options control the wait for a page title.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration

	// Client reads the sitemap
	Client *http.Client
}

// Item is one page in a test file.
type Item struct {
	URL   string `yaml:"url"`
	Title string `yaml:"title"`
}

type testFile struct {
	URLs []map[string]string `yaml:"urls"`
}

// Driver tests the pages listed in <test folder>/<site>.yaml, e.g.
//
//	urls:
//	  - url: /
//	    title: Home
//	  - url: contact
//	    title: Contact
type Driver struct {
	site    Site
	browser Browser
	opts    Options
	file    string
	hasData bool
	items   []Item
	log     *common.ContextLogger
}

// New loads and checks the test file of site. An empty file means there is
// nothing to test.
func New(site Site, testFolder string, browser Browser, opts Options) (*Driver, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.Client == nil {
		opts.Client = network.NewHTTPClient(opts.Timeout)
	}
	d := &Driver{
		site:    site,
		browser: browser,
		opts:    opts,
		file:    filepath.Join(testFolder, site.SiteName()+".yaml"),
		log:     common.NewContextLogger(common.Logger, map[string]interface{}{"site": site.SiteName()}),
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) load() error {
	data, err := os.ReadFile(d.file)
	if err != nil {
		return common.NewTaskError("Cannot find test file: %s", d.file)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var tf testFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return common.NewTaskError("Cannot parse %s: %v", d.file, err)
	}
	d.hasData = true
	for _, raw := range tf.URLs {
		for _, key := range []string{"url", "title"} {
			if _, ok := raw[key]; !ok {
				return common.NewTaskError("Each item in the list of 'urls' should have a '%s': %s", key, d.file)
			}
		}
		d.items = append(d.items, Item{URL: raw["url"], Title: raw["title"]})
	}
	return nil
}

// Items returns the pages to test.
func (d *Driver) Items() []Item { return d.items }

// PageURL joins a test path to the site URL. "/" and "" mean the home page;
// other paths get a trailing slash.
func PageURL(siteURL, path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return siteURL
	}
	return siteURL + path + "/"
}

// Test loads every page and waits for its title. Without urls the home page
// must have "home" in its title.
func (d *Driver) Test(ctx context.Context) error {
	if !d.hasData {
		d.log.Info("Nothing to test...")
		return nil
	}
	if len(d.items) == 0 {
		return d.get(ctx, d.site.URL(), "home")
	}
	for _, item := range d.items {
		if err := d.get(ctx, PageURL(d.site.URL(), item.URL), item.Title); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) get(ctx context.Context, url, title string) error {
	d.log.Info(url)
	if title == "" {
		if err := d.browser.Get(ctx, url); err != nil {
			return err
		}
		d.log.Infof("  OK (found %s)", d.browser.Title())
		return nil
	}
	if err := d.waitForTitle(ctx, url, title); err != nil {
		return err
	}
	d.log.Infof("  OK (match %s)", title)
	return nil
}

// waitForTitle reloads url until its title contains title, ignoring case,
// or the timeout elapses.
func (d *Driver) waitForTitle(ctx context.Context, url, title string) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()
	want := strings.ToLower(title)
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()
	for {
		err := d.browser.Get(ctx, url)
		if err == nil && strings.Contains(strings.ToLower(d.browser.Title()), want) {
			return nil
		}
		if err != nil {
			d.log.Debugf("waiting for %s: %v", url, err)
		}
		select {
		case <-ctx.Done():
			return common.NewTaskError("Time out waiting for page with title '%s' to load: %s", title, url)
		case <-ticker.C:
		}
	}
}

type sitemap struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// Sitemap returns the sorted page URLs in <site url>sitemap.xml. A missing
// sitemap returns no URLs.
func (d *Driver) Sitemap(ctx context.Context) ([]string, error) {
	url := d.site.URL() + "sitemap.xml"
	status, body, err := network.HTTPGet(ctx, d.opts.Client, url)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		d.log.Warnf("No sitemap found: %s", url)
		return nil, nil
	}
	var sm sitemap
	if err := xml.Unmarshal(body, &sm); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	locs := make([]string, 0, len(sm.URLs))
	for _, u := range sm.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			locs = append(locs, loc)
		}
	}
	sort.Strings(locs)
	return locs, nil
}

// TestSitemap loads every page in the sitemap.
func (d *Driver) TestSitemap(ctx context.Context) error {
	urls, err := d.Sitemap(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, url := range urls {
		if err := d.get(ctx, url, ""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) Close() error {
	return d.browser.Close()
}
