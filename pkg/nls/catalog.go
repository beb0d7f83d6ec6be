// Package nls tracks the available UI language catalogs and matches the
// browser's Accept-Language header against them. A catalog is a
// directory per language tag holding a labels.js bundle, served to the
// agent UI as-is.
package nls

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/opencpx/cpx/internal/logger"
)

// DefaultLanguage is the fallback when nothing in Accept-Language
// matches an available catalog.
const DefaultLanguage = "en"

// labelsFile is the bundle a language directory must contain to count.
const labelsFile = "labels.js"

// Catalog is the set of available language catalogs under one nls
// directory. Safe for concurrent use; Watch keeps the set current while
// catalogs are added or removed on disk.
type Catalog struct {
	dir string

	mu    sync.RWMutex
	langs map[string]struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// New scans the nls directory. A missing directory yields an empty
// catalog, not an error: the UI then runs with the built-in default.
func New(dir string) (*Catalog, error) {
	c := &Catalog{
		dir:   dir,
		langs: make(map[string]struct{}),
		done:  make(chan struct{}),
	}
	if err := c.rescan(); err != nil {
		return nil, err
	}
	return c, nil
}

// Dir returns the catalog root.
func (c *Catalog) Dir() string { return c.dir }

// Languages returns the available language tags, sorted.
func (c *Catalog) Languages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.langs))
	for l := range c.langs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Has reports whether a catalog exists for the exact tag.
func (c *Catalog) Has(lang string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.langs[strings.ToLower(lang)]
	return ok
}

// Match picks the catalog for an Accept-Language header. Candidates are
// tried in quality order; each one first for an exact tag match, then
// for a primary-subtag match (en-GB finds en), so a high-quality da-DK
// beats a lower-quality exact en. DefaultLanguage closes the gap when
// nothing fits.
func (c *Catalog) Match(acceptLanguage string) string {
	candidates := parseAcceptLanguage(acceptLanguage)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, tag := range candidates {
		if _, ok := c.langs[tag]; ok {
			return tag
		}
		primary, _, cut := strings.Cut(tag, "-")
		if !cut {
			continue
		}
		if _, ok := c.langs[primary]; ok {
			return primary
		}
	}
	return DefaultLanguage
}

// Watch starts refreshing the language set on directory changes.
func (c *Catalog) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create nls watcher: %w", err)
	}
	if err := w.Add(c.dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch nls directory %s: %w", c.dir, err)
	}
	c.watcher = w
	go c.watchLoop()
	return nil
}

// Close stops the watcher.
func (c *Catalog) Close() error {
	c.once.Do(func() { close(c.done) })
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

func (c *Catalog) watchLoop() {
	for {
		select {
		case <-c.done:
			return
		case _, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if err := c.rescan(); err != nil {
				logger.Warn("nls rescan failed",
					logger.KeyPath, c.dir,
					logger.Err(err))
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("nls watcher error",
				logger.KeyPath, c.dir,
				logger.Err(err))
		}
	}
}

func (c *Catalog) rescan() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.mu.Lock()
			c.langs = make(map[string]struct{})
			c.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read nls directory %s: %w", c.dir, err)
	}

	langs := make(map[string]struct{})
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(c.dir, e.Name(), labelsFile)); err != nil {
			continue
		}
		langs[strings.ToLower(e.Name())] = struct{}{}
	}

	c.mu.Lock()
	c.langs = langs
	c.mu.Unlock()

	logger.Debug("nls catalogs scanned",
		logger.KeyPath, c.dir,
		logger.KeyCount, len(langs))
	return nil
}

// parseAcceptLanguage returns the header's language tags, lowercased and
// ordered by quality, highest first. Malformed parts are skipped.
func parseAcceptLanguage(header string) []string {
	type weighted struct {
		tag string
		q   float64
	}
	var parts []weighted
	for _, raw := range strings.Split(header, ",") {
		fields := strings.Split(strings.TrimSpace(raw), ";")
		tag := strings.ToLower(strings.TrimSpace(fields[0]))
		if tag == "" || tag == "*" {
			continue
		}
		q := 1.0
		for _, p := range fields[1:] {
			p = strings.TrimSpace(p)
			if v, ok := strings.CutPrefix(p, "q="); ok {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					q = 0
					break
				}
				q = f
			}
		}
		if q > 0 {
			parts = append(parts, weighted{tag: tag, q: q})
		}
	}
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].q > parts[j].q })

	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.tag
	}
	return out
}
