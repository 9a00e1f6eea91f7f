// Package resolve maps request paths to Notion page ids. Each path
// segment is matched against the normalized titles of the current
// page's children, walking down from the configured root.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gnotion/internal/cache"
	"gnotion/internal/notion"
)

// ErrNotFound reports that some path segment did not match any child
// page title. The wrapped message names the failing segment.
var ErrNotFound = errors.New("page not found")

var titleReplacer = strings.NewReplacer(
	"ą", "a", "ć", "c", "ę", "e", "ł", "l", "ń", "n",
	"ó", "o", "ś", "s", "ź", "z", "ż", "z",
	"Ą", "a", "Ć", "c", "Ę", "e", "Ł", "l", "Ń", "n",
	"Ó", "o", "Ś", "s", "Ź", "z", "Ż", "z",
)

// NormalizeTitle turns a page title into its URL slug: lowercase,
// Polish diacritics transliterated, spaces to hyphens, everything
// outside [a-z0-9-] dropped, hyphen runs collapsed and trimmed.
func NormalizeTitle(title string) string {
	s := titleReplacer.Replace(title)
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	s = b.String()
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}

// Lister is the subset of the upstream client the resolver needs.
type Lister interface {
	ListChildren(ctx context.Context, blockID string) ([]notion.Block, error)
}

type Resolver struct {
	rootID string
	lister Lister
	cache  *cache.FileCache
}

func NewResolver(rootID string, lister Lister, fc *cache.FileCache) *Resolver {
	return &Resolver{rootID: rootID, lister: lister, cache: fc}
}

// Resolve walks path segment by segment from the root page and returns
// the id of the page the full path names. The empty path (or "/") is
// the root itself. Matching is case-insensitive on the normalized
// slug; a segment may carry a trailing "?query" part, which is
// ignored. The first segment with no matching child yields
// ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, path string) (string, error) {
	current := r.rootID
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		if i := strings.IndexByte(segment, '?'); i >= 0 {
			segment = segment[:i]
		}
		segment = strings.ToLower(segment)

		children, err := r.childSlugs(ctx, current)
		if err != nil {
			return "", err
		}
		next, ok := children[segment]
		if !ok {
			return "", fmt.Errorf("%w: segment %q", ErrNotFound, segment)
		}
		current = next
	}
	return current, nil
}

// childSlugs returns the slug-to-id map for the direct child pages of
// parentID, served from the subpages cache when fresh.
func (r *Resolver) childSlugs(ctx context.Context, parentID string) (map[string]string, error) {
	if data, ok := r.cache.Get(cache.NSSubpages, parentID); ok {
		var slugs map[string]string
		if err := json.Unmarshal(data, &slugs); err == nil && slugs != nil {
			return slugs, nil
		}
		// Corrupt entry: drop it and fall through to a fresh fetch.
		slog.Warn("discarding corrupt subpages cache entry", "parent", parentID)
		r.cache.Delete(cache.NSSubpages, parentID)
	}

	blocks, err := r.lister.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	slugs := make(map[string]string)
	for _, b := range blocks {
		if b.Type != notion.TypeChildPage || b.ChildPage == nil {
			continue
		}
		slug := NormalizeTitle(b.ChildPage.Title)
		if slug == "" {
			continue
		}
		// First child wins when two titles normalize identically.
		if _, exists := slugs[slug]; exists {
			slog.Warn("duplicate child page slug", "parent", parentID, "slug", slug)
			continue
		}
		slugs[slug] = b.ID
	}

	if data, err := json.Marshal(slugs); err == nil {
		if err := r.cache.Put(cache.NSSubpages, parentID, data); err != nil {
			slog.Warn("failed to cache subpages map", "parent", parentID, "error", err)
		}
	}
	return slugs, nil
}
