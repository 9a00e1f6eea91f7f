package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"gnotion/internal/cache"
)

const pageSize = 100

// DefaultPageTitle is used whenever a page's real title cannot be
// determined. Mention rendering also treats it as "lookup failed".
const DefaultPageTitle = "Untitled"

// UpstreamError reports a failed or malformed Notion API response.
// Status is the HTTP status when one was received, zero otherwise.
type UpstreamError struct {
	Message string
	Status  int
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("notion: %s (status %d)", e.Message, e.Status)
	}
	return "notion: " + e.Message
}

func (e *UpstreamError) NotFound() bool { return e.Status == http.StatusNotFound }

// PageMeta is the slice of page properties the proxy cares about.
type PageMeta struct {
	Title    string `json:"title"`
	CoverURL string `json:"coverUrl,omitempty"`
}

type Client struct {
	baseURL string
	apiKey  string
	version string
	http    *http.Client
	cache   *cache.FileCache
}

func NewClient(baseURL, apiKey, version string, timeout time.Duration, fc *cache.FileCache) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		version: version,
		http:    &http.Client{Timeout: timeout},
		cache:   fc,
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", c.version)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// ListChildren returns every child block of blockID, following
// pagination until the upstream reports no more results. The cache only
// ever holds a fully aggregated list; any upstream failure mid-walk
// aborts the whole call so a truncated list is never returned or
// cached.
func (c *Client) ListChildren(ctx context.Context, blockID string) ([]Block, error) {
	if data, ok := c.cache.Get(cache.NSContent, blockID); ok {
		if env, err := decodeEnvelope(data); err == nil && env.AllResultsAggregated {
			return env.Results, nil
		}
		// Legacy or corrupt entry: refetch.
		slog.Debug("discarding unusable content cache entry", "block", blockID)
	}

	var all []Block
	var cursor string
	for {
		path := fmt.Sprintf("/v1/blocks/%s/children?page_size=%d", url.PathEscape(blockID), pageSize)
		if cursor != "" {
			path += "&start_cursor=" + url.QueryEscape(cursor)
		}
		body, status, err := c.get(ctx, path)
		if err != nil {
			return nil, &UpstreamError{Message: err.Error(), Status: status}
		}
		if status != http.StatusOK {
			return nil, &UpstreamError{Message: fmt.Sprintf("list children of %s failed", blockID), Status: status}
		}
		var page listEnvelope
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &UpstreamError{Message: "malformed list response: " + err.Error(), Status: status}
		}
		if page.Results == nil {
			return nil, &UpstreamError{Message: "list response missing results", Status: status}
		}
		all = append(all, page.Results...)
		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			break
		}
		cursor = *page.NextCursor
	}

	env := listEnvelope{
		Object:               "list",
		Results:              all,
		AllResultsAggregated: true,
		FormatVersion:        envelopeFormatVersion,
	}
	if data, err := json.Marshal(env); err == nil {
		if err := c.cache.Put(cache.NSContent, blockID, data); err != nil {
			slog.Warn("content cache write failed", "block", blockID, "err", err)
		}
	}
	return all, nil
}

// pageResponse carries the subset of the "get page" payload needed for
// the title and cover. Properties are keyed by user-defined names, so
// they decode into a map.
type pageResponse struct {
	Properties map[string]struct {
		Title []RichText `json:"title"`
	} `json:"properties"`
	Cover *struct {
		Type     string       `json:"type"`
		External *ExternalURL `json:"external"`
		File     *HostedFile  `json:"file"`
	} `json:"cover"`
}

// GetPageMetadata fetches a page's title and cover URL. It never fails:
// on any upstream problem it returns the default title and no cover, so
// page resolution can continue. Failures are not cached.
func (c *Client) GetPageMetadata(ctx context.Context, pageID string) PageMeta {
	if data, ok := c.cache.Get(cache.NSPagedata, pageID); ok {
		var meta PageMeta
		if err := json.Unmarshal(data, &meta); err == nil && meta.Title != "" {
			return meta
		}
		c.cache.Delete(cache.NSPagedata, pageID)
	}

	meta := PageMeta{Title: DefaultPageTitle}
	body, status, err := c.get(ctx, "/v1/pages/"+url.PathEscape(pageID))
	if err != nil {
		slog.Warn("page metadata fetch failed", "page", pageID, "err", err)
		return meta
	}
	if status != http.StatusOK {
		slog.Warn("page metadata fetch failed", "page", pageID, "status", status)
		return meta
	}
	var page pageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		slog.Warn("page metadata decode failed", "page", pageID, "err", err)
		return meta
	}

	if title := firstPlainText(page.Properties["title"].Title); title != "" {
		meta.Title = title
	} else if title := firstPlainText(page.Properties["Name"].Title); title != "" {
		meta.Title = title
	}
	if page.Cover != nil {
		switch {
		case page.Cover.Type == "external" && page.Cover.External != nil:
			meta.CoverURL = page.Cover.External.URL
		case page.Cover.Type == "file" && page.Cover.File != nil:
			meta.CoverURL = page.Cover.File.URL
		}
	}

	if data, err := json.Marshal(meta); err == nil {
		if err := c.cache.Put(cache.NSPagedata, pageID, data); err != nil {
			slog.Warn("pagedata cache write failed", "page", pageID, "err", err)
		}
	}
	return meta
}

func firstPlainText(runs []RichText) string {
	if len(runs) == 0 {
		return ""
	}
	return runs[0].PlainText
}
