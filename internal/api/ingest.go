package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type ingestReq struct {
	URL string `json:"url"`
}

type ingestResp struct {
	InsertedChunks int `json:"inserted_chunks"`
}

// Ingest asks the service to crawl, chunk and index the legislation at url.
// Admin only. Empty URLs are rejected before any network call.
func (c *Client) Ingest(ctx context.Context, url string) (insertedChunks int, err error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return 0, errors.New("ingest: url is required")
	}
	var resp ingestResp
	if err := c.do(ctx, http.MethodPost, "/admin/ingest_legislation", nil, ingestReq{URL: url}, &resp); err != nil {
		return 0, err
	}
	return resp.InsertedChunks, nil
}

type ingestedURLsResp struct {
	URLs []string `json:"urls"`
}

// IngestedURLs lists everything already in the index. Admin only.
func (c *Client) IngestedURLs(ctx context.Context) ([]string, error) {
	var resp ingestedURLsResp
	if err := c.do(ctx, http.MethodGet, "/admin/ingested_urls", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.URLs, nil
}
