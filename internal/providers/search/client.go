// Package search is the HTTP client for the external search and indexing
// service. It backs the gateway's search, list_sources and get_info tools.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/relaydocs/relaydocs/internal/gateway"
)

var ErrNotConfigured = errors.New("search service url is not configured")

type serviceErrorResponse struct {
	Error string `json:"error"`
}

// Client talks to the search service over its internal JSON API. It
// implements the gateway collaborator interfaces.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

// WithHTTPClient overrides the underlying HTTP client. Intended for tests.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	c.client = client
	return c
}

func (c *Client) Search(ctx context.Context, repositoryID snowflake.ID, query string, limit int) ([]gateway.SearchResult, error) {
	values := url.Values{}
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(limit))

	var payload struct {
		Results []gateway.SearchResult `json:"results"`
	}
	path := fmt.Sprintf("/v1/repositories/%s/search", repositoryID)
	if err := c.doRequest(ctx, path, values, &payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

func (c *Client) ListSources(ctx context.Context, repositoryID snowflake.ID) ([]gateway.Source, error) {
	var payload struct {
		Sources []gateway.Source `json:"sources"`
	}
	path := fmt.Sprintf("/v1/repositories/%s/sources", repositoryID)
	if err := c.doRequest(ctx, path, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Sources, nil
}

func (c *Client) GetInfo(ctx context.Context, repositoryID snowflake.ID) (*gateway.RepositoryInfo, error) {
	var info gateway.RepositoryInfo
	path := fmt.Sprintf("/v1/repositories/%s/info", repositoryID)
	if err := c.doRequest(ctx, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) doRequest(ctx context.Context, path string, values url.Values, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	target := c.baseURL + path
	if values != nil {
		target += "?" + values.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var svcErr serviceErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&svcErr); err != nil || strings.TrimSpace(svcErr.Error) == "" {
			return fmt.Errorf("search service returned status %d", resp.StatusCode)
		}
		return fmt.Errorf("search service: %s", svcErr.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
