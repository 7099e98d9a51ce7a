package sanity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/suptia/contentsync/internal/config"
	"github.com/suptia/contentsync/internal/document"
)

// Client talks to the Sanity HTTP API. All calls carry the bearer token; the
// query language (GROQ) stays inside this file.
type Client struct {
	http       *http.Client
	baseURL    string
	dataset    string
	apiVersion string
	token      string
}

// NewClient builds a live client. The token is required: even reads can hit
// private datasets, and the pipeline never constructs a live client for a
// dry run.
func NewClient(cfg config.SanityConfig, token string) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("sanity: missing project id")
	}
	return &Client{
		http:       &http.Client{Timeout: 60 * time.Second},
		baseURL:    fmt.Sprintf("https://%s.api.sanity.io", cfg.ProjectID),
		dataset:    cfg.Dataset,
		apiVersion: cfg.APIVersion,
		token:      token,
	}, nil
}

// queryResponse wraps the result envelope the query endpoint returns.
type queryResponse struct {
	Result json.RawMessage `json:"result"`
}

type mutateRequest struct {
	Mutations []map[string]any `json:"mutations"`
}

type mutateResponse struct {
	Results []struct {
		ID string `json:"id"`
	} `json:"results"`
}

// FetchBySlug implements Store.
func (c *Client) FetchBySlug(ctx context.Context, docType, slug string) (document.Document, error) {
	const groq = `*[_type == $type && slug.current == $slug][0]`
	raw, err := c.query(ctx, groq, map[string]string{"type": docType, "slug": slug})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// FetchByType implements Store.
func (c *Client) FetchByType(ctx context.Context, docType string) ([]document.Document, error) {
	const groq = `*[_type == $type]`
	raw, err := c.query(ctx, groq, map[string]string{"type": docType})
	if err != nil {
		return nil, err
	}
	var docs []document.Document
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	return docs, nil
}

// Create implements Store.
func (c *Client) Create(ctx context.Context, doc document.Document) (string, error) {
	resp, err := c.mutate(ctx, []map[string]any{{"create": doc}})
	if err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("create: no id returned")
	}
	return resp.Results[0].ID, nil
}

// Patch implements Store.
func (c *Client) Patch(ctx context.Context, id string, fields document.Document) error {
	_, err := c.mutate(ctx, []map[string]any{{
		"patch": map[string]any{"id": id, "set": fields},
	}})
	return err
}

// Delete implements Store.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.mutate(ctx, []map[string]any{{
		"delete": map[string]any{"id": id},
	}})
	return err
}

// ExportDataset implements Store. The caller owns the returned stream.
func (c *Client) ExportDataset(ctx context.Context) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/v%s/data/export/%s", c.baseURL, c.apiVersion, c.dataset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build export request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export dataset: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.apiError("export", resp)
	}
	return resp.Body, nil
}

func (c *Client) query(ctx context.Context, groq string, params map[string]string) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("query", groq)
	for name, val := range params {
		encoded, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode query param %s: %w", name, err)
		}
		values.Set("$"+name, string(encoded))
	}
	endpoint := fmt.Sprintf("%s/v%s/data/query/%s?%s", c.baseURL, c.apiVersion, c.dataset, values.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("query", resp)
	}
	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	return decoded.Result, nil
}

func (c *Client) mutate(ctx context.Context, mutations []map[string]any) (*mutateResponse, error) {
	body, err := json.Marshal(mutateRequest{Mutations: mutations})
	if err != nil {
		return nil, fmt.Errorf("encode mutations: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v%s/data/mutate/%s?returnIds=true", c.baseURL, c.apiVersion, c.dataset)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build mutate request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mutate dataset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("mutate", resp)
	}
	var decoded mutateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode mutate response: %w", err)
	}
	return &decoded, nil
}

func (c *Client) apiError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("sanity %s: status %d: %s", op, resp.StatusCode, bytes.TrimSpace(snippet))
}
