// Package rest talks to the hosted persistence service over HTTP:
// PostgREST style tables under /rest/v1, objects under /storage/v1 and
// server-side functions under /functions/v1.
package rest

import (
	"bytes"
	"context"
	"duo-lab/domain"
	"duo-lab/errors"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const maxErrorBody = 4 << 10

// Client implements contract.RemoteStore, contract.BlobStore and contract.DeliveryInvoker.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(log *slog.Logger, baseURL, apiKey string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse store url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("store url %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: u, apiKey: apiKey, http: httpClient, log: log}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends the request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", errors.ErrRemote, method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", errors.ErrRemote, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		c.log.Debug("Remote call rejected", "method", method, "path", req.URL.Path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s %s: %d %s", errors.ErrRemote, method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

func (c *Client) sendJSON(ctx context.Context, method, endpoint string, payload any, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", method, err)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return c.do(ctx, method, endpoint, bytes.NewReader(body), headers)
}

func tablePath(table domain.Table) string {
	return "/rest/v1/" + url.PathEscape(string(table))
}

// Values renders a query the way PostgREST reads it.
func Values(query domain.Query) url.Values {
	values := url.Values{}
	values.Set("select", "*")
	for _, f := range query.Filters {
		values.Add(f.Column, f.Param())
	}
	if query.Order != nil {
		values.Set("order", query.Order.Param())
	}
	return values
}

// ParseValues is the inverse of Values.
func ParseValues(values url.Values) (domain.Query, error) {
	var query domain.Query
	for column, params := range values {
		switch column {
		case "select", "on_conflict":
			continue
		case "order":
			order := domain.ParseOrder(params[0])
			query.Order = &order
			continue
		}
		for _, param := range params {
			f, err := domain.ParseFilter(column, param)
			if err != nil {
				return domain.Query{}, fmt.Errorf("%w: %w", errors.ErrInvalidQuery, err)
			}
			query.Filters = append(query.Filters, f)
		}
	}
	return query, nil
}

func (c *Client) Select(ctx context.Context, table domain.Table, query domain.Query) ([]domain.Row, error) {
	data, err := c.do(ctx, http.MethodGet, c.endpoint(tablePath(table), Values(query)), nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []domain.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode %s rows: %w", errors.ErrRemote, table, err)
	}
	return rows, nil
}

func (c *Client) Insert(ctx context.Context, table domain.Table, record domain.Row) error {
	_, err := c.sendJSON(ctx, http.MethodPost, c.endpoint(tablePath(table), nil), record, map[string]string{
		"Prefer": "return=minimal",
	})
	return err
}

func (c *Client) Update(ctx context.Context, table domain.Table, patch domain.Row, id string) error {
	query := url.Values{}
	query.Set(table.PrimaryKey(), domain.Eq(table.PrimaryKey(), id).Param())
	_, err := c.sendJSON(ctx, http.MethodPatch, c.endpoint(tablePath(table), query), patch, map[string]string{
		"Prefer": "return=minimal",
	})
	return err
}

func (c *Client) Delete(ctx context.Context, table domain.Table, id string) error {
	query := url.Values{}
	query.Set(table.PrimaryKey(), domain.Eq(table.PrimaryKey(), id).Param())
	_, err := c.do(ctx, http.MethodDelete, c.endpoint(tablePath(table), query), nil, nil)
	return err
}

func (c *Client) Upsert(ctx context.Context, table domain.Table, record domain.Row, conflictKey ...string) error {
	query := url.Values{}
	if len(conflictKey) > 0 {
		query.Set("on_conflict", strings.Join(conflictKey, ","))
	}
	_, err := c.sendJSON(ctx, http.MethodPost, c.endpoint(tablePath(table), query), record, map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	})
	return err
}

func objectPath(bucket, name string) string {
	return "/storage/v1/object/" + url.PathEscape(bucket) + "/" + name
}

func (c *Client) UploadBlob(ctx context.Context, bucket, name string, data []byte, upsert bool) error {
	headers := map[string]string{
		"Content-Type": mimetype.Detect(data).String(),
		"x-upsert":     fmt.Sprint(upsert),
	}
	_, err := c.do(ctx, http.MethodPost, c.endpoint(objectPath(bucket, name), nil), bytes.NewReader(data), headers)
	return err
}

type signRequest struct {
	ExpiresIn int64 `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignedURL asks the service for a signed link and makes it absolute.
func (c *Client) SignedURL(ctx context.Context, bucket, name string, ttl time.Duration) (string, error) {
	endpoint := c.endpoint("/storage/v1/object/sign/"+url.PathEscape(bucket)+"/"+name, nil)
	data, err := c.sendJSON(ctx, http.MethodPost, endpoint, signRequest{ExpiresIn: int64(ttl / time.Second)}, nil)
	if err != nil {
		return "", err
	}
	var resp signResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("%w: decode signed url: %w", errors.ErrRemote, err)
	}
	if resp.SignedURL == "" {
		return "", fmt.Errorf("%w: empty signed url", errors.ErrRemote)
	}
	signed, err := url.Parse(resp.SignedURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse signed url: %w", errors.ErrRemote, err)
	}
	if signed.IsAbs() {
		return signed.String(), nil
	}
	if !strings.HasPrefix(signed.Path, "/storage/v1") {
		signed.Path = "/storage/v1" + signed.Path
	}
	return c.baseURL.ResolveReference(signed).String(), nil
}

// Invoke calls a server-side function with a JSON payload.
func (c *Client) Invoke(ctx context.Context, function string, payload any) ([]byte, error) {
	return c.sendJSON(ctx, http.MethodPost, c.endpoint("/functions/v1/"+url.PathEscape(function), nil), payload, nil)
}
