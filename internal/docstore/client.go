package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotFound = errors.New("docstore: document not found")

// StoreError is a non-2xx answer from a document operation.
type StoreError struct {
	Op     string
	Path   string
	Status int
	Body   string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("docstore %s %s failed: %d %s", e.Op, e.Path, e.Status, e.Body)
}

func (e *StoreError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Document is one stored document. Name is the full resource path.
type Document struct {
	Name       string           `json:"name"`
	Fields     map[string]Value `json:"fields"`
	CreateTime time.Time        `json:"createTime"`
	UpdateTime time.Time        `json:"updateTime"`
}

// ID returns the last path segment of Name.
func (d Document) ID() string {
	if i := strings.LastIndex(d.Name, "/"); i >= 0 {
		return d.Name[i+1:]
	}
	return d.Name
}

// Data decodes all fields into native values.
func (d Document) Data() map[string]any {
	out := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		out[k] = Decode(v)
	}
	return out
}

type Client struct {
	root string
	hc   *http.Client
}

// NewClient addresses the default database of projectID under baseURL
// (e.g. https://firestore.googleapis.com/v1).
func NewClient(baseURL, projectID string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		root: fmt.Sprintf("%s/projects/%s/databases/(default)/documents", strings.TrimRight(baseURL, "/"), projectID),
		hc:   hc,
	}
}

func (c *Client) Get(ctx context.Context, collection, id, token string) (Document, error) {
	path := collection + "/" + id
	var doc Document
	if err := c.do(ctx, "GET", http.MethodGet, c.root+"/"+path, path, token, nil, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

type runQueryRequest struct {
	StructuredQuery StructuredQuery `json:"structuredQuery"`
}

type runQueryResult struct {
	Document *Document `json:"document,omitempty"`
	ReadTime string    `json:"readTime,omitempty"`
}

// Query runs a structured query against the database root and returns the
// matched documents in server order. Results without a document are skipped.
func (c *Client) Query(ctx context.Context, q StructuredQuery, token string) ([]Document, error) {
	var results []runQueryResult
	if err := c.do(ctx, "QUERY", http.MethodPost, c.root+":runQuery", q.collection(), token, runQueryRequest{StructuredQuery: q}, &results); err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		if r.Document != nil {
			docs = append(docs, *r.Document)
		}
	}
	return docs, nil
}

type UpdateOption func(url.Values)

// WithUpdateTime makes the write conditional on the document's last update time.
func WithUpdateTime(t time.Time) UpdateOption {
	return func(q url.Values) {
		q.Set("currentDocument.updateTime", t.UTC().Format(time.RFC3339Nano))
	}
}

type updateRequest struct {
	Fields map[string]Value `json:"fields"`
}

// Update patches the named fields only. With an empty mask the given fields
// replace the whole document, creating it when absent.
func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]Value, token string, mask []string, opts ...UpdateOption) (Document, error) {
	path := collection + "/" + id
	q := url.Values{}
	for _, f := range mask {
		q.Add("updateMask.fieldPaths", f)
	}
	for _, opt := range opts {
		opt(q)
	}
	u := c.root + "/" + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	if fields == nil {
		fields = map[string]Value{}
	}
	var doc Document
	if err := c.do(ctx, "UPDATE", http.MethodPatch, u, path, token, updateRequest{Fields: fields}, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (c *Client) do(ctx context.Context, op, method, u, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("docstore %s %s: encode: %w", op, path, err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("docstore %s %s: %w", op, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("docstore %s %s: %w", op, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("docstore %s %s: read: %w", op, path, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StoreError{Op: op, Path: path, Status: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("docstore %s %s: decode: %w", op, path, err)
	}
	return nil
}
