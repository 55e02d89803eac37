package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	archivePath    = "perfsonar/archive"
	maxErrorBody   = 512
)

var (
	// ErrMetadata is returned when the archive does not create the metadata record.
	ErrMetadata = errors.New("metadata create failed")
	// ErrBulkWrite is returned when the archive does not accept the event values.
	ErrBulkWrite = errors.New("bulk write failed")
)

// Writer is the archive's two-phase write interface.
type Writer interface {
	CreateMetadata(ctx context.Context, md *Metadata) (Handle, error)
	AppendEvents(ctx context.Context, h Handle, events []Event) error
}

// Client is a Writer backed by the esmond REST API.
// Requests are sent once; failures are reported, never retried.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient returns a Client for cfg.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

// BaseURL returns the archive collection URL, with trailing slash.
func (c *Client) BaseURL() string {
	parts := []string{strings.TrimRight(c.cfg.URL, "/")}
	if alias := strings.Trim(c.cfg.ScriptAlias, "/"); alias != "" {
		parts = append(parts, alias)
	}
	parts = append(parts, archivePath)
	return strings.Join(parts, "/") + "/"
}

// CreateMetadata posts md and returns the handle of the created (or already
// existing) metadata record.
func (c *Client) CreateMetadata(ctx context.Context, md *Metadata) (Handle, error) {
	body, err := json.Marshal(md)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: marshal metadata: %w", ErrMetadata, err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.BaseURL(), body)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrMetadata, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Handle{}, fmt.Errorf("%w: %s", ErrMetadata, statusError(resp))
	}

	var h Handle
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Handle{}, fmt.Errorf("%w: decode response: %w", ErrMetadata, err)
	}
	if h.Key == "" {
		return Handle{}, fmt.Errorf("%w: response has no metadata-key", ErrMetadata)
	}
	return h, nil
}

type bulkValue struct {
	EventType string `json:"event-type"`
	Value     any    `json:"val"`
}

type bulkPoint struct {
	TS     int64       `json:"ts"`
	Values []bulkValue `json:"val"`
}

type bulkDocument struct {
	Data []bulkPoint `json:"data"`
}

// BulkBody groups events by timestamp, preserving the order in which each
// timestamp and each event was first seen.
func BulkBody(events []Event) ([]byte, error) {
	var doc bulkDocument
	index := make(map[int64]int)
	for _, ev := range events {
		ts := ev.Time.Unix()
		i, ok := index[ts]
		if !ok {
			i = len(doc.Data)
			index[ts] = i
			doc.Data = append(doc.Data, bulkPoint{TS: ts})
		}
		doc.Data[i].Values = append(doc.Data[i].Values, bulkValue{EventType: ev.Type, Value: ev.Value})
	}
	if doc.Data == nil {
		doc.Data = []bulkPoint{}
	}
	return json.Marshal(doc)
}

// AppendEvents writes every event to the metadata record in one request.
func (c *Client) AppendEvents(ctx context.Context, h Handle, events []Event) error {
	if h.Key == "" {
		return fmt.Errorf("%w: empty metadata key", ErrBulkWrite)
	}
	body, err := BulkBody(events)
	if err != nil {
		return fmt.Errorf("%w: marshal events: %w", ErrBulkWrite, err)
	}

	resp, err := c.do(ctx, http.MethodPut, c.BaseURL()+h.Key+"/", body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBulkWrite, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrBulkWrite, statusError(resp))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" || c.cfg.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("ApiKey %s:%s", c.cfg.Username, c.cfg.APIKey))
	}
	return c.http.Do(req)
}

func statusError(resp *http.Response) string {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if s := strings.TrimSpace(string(msg)); s != "" {
		return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, s)
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
