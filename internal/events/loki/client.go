// Package loki pushes account events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"account-identity-core/internal/events"
)

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // [timestamp_ns, log_line]
}

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// Client pushes log lines to one Loki instance.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a client for baseURL, e.g. http://localhost:3100.
func NewClient(baseURL, job string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if job == "" {
		job = "account-core"
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), job: job, http: hc}
}

// PushEventJSON pushes a raw event (a Kafka message value). The event type labels the stream and
// its occurredAt becomes the entry timestamp. Undecodable input is pushed as-is at the current time.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	labels := map[string]string{}
	ts := time.Now().UTC()
	var e events.Event
	if err := json.Unmarshal(raw, &e); err == nil {
		if e.Type != "" {
			labels["event_type"] = string(e.Type)
		}
		if p := e.Attributes["provider"]; p != "" {
			labels["provider"] = p
		}
		if !e.OccurredAt.IsZero() {
			ts = e.OccurredAt
		}
	}
	return c.Push(ctx, ts, string(raw), labels)
}

// Push sends one log line. Returns an error on transport failure or a non-2xx response.
func (c *Client) Push(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	if c.baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = c.job
	for k, v := range labels {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			streamLabels[k] = s
		}
	}
	body, err := json.Marshal(PushRequest{Streams: []Stream{{
		Stream: streamLabels,
		Values: [][]string{{strconv.FormatInt(ts.UnixNano(), 10), line}},
	}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
