package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/rules"
	"github.com/hyperjump/logsentry/internal/server"
)

// apiClient talks to a running logsentry server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// do sends body as JSON (when non-nil) and decodes a 2xx response into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// detect returns the verdict. A verdict whose Status is no_comparable_data carries no score.
func (c *apiClient) detect(ctx context.Context, req *models.DetectRequest) (*models.DetectionVerdict, error) {
	var v models.DetectionVerdict
	if err := c.do(ctx, http.MethodPost, "/api/v1/detect", req, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *apiClient) calibrate(ctx context.Context, req *models.CalibrationRequest) (*server.CalibrateResponse, error) {
	var out server.CalibrateResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/calibrate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) status(ctx context.Context) (*models.Status, error) {
	var st models.Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) addBaseline(ctx context.Context, entries []models.EntryInput) (*models.IngestReport, error) {
	var report models.IngestReport
	body := map[string]interface{}{"entries": entries}
	if err := c.do(ctx, http.MethodPost, "/api/v1/baseline", body, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *apiClient) rulesCheck(ctx context.Context, text string) ([]rules.Match, error) {
	var out struct {
		Matches []rules.Match `json:"matches"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/rules/check", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

func (c *apiClient) rulesHunt(ctx context.Context, perIOC int) ([]rules.HuntHit, error) {
	q := url.Values{}
	if perIOC > 0 {
		q.Set("limit", strconv.Itoa(perIOC))
	}
	path := "/api/v1/rules/hunt"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Hits []rules.HuntHit `json:"hits"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Hits, nil
}
