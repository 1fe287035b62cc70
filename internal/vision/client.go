package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	alertapp "classroom-sentinel/internal/alerts/application"
	"classroom-sentinel/internal/observability/metrics"
)

// Client calls an external frame analysis service over REST. The
// service receives the current and previous frames and returns the
// person count, teacher presence and motion score derived from them.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithToken sets a bearer token for the analysis service.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// NewClient constructs a vision client.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("vision: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type analyzeRequest struct {
	Frame         string `json:"frame"`
	PreviousFrame string `json:"previous_frame,omitempty"`
}

type analyzeResponse struct {
	PersonCount    int     `json:"person_count"`
	TeacherPresent bool    `json:"teacher_present"`
	MotionScore    float64 `json:"motion_score"`
}

// AnalyzeFrame submits a frame pair for analysis.
func (c *Client) AnalyzeFrame(ctx context.Context, frame, prev []byte) (alertapp.FrameAnalysis, error) {
	if len(frame) == 0 {
		return alertapp.FrameAnalysis{}, errors.New("vision: empty frame")
	}
	start := time.Now()

	body := analyzeRequest{Frame: base64.StdEncoding.EncodeToString(frame)}
	if len(prev) > 0 {
		body.PreviousFrame = base64.StdEncoding.EncodeToString(prev)
	}
	var resp analyzeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/analyze", body, &resp); err != nil {
		metrics.ObserveVision(metrics.ResultError, time.Since(start))
		return alertapp.FrameAnalysis{}, err
	}
	metrics.ObserveVision(metrics.ResultSuccess, time.Since(start))

	if resp.PersonCount < 0 {
		return alertapp.FrameAnalysis{}, fmt.Errorf("vision: invalid person count %d", resp.PersonCount)
	}
	if resp.MotionScore < 0 || resp.MotionScore > 1 {
		return alertapp.FrameAnalysis{}, fmt.Errorf("vision: motion score %v out of range", resp.MotionScore)
	}
	return alertapp.FrameAnalysis{
		PersonCount:    resp.PersonCount,
		TeacherPresent: resp.TeacherPresent,
		MotionScore:    resp.MotionScore,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("vision: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
