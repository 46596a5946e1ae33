// Package llm talks to a local Ollama chat model for memory extraction,
// wrapping requests with retry-with-backoff and rolling health stats.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jason-c-dev/harmonia-memory/internal/apperr"
	"github.com/jason-c-dev/harmonia-memory/internal/logging"
)

var log = logging.GetLogger("llm")

// Config configures the client's target model and host.
type Config struct {
	BaseURL       string
	ChatModel     string
	RequestTimeout time.Duration
	MaxRetries    int
	HealthInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.ChatModel == "" {
		c.ChatModel = "qwen2.5:3b"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Minute
	}
	return c
}

// Client issues chat completions against Ollama with retry and rolling
// usage statistics.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.RWMutex
	available   bool
	requests    int64
	failures    int64
	totalLatency time.Duration
	modelsUsed  map[string]int64
	lastErrors  []string

	stopHealth chan struct{}
}

// New creates a client and starts its background health probe.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		modelsUsed: make(map[string]int64),
		stopHealth: make(chan struct{}),
	}
	c.probeHealth()
	go c.healthLoop()
	return c
}

// Close stops the background health probe.
func (c *Client) Close() {
	close(c.stopHealth)
}

func (c *Client) healthLoop() {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.probeHealth()
		case <-c.stopHealth:
			return
		}
	}
}

func (c *Client) probeHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		c.setAvailable(false)
		return
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setAvailable(false)
		return
	}
	defer resp.Body.Close()
	c.setAvailable(resp.StatusCode == http.StatusOK)
}

func (c *Client) setAvailable(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.available != v {
		log.Info("llm availability changed", "available", v)
	}
	c.available = v
}

// IsAvailable reports the last health probe's result.
func (c *Client) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// ChatModel returns the configured chat model name.
func (c *Client) ChatModel() string {
	return c.cfg.ChatModel
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Complete sends a system+user prompt pair and returns the model's raw
// text reply, retrying transient failures with exponential backoff.
// Failures classified as permanent (model missing, connection refused)
// surface immediately without retrying.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	start := time.Now()

	var reply string
	op := func() error {
		r, err := c.doChat(ctx, systemPrompt, userPrompt)
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		reply = r
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
	), uint64(c.cfg.MaxRetries))

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))

	c.recordResult(c.cfg.ChatModel, time.Since(start), err)
	if err != nil {
		return "", classify(err)
	}
	return reply, nil
}

func (c *Client) doChat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
		Format: "json",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("connection refused: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("model not found: %s", c.cfg.ChatModel)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm: status %d: %s", resp.StatusCode, string(errBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	return chatResp.Message.Content, nil
}

func isPermanent(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "model not found") || strings.Contains(msg, "connection refused")
}

func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "model not found"):
		return apperr.New(apperr.LLMModelMissing, msg)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "llm: status"):
		return apperr.Wrap(apperr.LLMUnavailable, "llm backend unavailable", err)
	default:
		return apperr.Wrap(apperr.LLMUnavailable, "llm request failed", err)
	}
}

const maxLastErrors = 10

func (c *Client) recordResult(model string, latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	c.totalLatency += latency
	c.modelsUsed[model]++

	if err != nil {
		c.failures++
		c.lastErrors = append(c.lastErrors, err.Error())
		if len(c.lastErrors) > maxLastErrors {
			c.lastErrors = c.lastErrors[len(c.lastErrors)-maxLastErrors:]
		}
	}
}

// Stats is a snapshot of the client's rolling usage statistics.
type Stats struct {
	Requests     int64
	Failures     int64
	AvgLatency   time.Duration
	ModelsUsed   map[string]int64
	LastErrors   []string
	Available    bool
}

// Stats returns a point-in-time snapshot of request/failure counters.
func (c *Client) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	avg := time.Duration(0)
	if c.requests > 0 {
		avg = c.totalLatency / time.Duration(c.requests)
	}

	models := make(map[string]int64, len(c.modelsUsed))
	for k, v := range c.modelsUsed {
		models[k] = v
	}
	errs := make([]string, len(c.lastErrors))
	copy(errs, c.lastErrors)

	return Stats{
		Requests:   c.requests,
		Failures:   c.failures,
		AvgLatency: avg,
		ModelsUsed: models,
		LastErrors: errs,
		Available:  c.available,
	}
}
