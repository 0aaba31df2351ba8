// Package llm calls an OpenAI-compatible chat completions API to analyze
// and rewrite SQL statements. The default target is DeepSeek.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrDisabled is returned when the client is switched off or has no API
// key. Callers treat it like any other analysis failure and degrade.
var ErrDisabled = errors.New("llm client is disabled")

// Config holds the connection settings for the model endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Enabled bool
}

// Client is a thin wrapper over the chat completions endpoint. It is
// safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. The client still constructs when disabled so
// callers get ErrDisabled per call instead of nil-pointer surprises.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Enabled reports whether the client can make requests.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.APIKey != ""
}

// AnalysisResult is the structured output of AnalyzeSQL. Empty fields
// mean the model had nothing to offer for that part.
type AnalysisResult struct {
	Analysis     string
	RewrittenSQL string
}

// chat wire types, OpenAI chat completions shape.

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// AnalyzeSQL asks the model for a structured review of the statement:
// an analysis text plus an optional semantically equivalent rewrite.
func (c *Client) AnalyzeSQL(ctx context.Context, sql, contextSummary string) (*AnalysisResult, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	prompt := fmt.Sprintf(
		"You are a senior MySQL review and performance tuning expert. Given a SQL "+
			"statement and a summary of its schema and execution context, do two things "+
			"and reply strictly as JSON:\n"+
			"1) analysis: a concise, point-by-point review (semantic correctness, risks, "+
			"index and statistics considerations, likely bottlenecks);\n"+
			"2) rewritten_sql: a better, semantically equivalent rewrite if one exists, "+
			"otherwise null.\n"+
			"Output strictly the JSON object {\"analysis\": string, \"rewritten_sql\": string|null}. "+
			"No extra prose, no code fences.\n"+
			"\nSQL:\n%s\n\nContext summary:\n%s\n",
		sql, contextSummary)

	content, err := c.complete(ctx, prompt, 1200)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Analysis     *string `json:"analysis"`
		RewrittenSQL *string `json:"rewritten_sql"`
	}
	if err := unmarshalLenient(content, &parsed); err != nil {
		return nil, fmt.Errorf("model returned unparseable content: %w", err)
	}

	result := &AnalysisResult{}
	if parsed.Analysis != nil {
		result.Analysis = *parsed.Analysis
	}
	if parsed.RewrittenSQL != nil {
		result.RewrittenSQL = strings.TrimSpace(*parsed.RewrittenSQL)
	}
	return result, nil
}

// RewriteSQL asks the model only for a rewrite. It returns "" when the
// statement needs no optimization.
func (c *Client) RewriteSQL(ctx context.Context, sql, contextSummary string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	prompt := fmt.Sprintf(
		"You are a senior MySQL query optimization expert. Given a SQL statement and "+
			"a metadata/execution plan summary, decide whether it can be optimized. If it "+
			"can, output only the rewritten SQL; if not, return null. Output strictly the "+
			"JSON object {\"rewritten_sql\": string|null}. Rules: no explanatory text, only "+
			"semantically equivalent or better rewrites, standard MySQL syntax only.\n"+
			"\nSQL:\n%s\n\nSummary:\n%s\n",
		sql, contextSummary)

	content, err := c.complete(ctx, prompt, 800)
	if err != nil {
		return "", err
	}

	var parsed struct {
		RewrittenSQL *string `json:"rewritten_sql"`
	}
	if err := unmarshalLenient(content, &parsed); err != nil {
		return "", fmt.Errorf("model returned unparseable content: %w", err)
	}
	if parsed.RewrittenSQL == nil {
		return "", nil
	}
	return strings.TrimSpace(*parsed.RewrittenSQL), nil
}

// complete sends one chat completion request and returns the first
// choice's content.
func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an assistant that replies with JSON only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   maxTokens,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	c.logger.Debug("chat completion finished",
		"model", c.cfg.Model, "duration", time.Since(start))
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// unmarshalLenient parses content as JSON, tolerating code fences or
// prose around the object by falling back to the outermost brace pair.
func unmarshalLenient(content string, v any) error {
	if err := json.Unmarshal([]byte(content), v); err == nil {
		return nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object found in content")
	}
	return json.Unmarshal([]byte(content[start:end+1]), v)
}
