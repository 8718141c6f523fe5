// Package assistant предоставляет клиент внешней генеративной модели для поиска по каталогу.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-Goog-Api-Key"

// ErrNotConfigured возвращается, если адрес модели не задан.
var ErrNotConfigured = errors.New("assistant client not configured")

// ErrEmptyReply возвращается, если модель ответила без текста.
var ErrEmptyReply = errors.New("assistant returned empty reply")

// Client инкапсулирует HTTP-взаимодействие с генеративной моделью.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *retryablehttp.Client
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// NewClient создаёт клиента для модели, доступной по адресу endpoint.
// Запросы повторяются при ответах 429 и 5xx.
func NewClient(endpoint, apiKey string, logger *zap.Logger) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 15 * time.Second
	if logger != nil {
		rc.Logger = leveledLogger{l: logger.Sugar()}
	} else {
		rc.Logger = nil
	}

	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: rc,
	}
}

// Generate отправляет системную инструкцию и запрос пользователя и возвращает текст ответа.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	if c == nil || c.endpoint == "" {
		return "", ErrNotConfigured
	}

	endpoint := c.endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	reqBody := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.25,
			MaxOutputTokens: 512,
		},
	}
	if system != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: system}}}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var sb strings.Builder
	for _, cand := range result.Candidates {
		for _, p := range cand.Content.Parts {
			if sb.Len() > 0 && p.Text != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyReply
	}

	return text, nil
}

// leveledLogger направляет журнал retryablehttp в zap.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, keysAndValues ...interface{}) { z.l.Errorw(msg, keysAndValues...) }
func (z leveledLogger) Info(msg string, keysAndValues ...interface{})  { z.l.Infow(msg, keysAndValues...) }
func (z leveledLogger) Debug(msg string, keysAndValues ...interface{}) { z.l.Debugw(msg, keysAndValues...) }
func (z leveledLogger) Warn(msg string, keysAndValues ...interface{})  { z.l.Warnw(msg, keysAndValues...) }
