package calculator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"loan-simulator/internal/domain/loan"
	"loan-simulator/internal/pkg/apperrors"
	"loan-simulator/internal/pkg/calcapi"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	calculatePath   = "/api/calculate"
	maxResponseSize = 4 << 20
)

// Client calls a remote calculation service over HTTP.
type Client struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

var _ loan.Calculator = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url: strings.TrimRight(baseURL, "/") + calculatePath,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "CalculatorClient"),
	}
}

// Calculate posts req and decodes the amortization plan. Every failure,
// whether transport, status or payload, is reported as
// apperrors.ErrCalculationService.
func (c *Client) Calculate(ctx context.Context, req loan.CalculationRequest) (*loan.CalculationResult, error) {
	body, err := json.Marshal(calcapi.NewCalculateRequest(req))
	if err != nil {
		return nil, apperrors.WrapCalculationError(fmt.Errorf("failed to encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.WrapCalculationError(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.ErrorContext(ctx, "Calculation request failed", "url", c.url, "error", err)
		return nil, apperrors.WrapCalculationError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperrors.WrapCalculationError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.ErrorContext(ctx, "Calculation service returned an error",
			"status", resp.StatusCode, "body", truncate(string(payload), 256))
		return nil, apperrors.WrapCalculationError(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	var decoded calcapi.CalculateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, apperrors.WrapCalculationError(fmt.Errorf("failed to decode response: %w", err))
	}

	result := decoded.ToDomain()
	if err := result.Check(); err != nil {
		return nil, apperrors.WrapCalculationError(err)
	}

	c.logger.DebugContext(ctx, "Calculation received", "periods", len(result.AmortizationTable))
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
