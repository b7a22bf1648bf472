package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

const (
	defaultBaseURL = "http://localhost:8787"

	// Lecturas (markets, oracle) y escrituras (resolve) tienen cuotas separadas
	// para que un escaneo grande no retrase una resolución.
	defaultReadRatePerSec = 20
	resolveRatePerSec     = 5

	defaultTimeout = 30 * time.Second

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Options configura el Client. Los campos vacíos toman el valor por defecto.
type Options struct {
	BaseURL       string
	RatePerSec    float64
	Timeout       time.Duration
	PriceDecimals int32
	RetryWait     time.Duration // base del backoff HTTP (500ms)
}

// Client es el HTTP client del gateway del contrato de apuestas, con rate
// limiting y retries.
type Client struct {
	http           *http.Client
	baseURL        string
	decimals       int32
	readLimiter    *rate.Limiter
	resolveLimiter *rate.Limiter
	retryWait      time.Duration
}

// NewClient crea un Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = defaultReadRatePerSec
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.PriceDecimals <= 0 {
		opts.PriceDecimals = domain.DefaultPriceDecimals
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = baseRetryWait
	}
	return &Client{
		http:           &http.Client{Timeout: opts.Timeout},
		baseURL:        opts.BaseURL,
		decimals:       opts.PriceDecimals,
		readLimiter:    rate.NewLimiter(rate.Limit(opts.RatePerSec), 10),
		resolveLimiter: rate.NewLimiter(resolveRatePerSec, 2),
		retryWait:      opts.RetryWait,
	}
}

// statusError es una respuesta 4xx no reintentable.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.Code, e.Body)
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, c.readLimiter, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// postOnce hace un POST JSON sin retries: el reintento de una resolución lo
// decide el engine según el código de error. Decodifica el cuerpo también en
// respuestas 4xx, donde el gateway devuelve el error estructurado.
func (c *Client) postOnce(ctx context.Context, url string, body, out any) error {
	if err := c.resolveLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		// El gateway está saturado: para el engine es contención transitoria.
		return &domain.ResolverError{Code: domain.CodeTryAgainLater, Message: fmt.Sprintf("gateway status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= 400 {
			return &statusError{Code: resp.StatusCode, Body: string(raw)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// doWithRetry ejecuta la función con backoff exponencial.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			slog.Warn("rate limited by gateway", "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return &statusError{Code: resp.StatusCode, Body: string(body)}
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
