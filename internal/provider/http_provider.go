package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pool-service/internal/service"
)

// HTTPProvider — клиент внешнего платёжного провайдера.
// Идемпотентность обеспечивает провайдер по заголовку Idempotency-Key.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type captureRequest struct {
	MethodRef   string `json:"method_ref"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type refundRequest struct {
	ProviderRef string `json:"provider_ref,omitempty"`
}

type providerResponse struct {
	Status      string `json:"status"`
	ProviderRef string `json:"provider_ref"`
	Message     string `json:"message"`
}

func (p *HTTPProvider) Capture(ctx context.Context, idempotencyKey, methodRef string, amountCents int64, currency string) (service.ProviderResult, error) {
	return p.post(ctx, "/v1/captures", idempotencyKey, captureRequest{
		MethodRef:   methodRef,
		AmountCents: amountCents,
		Currency:    currency,
	})
}

func (p *HTTPProvider) Refund(ctx context.Context, idempotencyKey, providerRef string) (service.ProviderResult, error) {
	return p.post(ctx, "/v1/refunds", idempotencyKey, refundRequest{ProviderRef: providerRef})
}

func (p *HTTPProvider) post(ctx context.Context, path, idempotencyKey string, payload any) (service.ProviderResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return service.ProviderResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return service.ProviderResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// таймаут/обрыв сети: исход неизвестен, считаем временной ошибкой
		if errors.Is(err, context.DeadlineExceeded) {
			return service.ProviderResult{}, &service.ProviderError{Retryable: true, Reason: "request timeout"}
		}
		return service.ProviderResult{}, &service.ProviderError{Retryable: true, Reason: err.Error()}
	}
	defer resp.Body.Close()

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil && resp.StatusCode < 300 {
		return service.ProviderResult{}, &service.ProviderError{Retryable: true, Reason: "malformed provider response"}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return service.ProviderResult{Status: pr.Status, ProviderRef: pr.ProviderRef}, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return service.ProviderResult{}, &service.ProviderError{
			Retryable: true,
			Reason:    fmt.Sprintf("provider unavailable: %d", resp.StatusCode),
		}
	default:
		// 4xx: отклонённая карта, невалидный refund и т.п.
		reason := pr.Message
		if reason == "" {
			reason = fmt.Sprintf("provider rejected request: %d", resp.StatusCode)
		}
		return service.ProviderResult{}, &service.ProviderError{Retryable: false, Reason: reason}
	}
}
