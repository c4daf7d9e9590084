package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/domain"
	"github.com/iho/payflow/internal/usecase"
)

// PSPClient implements usecase.Gateway against the processor's HTTP API.
// Every mutating request carries an Idempotency-Key header so a retried
// request lands on the processor's stored result instead of charging twice.
type PSPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewPSPClient creates a new PSPClient.
func NewPSPClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *PSPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &PSPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	BuyerID  string `json:"buyer_id"`
	OrderID  string `json:"order_id"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type resultResponse struct {
	Status string `json:"status"`
}

// CreateIntent registers a new payment intent with the processor.
func (c *PSPClient) CreateIntent(ctx context.Context, idempotencyKey string, intent *domain.PaymentIntent) (usecase.GatewayIntent, error) {
	body := createIntentRequest{
		Amount:   intent.TotalAmount.Quantity,
		Currency: intent.TotalAmount.Currency,
		BuyerID:  intent.BuyerID,
		OrderID:  intent.OrderID,
	}

	var resp intentResponse
	if err := c.post(ctx, "/v1/payment_intents", idempotencyKey, body, &resp); err != nil {
		return usecase.GatewayIntent{}, err
	}

	return usecase.GatewayIntent{PSPReference: resp.ID, ClientSecret: resp.ClientSecret}, nil
}

// ConfirmIntent asks the processor to authorize the intent.
func (c *PSPClient) ConfirmIntent(ctx context.Context, idempotencyKey, pspReference string) (domain.GatewayResultCode, error) {
	var resp resultResponse
	err := c.post(ctx, "/v1/payment_intents/"+pspReference+"/confirm", idempotencyKey, struct{}{}, &resp)
	if err != nil {
		return codeForTransportError(err), nil
	}

	return domain.GatewayResultCode(resp.Status), nil
}

// Capture captures an authorized amount.
func (c *PSPClient) Capture(ctx context.Context, idempotencyKey, pspReference string, amount domain.Amount) (domain.GatewayResultCode, error) {
	body := struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}{Amount: amount.Quantity, Currency: amount.Currency}

	var resp resultResponse
	err := c.post(ctx, "/v1/payment_intents/"+pspReference+"/capture", idempotencyKey, body, &resp)
	if err != nil {
		return codeForTransportError(err), nil
	}

	return domain.GatewayResultCode(resp.Status), nil
}

// RetrieveClientSecret fetches the client secret of an existing intent.
func (c *PSPClient) RetrieveClientSecret(ctx context.Context, pspReference string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+pspReference, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("processor returned status %d", httpResp.StatusCode)
	}

	var resp intentResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(&resp); err != nil {
		return "", err
	}

	return resp.ClientSecret, nil
}

func (c *PSPClient) post(ctx context.Context, path, idempotencyKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return &transportError{statusCode: httpResp.StatusCode}
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn().
			Int("status", httpResp.StatusCode).
			Str("path", path).
			Msg("processor rejected request")
		return fmt.Errorf("processor returned status %d", httpResp.StatusCode)
	}

	return json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(out)
}

// transportError marks failures where the processor never gave an answer:
// connection errors and 5xx responses.
type transportError struct {
	err        error
	statusCode int
}

func (e *transportError) Error() string {
	if e.err != nil {
		return "processor unreachable: " + e.err.Error()
	}
	return fmt.Sprintf("processor returned status %d", e.statusCode)
}

func (e *transportError) Unwrap() error { return e.err }

// codeForTransportError maps a transport-level failure onto the result
// codes the capture policy understands. Anything else is treated as a
// request the processor refused to accept.
func codeForTransportError(err error) domain.GatewayResultCode {
	var te *transportError
	if errors.As(err, &te) {
		if te.err != nil {
			return domain.GatewayCodeNetworkError
		}
		return domain.GatewayCodeUnavailable
	}

	return domain.GatewayCodeInvalidRequest
}
