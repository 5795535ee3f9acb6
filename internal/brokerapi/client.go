package brokerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/riskd/sentinel-risk-daemon/internal/domain"
	"github.com/riskd/sentinel-risk-daemon/internal/ratelimit"
)

const requestTimeout = 30 * time.Second

// Client is the REST binding of domain.BrokerClient: rate limiter, token
// manager, and error classifier wrapped around the brokerage's HTTP API.
// It also implements Authenticator so a TokenManager can drive it directly.
type Client struct {
	baseURL    string
	userName   string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	limiter    *ratelimit.Limiter
	classifier *Classifier
	tokens     *TokenManager

	connected bool
}

// NewClient builds a Client. The caller wires the TokenManager afterwards
// with SetTokenManager, since the manager itself is constructed with this
// Client as its Authenticator — the two are mutually referential.
func NewClient(baseURL, userName, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		userName:   userName,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.With().Str("component", "brokerapi-client").Logger(),
		limiter:    ratelimit.New(),
		classifier: NewClassifier(),
	}
}

// SetTokenManager installs the TokenManager this client authenticates
// through. Must be called once before any request-issuing method.
func (c *Client) SetTokenManager(tm *TokenManager) {
	c.tokens = tm
}

// Authenticate satisfies the Authenticator interface the TokenManager
// drives: it performs the loginKey handshake and reports the new token's
// lifetime. The brokerage does not return an explicit TTL, so the daemon
// assumes a conservative 24h lifetime and relies on Validate for early
// detection of server-side invalidation.
func (c *Client) Authenticate(ctx context.Context) (string, time.Time, error) {
	req := loginKeyRequest{UserName: c.userName, APIKey: c.apiKey}
	var resp loginKeyResponse
	if err := c.doUnauthenticated(ctx, "Auth/loginKey", req, &resp); err != nil {
		c.connected = false
		return "", time.Time{}, err
	}
	if !resp.Success || resp.Token == "" {
		c.connected = false
		return "", time.Time{}, fmt.Errorf("brokerapi: authentication rejected: %s", resp.ErrorMessage)
	}
	c.connected = true
	return resp.Token, time.Now().Add(24 * time.Hour), nil
}

// Validate satisfies Authenticator: it confirms the current token is still
// accepted by attempting a cheap authenticated call. It reads the token
// manager's cached token directly rather than through GetToken, since
// Validate itself runs from inside an in-progress refresh and GetToken's
// refresh-wait logic would otherwise deadlock against that same refresh.
func (c *Client) Validate(ctx context.Context) (bool, error) {
	token := c.tokens.CurrentToken()
	if token == "" {
		return false, nil
	}
	req := searchOpenPositionsRequest{AccountID: 0}
	var resp searchOpenPositionsResponse
	err := c.doAuthenticated(ctx, "general", "Position/searchOpen", token, req, &resp)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if asAPIError(err, &apiErr) && apiErr.Category == CategoryAuthentication {
		return false, nil
	}
	return false, err
}

// ClosePosition implements domain.BrokerClient.
func (c *Client) ClosePosition(ctx context.Context, accountID int64, contractID string) error {
	req := closeContractRequest{AccountID: accountID, ContractID: contractID}
	var resp closeContractResponse
	if err := c.callAuthenticated(ctx, "general", "Position/closeContract", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("brokerapi: close position rejected: %s", resp.ErrorMessage)
	}
	return nil
}

// CancelOrder implements domain.BrokerClient.
func (c *Client) CancelOrder(ctx context.Context, accountID int64, orderID string) error {
	req := cancelOrderRequest{AccountID: accountID, OrderID: orderID}
	var resp cancelOrderResponse
	if err := c.callAuthenticated(ctx, "general", "Order/cancel", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("brokerapi: cancel order rejected: %s", resp.ErrorMessage)
	}
	return nil
}

// PlaceOrder implements domain.BrokerClient.
func (c *Client) PlaceOrder(ctx context.Context, r domain.PlaceOrderRequest) (string, error) {
	req := placeOrderRequest{
		AccountID:  r.AccountID,
		ContractID: r.ContractID,
		Type:       int(r.Type),
		Side:       wireOrderSide(r.Side),
		Size:       r.Size,
		LimitPrice: r.LimitPrice,
		StopPrice:  r.StopPrice,
		CustomTag:  r.CustomTag,
	}
	var resp placeOrderResponse
	if err := c.callAuthenticated(ctx, "general", "Order/place", req, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("brokerapi: place order rejected: %s", resp.ErrorMessage)
	}
	return resp.OrderID, nil
}

// ModifyOrder implements domain.BrokerClient.
func (c *Client) ModifyOrder(ctx context.Context, accountID int64, orderID string, newStopPrice *float64) error {
	req := modifyOrderRequest{AccountID: accountID, OrderID: orderID, StopPrice: newStopPrice}
	var resp modifyOrderResponse
	if err := c.callAuthenticated(ctx, "general", "Order/modify", req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("brokerapi: modify order rejected: %s", resp.ErrorMessage)
	}
	return nil
}

// SearchOpenPositions implements domain.BrokerClient.
func (c *Client) SearchOpenPositions(ctx context.Context, accountID int64) ([]domain.Position, error) {
	req := searchOpenPositionsRequest{AccountID: accountID}
	var resp searchOpenPositionsResponse
	if err := c.callAuthenticated(ctx, "general", "Position/searchOpen", req, &resp); err != nil {
		return nil, err
	}
	return convertPositions(resp.Positions), nil
}

// SearchContract implements domain.BrokerClient.
func (c *Client) SearchContract(ctx context.Context, contractID string) (domain.Contract, error) {
	req := searchContractRequest{ContractID: contractID}
	var resp searchContractResponse
	if err := c.callAuthenticated(ctx, "history", "Contract/searchById", req, &resp); err != nil {
		return domain.Contract{}, err
	}
	return convertContract(resp.Contract), nil
}

// AccountStatus implements domain.BrokerClient: it fetches the account's
// current canTrade flag via REST, the RULE-010 startup check's data source
// (§4.18) before the push stream's GatewayUserAccount channel has delivered
// its first live update. An account absent from the response is assumed
// tradable.
func (c *Client) AccountStatus(ctx context.Context, accountID int64) (bool, error) {
	req := accountSearchRequest{AccountID: accountID}
	var resp accountSearchResponse
	if err := c.callAuthenticated(ctx, "general", "Account/search", req, &resp); err != nil {
		return true, err
	}
	for _, a := range resp.Accounts {
		if a.AccountID == accountID {
			return a.CanTrade, nil
		}
	}
	return true, nil
}

// IsConnected implements domain.BrokerClient.
func (c *Client) IsConnected() bool {
	return c.connected
}

// Diagnostics aggregates the rate limiter, error classifier, and token
// manager observability surfaces (SPEC_FULL.md §12.1-§12.3) for the status
// API.
type Diagnostics struct {
	RateLimit   map[ratelimit.Class]ratelimit.ClassStats `json:"rate_limit"`
	Errors      ErrorStats                               `json:"errors"`
	TokenState  TokenState                               `json:"token_state"`
	TokenExpiry float64                                  `json:"token_expiry_seconds"`
	QueueDepth  int                                       `json:"token_queue_depth"`
}

// Diagnostics reports the client's current rate-limit, error-history, and
// token-manager observability state.
func (c *Client) Diagnostics() Diagnostics {
	return Diagnostics{
		RateLimit:   c.limiter.Stats(),
		Errors:      c.classifier.Statistics(),
		TokenState:  c.tokens.State(),
		TokenExpiry: c.tokens.TimeUntilExpiry().Seconds(),
		QueueDepth:  c.tokens.QueueDepth(),
	}
}

func wireOrderSide(s domain.OrderSide) int {
	if s == domain.OrderSideSell {
		return 1
	}
	return 0
}

// callAuthenticated acquires the rate limiter slot for endpoint's class,
// fetches a token from the manager, and runs doAuthenticated with the
// classifier's retry loop; on an authentication error it forces one token
// refresh and retries exactly once (spec §4.5).
func (c *Client) callAuthenticated(ctx context.Context, class, endpoint string, body, out interface{}) error {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("brokerapi: acquiring token: %w", err)
	}

	err = c.doAuthenticated(ctx, class, endpoint, token, body, out)
	var apiErr *APIError
	if err != nil && asAPIError(err, &apiErr) && apiErr.Category == CategoryAuthentication {
		c.log.Warn().Str("endpoint", endpoint).Msg("authenticated call rejected, forcing token refresh and retrying once")
		c.tokens.Invalidate()
		token, refreshErr := c.tokens.GetToken(ctx)
		if refreshErr != nil {
			return fmt.Errorf("brokerapi: token refresh after 401: %w", refreshErr)
		}
		return c.doAuthenticated(ctx, class, endpoint, token, body, out)
	}
	return err
}

// doAuthenticated performs one logical authenticated call with the
// classifier-driven retry loop.
func (c *Client) doAuthenticated(ctx context.Context, class, endpoint string, token string, body, out interface{}) error {
	return c.doWithRetry(ctx, class, endpoint, func(ctx context.Context) (*http.Response, error) {
		return c.send(ctx, endpoint, body, token)
	}, out)
}

// doUnauthenticated is used only for the login handshake itself, which
// naturally has no token yet.
func (c *Client) doUnauthenticated(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.doWithRetry(ctx, "general", endpoint, func(ctx context.Context) (*http.Response, error) {
		return c.send(ctx, endpoint, body, "")
	}, out)
}

// doWithRetry runs the rate-limiter-gated, classifier-driven retry loop
// shared by every endpoint (spec §4.5, §4.2).
func (c *Client) doWithRetry(ctx context.Context, class, endpoint string, do func(context.Context) (*http.Response, error), out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		if _, err := c.limiter.Acquire(ctx, class); err != nil {
			return fmt.Errorf("brokerapi: rate limiter: %w", err)
		}

		resp, err := do(ctx)
		if err != nil {
			// A transport-level failure (dial error, timeout, connection
			// reset) is always Network/Timeout, classified transient
			// regardless of what HandleError's string matching would infer
			// from the raw Go error text.
			apiErr := &APIError{
				Message:    err.Error(),
				Category:   CategoryTransient,
				Endpoint:   endpoint,
				Method:     http.MethodPost,
				Timestamp:  time.Now(),
			}
			c.classifier.record(apiErr)
			if !c.classifier.ShouldRetry(apiErr, attempt) {
				return apiErr
			}
			lastErr = apiErr
			c.sleepBackoff(ctx, attempt, apiErr)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("brokerapi: reading response body: %w", readErr)
		}

		if resp.StatusCode != http.StatusOK {
			apiErr, retryable := c.classifier.HandleError(resp.StatusCode, string(body), endpoint, http.MethodPost)
			if !retryable || !c.classifier.ShouldRetry(apiErr, attempt) {
				return apiErr
			}
			lastErr = apiErr
			c.sleepBackoff(ctx, attempt, apiErr)
			continue
		}

		if out != nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("brokerapi: decoding %s response: %w", endpoint, err)
			}
		}
		return nil
	}

	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("brokerapi: %s: retries exhausted", endpoint)
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int, apiErr *APIError) {
	delay := c.classifier.RetryDelay(attempt, apiErr)
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// send issues the raw HTTP request for endpoint with the given body, and an
// optional bearer token.
func (c *Client) send(ctx context.Context, endpoint string, body interface{}, token string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("brokerapi: encoding %s request: %w", endpoint, err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("brokerapi: building request for %s: %w", endpoint, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "risk-daemon/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

// asAPIError unwraps err into an *APIError via a type assertion, writing
// the result through target. Returns false (and leaves *target untouched)
// if err is not an *APIError.
func asAPIError(err error, target **APIError) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}

var _ domain.BrokerClient = (*Client)(nil)
var _ Authenticator = (*Client)(nil)
