package feepay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	KeyID     string `json:"keyId" mapstructure:"key_id"`
	KeySecret string `json:"keySecret" mapstructure:"key_secret"`
	HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`
}

type Client struct {
	// baseURL is the base url of the FeePay backend.
	baseURL string

	// keyID identifies the merchant against the FeePay backend.
	keyID string

	// keySecret authenticates the merchant and signs checkout payloads.
	keySecret string

	// hmacKey signs request bodies (SignedHash header).
	hmacKey string

	// accessToken authenticates API calls once connected.
	accessToken string

	// mu guards the access token.
	mu sync.Mutex

	// toggleTokenRefresher notifies the refresher to renew the token.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:   c.BaseURL,
		keyID:     c.KeyID,
		keySecret: c.KeySecret,
		hmacKey:   c.HMACKey,

		// buffered so a 401 never blocks the request path.
		toggleTokenRefresher: make(chan struct{}, 1),

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired runs an infinite loop that renews the access
// token from the FeePay backend, with exponential backoff on failure.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refresh requested")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect authenticates with the FeePay backend.
func (c *Client) connect(ctx context.Context) (string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", fmt.Errorf("connectFeePay: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"keyId":%q,"keySecret":%q}`, number, c.keyID, c.keySecret)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/api/v1/merchant/authenticate"), bodyReader)
	if err != nil {
		return "", fmt.Errorf("connectFeePay: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connectFeePay: http.Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", errors.New("connectFeePay: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("connectFeePay: http.StatusCode: %d", resp.StatusCode)
	}

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("connectFeePay: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("connectFeePay: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	accessToken := fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken)
	return accessToken, nil
}

// createOrder opens an order on the FeePay backend.
func (c *Client) createOrder(ctx context.Context, f *FormOrder) (*OrderReply, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("createOrderFeePay: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"keyId":%q,"amount":%s,"currency":%q,"receipt":%q,"note":%q}`,
		number, c.keyID, f.Amount, f.Currency, f.Receipt, f.Note)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/api/v1/orders"), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("createOrderFeePay: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("createOrderFeePay: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("createOrderFeePay: resp.StatusCode: 401 => Unauthorized")
	}

	var reply struct {
		Message string     `json:"message"`
		Status  string     `json:"status"`
		Data    OrderReply `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("createOrderFeePay: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("createOrderFeePay: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &reply.Data, nil
}

// checkPayment fetches the capture state of a payment.
func (c *Client) checkPayment(ctx context.Context, paymentID string) (*PaymentReply, error) {
	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/payments/%s", _baseURL.String(), paymentID), nil)
	if err != nil {
		return nil, fmt.Errorf("checkPaymentFeePay: http.NewReq: %w", err)
	}
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkPaymentFeePay: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return nil, errors.New("checkPaymentFeePay: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPaymentUnknown
	}

	var reply struct {
		Message string       `json:"message"`
		Status  string       `json:"status"`
		Data    PaymentReply `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkPaymentFeePay: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return nil, fmt.Errorf("checkPaymentFeePay: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return &reply.Data, nil
}

// refundPayment asks the backend to return captured funds.
func (c *Client) refundPayment(ctx context.Context, paymentID string) error {
	number, err := randomNumber()
	if err != nil {
		return fmt.Errorf("refundFeePay: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"paymentId":%q}`, number, paymentID)
	bodyReader := bytes.NewReader([]byte(body))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/v1/payments/%s/refund", _baseURL.String(), paymentID), bodyReader)
	if err != nil {
		return fmt.Errorf("refundFeePay: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
	req.Header.Set("Authorization", c.getAccessToken())

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("refundFeePay: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.toggleTokenRefresher <- struct{}{}
		return errors.New("refundFeePay: resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refundFeePay: http.StatusCode: %d", resp.StatusCode)
	}

	return nil
}

// ErrPaymentUnknown is returned when the backend has no record of the
// payment id.
var ErrPaymentUnknown = errors.New("feepay: payment not found")

type (
	// FormOrder is the order-creation form.
	FormOrder struct {
		Amount   decimal.Decimal
		Currency string
		Receipt  string
		Note     string
	}

	// OrderReply is the backend's order record.
	OrderReply struct {
		OrderID   string          `json:"orderId"`
		Amount    decimal.Decimal `json:"amount"`
		Currency  string          `json:"currency"`
		Status    string          `json:"status"`
		CreatedAt int64           `json:"createdAt"`
	}

	// PaymentReply is the backend's payment record.
	PaymentReply struct {
		PaymentID string          `json:"paymentId"`
		OrderID   string          `json:"orderId"`
		Amount    decimal.Decimal `json:"amount"`
		Status    string          `json:"status"`
	}
)
