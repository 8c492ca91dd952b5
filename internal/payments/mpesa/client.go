// Package mpesa is a Daraja client for Lipa na M-Pesa Online (STK push).
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/cache"
	"storefront/internal/payments"
)

const (
	DefaultBaseURL  = "https://sandbox.safaricom.co.ke"
	tokenPath       = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath     = "/mpesa/stkpush/v1/processrequest"
	timestampLayout = "20060102150405"

	tokenCacheOp      = "mpesa-token"
	tokenExpiryMargin = time.Minute
	maxResponseBytes  = 1 << 20
	accountRefMaxLen  = 12
)

// Daraja expects timestamps in East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

type Config struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string
	TransactionDesc string
	CountryCode     string
	Timeout         time.Duration
}

type Client struct {
	log    *slog.Logger
	cfg    Config
	http   *http.Client
	cache  cache.Cache
	signer *Signer
	now    func() time.Time
}

func NewClient(log *slog.Logger, cfg Config, tokens cache.Cache, signer *Signer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TransactionType == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	if cfg.TransactionDesc == "" {
		cfg.TransactionDesc = "Checkout payment"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if tokens == nil {
		tokens = cache.Nop{}
	}

	return &Client{
		log:    log,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		cache:  tokens,
		signer: signer,
		now:    time.Now,
	}
}

// Ack is the synchronous answer to an STK push request.
type Ack struct {
	MerchantRequestID   string          `json:"MerchantRequestID,omitempty"`
	CheckoutRequestID   string          `json:"CheckoutRequestID,omitempty"`
	ResponseCode        json.RawMessage `json:"ResponseCode,omitempty"`
	ResponseDescription string          `json:"ResponseDescription,omitempty"`
	CustomerMessage     string          `json:"CustomerMessage,omitempty"`
	RequestID           string          `json:"requestId,omitempty"`
	ErrorCode           string          `json:"errorCode,omitempty"`
	ErrorMessage        string          `json:"errorMessage,omitempty"`

	HTTPStatus int `json:"-"`
}

// Accepted is true only for a 2xx answer whose ResponseCode is the string "0".
// A numeric 0 is not an acceptance.
func (a Ack) Accepted() bool {
	return a.HTTPStatus >= 200 && a.HTTPStatus < 300 && string(a.ResponseCode) == `"0"`
}

// Code is the response code as sent, or the error code of a Daraja fault.
func (a Ack) Code() string {
	if len(a.ResponseCode) > 0 {
		var s string
		if err := json.Unmarshal(a.ResponseCode, &s); err == nil {
			return s
		}
		return string(a.ResponseCode)
	}
	return a.ErrorCode
}

// Reason is the best human-readable explanation the gateway gave.
func (a Ack) Reason() string {
	for _, candidate := range []string{a.CustomerMessage, a.ResponseDescription, a.ErrorMessage} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return "Unknown Error"
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

func accountReference(orderID string) string {
	if len(orderID) <= accountRefMaxLen {
		return orderID
	}
	return orderID[len(orderID)-accountRefMaxLen:]
}

// RequestPush asks Daraja to prompt phone for amount shillings against orderID.
// A gateway refusal is not an error: it comes back as an Ack that is not Accepted.
func (c *Client) RequestPush(ctx context.Context, orderID, phone string, amount int64) (Ack, error) {
	const op = "mpesa.Client.RequestPush"
	log := c.log.With(slog.String("op", op), slog.String("order_id", orderID))

	msisdn, err := NormalizePhone(phone, c.cfg.CountryCode)
	if err != nil {
		return Ack{}, fmt.Errorf("%s: %w", op, err)
	}
	if amount <= 0 {
		return Ack{}, fmt.Errorf("%s: %w: %d", op, payments.ErrInvalidAmount, amount)
	}

	callbackURL, err := c.signer.CallbackURL(c.cfg.CallbackURL, orderID)
	if err != nil {
		return Ack{}, fmt.Errorf("%s: %w", op, err)
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return Ack{}, fmt.Errorf("%s: %w", op, err)
	}

	timestamp := c.now().In(eat).Format(timestampLayout)
	body, err := json.Marshal(stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   c.cfg.TransactionType,
		Amount:            amount,
		PartyA:            msisdn,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       callbackURL,
		AccountReference:  accountReference(orderID),
		TransactionDesc:   c.cfg.TransactionDesc,
	})
	if err != nil {
		return Ack{}, fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.ErrorContext(ctx, "stk push transport error", slog.String("error", err.Error()))
		return Ack{}, fmt.Errorf("%s: %w: %v", op, payments.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Ack{}, fmt.Errorf("%s: %w: read response: %v", op, payments.ErrGatewayUnavailable, err)
	}

	var ack Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		log.ErrorContext(ctx, "stk push undecodable response",
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(raw), 256)),
		)
		return Ack{}, fmt.Errorf("%s: %w: status %d with undecodable body", op, payments.ErrGatewayUnavailable, resp.StatusCode)
	}
	ack.HTTPStatus = resp.StatusCode

	if resp.StatusCode == http.StatusUnauthorized {
		return ack, fmt.Errorf("%s: %w: %s", op, payments.ErrGatewayAuthFailed, ack.Reason())
	}

	log.InfoContext(ctx, "stk push answered",
		slog.Int("status", resp.StatusCode),
		slog.String("response_code", ack.Code()),
		slog.String("checkout_request_id", ack.CheckoutRequestID),
		slog.Bool("accepted", ack.Accepted()),
	)
	return ack, nil
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// accessToken returns a cached OAuth token or fetches a new one.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	const op = "mpesa.Client.accessToken"
	log := c.log.With(slog.String("op", op))

	key := c.cache.GenerateKey(tokenCacheOp, c.cfg.ConsumerKey)
	if token, err := c.cache.Get(ctx, key); err != nil {
		log.WarnContext(ctx, "token cache read failed", slog.String("error", err.Error()))
	} else if token != "" {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", op, payments.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("%s: %w: oauth status %d", op, payments.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: %w: oauth status %d", op, payments.ErrGatewayAuthFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tr); err != nil {
		return "", fmt.Errorf("%s: %w: decode token: %v", op, payments.ErrGatewayAuthFailed, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%s: %w: empty access token", op, payments.ErrGatewayAuthFailed)
	}

	if ttl := tokenTTL(tr.ExpiresIn); ttl > 0 {
		if err := c.cache.Set(ctx, key, tr.AccessToken, ttl); err != nil {
			log.WarnContext(ctx, "token cache write failed", slog.String("error", err.Error()))
		}
	}
	return tr.AccessToken, nil
}

func tokenTTL(expiresIn json.Number) time.Duration {
	seconds, err := strconv.ParseInt(expiresIn.String(), 10, 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds)*time.Second - tokenExpiryMargin
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

