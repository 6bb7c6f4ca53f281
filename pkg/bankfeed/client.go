package bankfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/shopcore-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://my.sepay.vn/userapi"
	defaultTimeout              = 10 * time.Second
	transactionTimeLayout       = "2006-01-02 15:04:05"
	requestBodyReadLimit  int64 = 1024
)

var (
	errTokenRequired = errors.New("bank feed api token is required")

	// providerZone is the wall clock the provider reports transaction times in.
	providerZone = time.FixedZone("ICT", 7*60*60)
)

// Client reads the bank account transaction feed of the payment provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 && c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a feed client authenticated with the provider API token.
func NewClient(token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		token:      trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Transaction is one movement on the monitored bank account.
type Transaction struct {
	ID              string
	AccountNumber   string
	Content         string
	ReferenceNumber string
	AmountIn        decimal.Decimal
	AmountOut       decimal.Decimal
	TransactionDate time.Time
	Raw             json.RawMessage
}

// Incoming reports whether money arrived on the account.
func (t Transaction) Incoming() bool {
	return t.AmountIn.IsPositive()
}

// ListParams narrows a transaction listing.
type ListParams struct {
	AccountNumber string
	Since         time.Time
	Limit         int
}

type listResponse struct {
	Status   int `json:"status"`
	Messages struct {
		Success bool `json:"success"`
	} `json:"messages"`
	Transactions []json.RawMessage `json:"transactions"`
}

type transactionPayload struct {
	ID              json.Number     `json:"id"`
	AccountNumber   string          `json:"account_number"`
	TransactionDate string          `json:"transaction_date"`
	AmountIn        decimal.Decimal `json:"amount_in"`
	AmountOut       decimal.Decimal `json:"amount_out"`
	Content         string          `json:"transaction_content"`
	ReferenceNumber string          `json:"reference_number"`
}

// ListTransactions returns the most recent account transactions, newest first.
func (c *Client) ListTransactions(ctx context.Context, params ListParams) ([]Transaction, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bank feed client not configured")
	}

	query := url.Values{}
	if account := strings.TrimSpace(params.AccountNumber); account != "" {
		query.Set("account_number", account)
	}
	if !params.Since.IsZero() {
		query.Set("transaction_date_min", params.Since.In(providerZone).Format(transactionTimeLayout))
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}

	endpoint := c.buildURL("transactions/list")
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build transaction list request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute transaction list request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "transaction list request failed")
	}

	var apiResp listResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transaction list response")
	}

	out := make([]Transaction, 0, len(apiResp.Transactions))
	for _, raw := range apiResp.Transactions {
		txn, err := decodeTransaction(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transaction")
		}
		out = append(out, txn)
	}
	return out, nil
}

func decodeTransaction(raw json.RawMessage) (Transaction, error) {
	var payload transactionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Transaction{}, err
	}
	when, err := ParseTime(payload.TransactionDate)
	if err != nil {
		return Transaction{}, err
	}
	return Transaction{
		ID:              payload.ID.String(),
		AccountNumber:   strings.TrimSpace(payload.AccountNumber),
		Content:         payload.Content,
		ReferenceNumber: payload.ReferenceNumber,
		AmountIn:        payload.AmountIn,
		AmountOut:       payload.AmountOut,
		TransactionDate: when,
		Raw:             raw,
	}, nil
}

// ParseTime reads a provider timestamp. Empty input yields the zero time.
func ParseTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	parsed, err := time.ParseInLocation(transactionTimeLayout, trimmed, providerZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse transaction date %q: %w", trimmed, err)
	}
	return parsed.UTC(), nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
