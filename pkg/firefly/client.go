package firefly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/oauth2"
)

// maxListPages caps the pagination loops over accounts and categories.
const maxListPages = 1000

// ClientConfig represents the configuration for the Firefly III API client.
type ClientConfig struct {
	Host    string
	Token   string
	Timeout time.Duration // Default: 30 seconds
}

// Client is a Firefly III API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new Firefly III API client.
// Requests carry the personal access token as a bearer token.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: config.Token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(config.Host, "/"),
	}
}

// About returns the instance information. It doubles as the connectivity check.
func (c *Client) About(ctx context.Context) (*About, error) {
	var resp aboutResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/about", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ListAssetAccounts lists all asset accounts.
func (c *Client) ListAssetAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	for page := 1; page <= maxListPages; page++ {
		query := url.Values{}
		query.Set("type", "asset")
		query.Set("page", strconv.Itoa(page))

		var resp listResponse[accountAttributes]
		if err := c.do(ctx, http.MethodGet, "/api/v1/accounts", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list accounts (page=%d): %w", page, err)
		}
		for _, r := range resp.Data {
			accounts = append(accounts, Account{ID: r.ID, Name: r.Attributes.Name, Type: r.Attributes.Type})
		}
		if len(resp.Data) == 0 || resp.Meta.Pagination.LastPage() {
			break
		}
	}
	return accounts, nil
}

// DefaultAccount resolves the source account for imported withdrawals.
// A configured id wins; otherwise the first asset account is used.
func (c *Client) DefaultAccount(ctx context.Context, configuredID string) (Account, error) {
	if configuredID != "" {
		return Account{ID: configuredID}, nil
	}

	accounts, err := c.ListAssetAccounts(ctx)
	if err != nil {
		return Account{}, err
	}
	if len(accounts) == 0 {
		return Account{}, ErrNoAccount
	}
	return accounts[0], nil
}

// ListTransactions fetches one page of transactions between start and end, inclusive.
func (c *Client) ListTransactions(ctx context.Context, start, end civil.Date, page int) (*TransactionPage, error) {
	query := url.Values{}
	query.Set("start", start.String())
	query.Set("end", end.String())
	query.Set("page", strconv.Itoa(page))

	var resp listResponse[transactionAttributes]
	if err := c.do(ctx, http.MethodGet, "/api/v1/transactions", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list transactions (page=%d): %w", page, err)
	}

	result := &TransactionPage{Pagination: resp.Meta.Pagination}
	for _, r := range resp.Data {
		result.Groups = append(result.Groups, toGroup(r))
	}
	return result, nil
}

// ListCategories lists every category across all pages.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	for page := 1; page <= maxListPages; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))

		var resp listResponse[categoryAttributes]
		if err := c.do(ctx, http.MethodGet, "/api/v1/categories", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to list categories (page=%d): %w", page, err)
		}
		for _, r := range resp.Data {
			categories = append(categories, Category{ID: r.ID, Name: r.Attributes.Name})
		}
		if len(resp.Data) == 0 || resp.Meta.Pagination.LastPage() {
			break
		}
	}
	return categories, nil
}

// CreateCategory creates a category.
func (c *Client) CreateCategory(ctx context.Context, name string) (Category, error) {
	body := map[string]string{"name": name}

	var resp singleResponse[categoryAttributes]
	if err := c.do(ctx, http.MethodPost, "/api/v1/categories", nil, body, &resp); err != nil {
		return Category{}, err
	}
	return Category{ID: resp.Data.ID, Name: resp.Data.Attributes.Name}, nil
}

// StoreTransaction stores a new transaction group.
// Rejections come back as *APIError; see IsDuplicate and IsValidation.
func (c *Client) StoreTransaction(ctx context.Context, req StoreTransactionRequest) (*TransactionGroup, error) {
	var resp singleResponse[transactionAttributes]
	if err := c.do(ctx, http.MethodPost, "/api/v1/transactions", nil, req, &resp); err != nil {
		return nil, err
	}
	group := toGroup(resp.Data)
	return &group, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseError parses an error response from Firefly III.
func parseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr.Message = "failed to read error response"
		return apiErr
	}

	var errResp struct {
		Message string          `json:"message"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Message = errResp.Message
	// Firefly sends an empty array instead of an object when there are no field errors.
	var fields map[string][]string
	if json.Unmarshal(errResp.Errors, &fields) == nil {
		apiErr.Errors = fields
	}
	return apiErr
}
