package tricount

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is the public Tricount API.
	DefaultBaseURL = "https://api.tricount.bunq.com"

	userAgent = "com.bunq.tricount.android:RELEASE:7.0.7:3174:ANDROID:13:C"
)

// ErrNotAuthenticated is returned when fetching before Authenticate.
var ErrNotAuthenticated = errors.New("tricount client is not authenticated")

// ClientConfig represents the configuration for the Tricount API client.
type ClientConfig struct {
	BaseURL string        // Default: DefaultBaseURL
	Timeout time.Duration // Default: 30 seconds
	KeyBits int           // RSA key size for the installation. Default: 2048
}

// Client is an anonymous Tricount API client. Each client registers its own
// app installation, which is enough to read registries by their public key.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	keyBits        int
	installationID string
	authToken      string
	userID         int64
}

// NewClient creates a new Tricount API client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	keyBits := config.KeyBits
	if keyBits == 0 {
		keyBits = 2048
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		keyBits:        keyBits,
		installationID: uuid.NewString(),
	}
}

// Authenticate registers an app installation with a fresh RSA key and keeps
// the returned session token.
func (c *Client) Authenticate(ctx context.Context) error {
	key, err := rsa.GenerateKey(rand.Reader, c.keyBits)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})

	body, err := json.Marshal(installationRequest{
		AppInstallationUUID: c.installationID,
		ClientPublicKey:     string(publicPEM),
		DeviceDescription:   "Android",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/v1/session-registry-installation", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.send(req)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	var resp installationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	c.authToken, c.userID = "", 0
	for _, item := range resp.Response {
		if item.Token != nil && c.authToken == "" {
			c.authToken = item.Token.Token
		}
		if item.UserPerson != nil && c.userID == 0 {
			c.userID = item.UserPerson.ID
		}
	}
	if c.authToken == "" || c.userID == 0 {
		return fmt.Errorf("authentication response is missing token or user")
	}
	return nil
}

// FetchRegistry fetches the registry identified by its public key.
// The raw body is returned alongside the decoded response.
func (c *Client) FetchRegistry(ctx context.Context, key string) (*RegistryResponse, []byte, error) {
	if c.authToken == "" {
		return nil, nil, ErrNotAuthenticated
	}

	query := url.Values{}
	query.Set("public_identifier_token", key)
	endpoint := fmt.Sprintf("%s/v1/user/%d/registry?%s", c.baseURL, c.userID, query.Encode())

	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}

	data, err := c.send(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch registry: %w", err)
	}

	var resp RegistryResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode registry: %w", err)
	}
	return &resp, data, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("app-id", c.installationID)
	req.Header.Set("X-Bunq-Client-Request-Id", uuid.NewString())
	if c.authToken != "" {
		req.Header.Set("X-Bunq-Client-Authentication", c.authToken)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp.StatusCode, data)
	}
	return data, nil
}

// parseError parses an error response from the Tricount API.
func parseError(status int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && len(errResp.Error) > 0 {
		return fmt.Errorf("tricount API error (status %d): %s", status, errResp.Error[0].ErrorDescription)
	}
	return fmt.Errorf("tricount API error (status %d): %s", status, strings.TrimSpace(string(body)))
}
