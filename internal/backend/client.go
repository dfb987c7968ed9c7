package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aromelle/cartsync/internal/config"
	"github.com/aromelle/cartsync/internal/domain"
	"github.com/aromelle/cartsync/pkg/errors"
)

// Client talks to the remote cart service over HTTP/JSON. The backend owns
// the durable cart; every call returns the server-confirmed representation.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new cart backend client
func NewClient(cfg config.BackendConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type sessionResponse struct {
	Credential string `json:"credential"`
}

type apiError struct {
	Error string `json:"error"`
}

// FetchCart fetches the cart for the given session credential
func (c *Client) FetchCart(ctx context.Context, credential string) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodGet, "/cart", credential, nil)
}

// AddItem adds a product line. Whether an already-present product+size
// combines into one line or creates a new one is the backend's decision; the
// returned cart reflects it verbatim.
func (c *Client) AddItem(ctx context.Context, credential, productID string, quantity int, size string) (*domain.Cart, error) {
	body := addItemRequest{ProductID: productID, Quantity: quantity, Size: size}
	return c.doCart(ctx, http.MethodPost, "/cart/items", credential, body)
}

// UpdateItem sets the quantity of an existing line
func (c *Client) UpdateItem(ctx context.Context, credential, itemID string, quantity int) (*domain.Cart, error) {
	body := updateItemRequest{Quantity: quantity}
	return c.doCart(ctx, http.MethodPatch, "/cart/items/"+itemID, credential, body)
}

// RemoveItem deletes a line entirely
func (c *Client) RemoveItem(ctx context.Context, credential, itemID string) (*domain.Cart, error) {
	return c.doCart(ctx, http.MethodDelete, "/cart/items/"+itemID, credential, nil)
}

// CreateAnonymousSession asks the backend for a guest credential backing an
// empty anonymous cart.
func (c *Client) CreateAnonymousSession(ctx context.Context) (string, error) {
	respBody, err := c.do(ctx, http.MethodPost, "/sessions/anonymous", "", nil)
	if err != nil {
		return "", err
	}

	var resp sessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal session response: %w", err)
	}
	if resp.Credential == "" {
		return "", fmt.Errorf("backend returned an empty credential")
	}
	return resp.Credential, nil
}

func (c *Client) doCart(ctx context.Context, method, path, credential string, body interface{}) (*domain.Cart, error) {
	respBody, err := c.do(ctx, method, path, credential, body)
	if err != nil {
		return nil, err
	}

	var cart domain.Cart
	if err := json.Unmarshal(respBody, &cart); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart response: %w", err)
	}
	return &cart, nil
}

func (c *Client) do(ctx context.Context, method, path, credential string, body interface{}) ([]byte, error) {
	op := method + " " + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Offline, DNS failure, timeout: all one transport error class
		c.logger.Warn("Cart backend request failed",
			zap.String("op", op),
			zap.Error(err),
		)
		return nil, &errors.ErrBackend{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ErrBackend{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	message := decodeErrorMessage(respBody)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &errors.ErrUnauthorized{Message: message}
	case http.StatusNotFound:
		return nil, &errors.ErrNotFound{Resource: "cart item", ID: path}
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusConflict:
		// Surface the backend's validation message verbatim
		return nil, &errors.ErrValidation{Message: message}
	default:
		c.logger.Warn("Cart backend returned an error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &errors.ErrBackend{
			Op:  op,
			Err: fmt.Errorf("status %d: %s", resp.StatusCode, message),
		}
	}
}

func decodeErrorMessage(body []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return strings.TrimSpace(string(body))
}
