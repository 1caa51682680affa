package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// Client is a thin JSON client over the storefront REST backend. The backend
// owns orders, payments and carts; this service only consumes its endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	logger     *zap.SugaredLogger
}

func New(httpClient *http.Client, baseURL, authToken string, logger *zap.SugaredLogger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		authToken:  authToken,
		logger:     logger,
	}
}

func (c *Client) post(ctx context.Context, path string, reqBody any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, reqBody)
}

// do sends a JSON request and returns the raw response bytes. 4xx answers map
// to ValidationError carrying the server's message, everything else that is
// not 2xx maps to NetworkError. No retries: every operation here is either
// request-scoped or guarded upstream.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var reader io.Reader
	if reqBody != nil {
		body, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("json.Marshal: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	op := method + " " + path

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("io.ReadAll: %w", err)}
	}
	if err = response.Body.Close(); err != nil {
		return nil, fmt.Errorf("response.Body.Close: %w", err)
	}

	if response.StatusCode >= 400 && response.StatusCode < 500 {
		return nil, &ValidationError{Message: serverMessage(responseBody)}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, &NetworkError{
			Op:  op,
			Err: fmt.Errorf("status %d: %s", response.StatusCode, string(responseBody)),
		}
	}

	return responseBody, nil
}

// serverMessage digs a human-readable message out of an error body. The
// backend is not consistent about the field name.
func serverMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	return envelope.Error
}
