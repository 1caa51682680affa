package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Provider-side failure taxonomy. Cancelled is the buyer abandoning the
// overlay; everything else is ErrProvider. The two get distinct user-facing
// messages so the user knows who aborted.
var (
	ErrProvider          = errors.New("payment failed")
	ErrProviderCancelled = errors.New("payment cancelled by user")
	ErrNotReady          = errors.New("payment buttons are not available yet")
)

type Config struct {
	BaseURL  string
	ClientID string
	Secret   string
	Currency string
}

// SDK is the live ButtonsProvider. Readiness is a client-credentials
// handshake with the provider; mounts track which checkout attempt owns
// which rendered widget.
type SDK struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.SugaredLogger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
	mounts   map[string]Callbacks
}

func NewSDK(httpClient *http.Client, cfg Config, logger *zap.SugaredLogger) *SDK {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &SDK{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
		mounts:     make(map[string]Callbacks),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Handshake acquires (or refreshes) the provider access token. Safe to call
// repeatedly; a still-valid token short-circuits.
func (s *SDK) Handshake(ctx context.Context) error {
	s.mu.Lock()
	if s.token != "" && time.Now().Before(s.tokenExp) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	form := url.Values{"grant_type": {"client_credentials"}}
	httpRequest, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		s.cfg.BaseURL+"/v1/oauth2/token",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(s.cfg.ClientID + ":" + s.cfg.Secret))
	httpRequest.Header.Set("Authorization", "Basic "+credentials)
	httpRequest.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := s.httpClient.Do(httpRequest)
	if err != nil {
		return fmt.Errorf("httpClient.Do: %w", err)
	}
	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("io.ReadAll(response.Body): %w", err)
	}
	if err = response.Body.Close(); err != nil {
		return fmt.Errorf("response.Body.Close: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("token endpoint returned status %d: %s", response.StatusCode, string(responseBody))
	}

	var token tokenResponse
	if err = json.Unmarshal(responseBody, &token); err != nil {
		return fmt.Errorf("json.Unmarshal(responseBody): %w", err)
	}
	if token.AccessToken == "" {
		return errors.New("token endpoint returned no access_token")
	}

	s.mu.Lock()
	s.token = token.AccessToken
	// renew a minute early so in-flight calls never race expiry
	s.tokenExp = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	s.mu.Unlock()

	s.logger.Infow("provider handshake complete", "currency", s.cfg.Currency)
	return nil
}

func (s *SDK) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && time.Now().Before(s.tokenExp)
}

func (s *SDK) RenderButtons(containerID string, cb Callbacks) error {
	if !s.Ready() {
		return ErrNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// replacing an existing mount is the normal path: the container is
	// cleared before every render attempt
	s.mounts[containerID] = cb
	return nil
}

func (s *SDK) Unmount(containerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mounts, containerID)
}

// Mount returns the callbacks registered for a container. The HTTP layer uses
// it to dispatch the widget's front-channel calls.
func (s *SDK) Mount(containerID string) (Callbacks, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.mounts[containerID]
	return cb, ok
}
