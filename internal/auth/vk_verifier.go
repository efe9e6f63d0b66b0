package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultExchangeTimeout = 5 * time.Second
	defaultVKAPIVersion    = "5.199"
	defaultVKExchangeURL   = "https://api.vk.com/method/auth.exchangeSilentAuthToken"
	defaultVKProfileURL    = "https://api.vk.com/method/users.get"
)

var (
	// ErrInvalidProof indicates the identity provider rejected the silent token.
	ErrInvalidProof = errors.New("auth: identity proof rejected")
	// ErrInvalidBridgeConfig indicates unusable VK verifier configuration.
	ErrInvalidBridgeConfig = errors.New("auth: invalid vk verifier config")

	errMissingServiceToken = errors.New("service token configuration required")
	errMissingProofToken   = errors.New("silent token must not be empty")
)

// VKVerifierConfig bundles configuration required to instantiate a VKVerifier.
type VKVerifierConfig struct {
	ServiceToken string
	ExchangeURL  string
	ProfileURL   string
	APIVersion   string
	HTTPClient   *http.Client
	Timeout      time.Duration
	Logger       *zap.Logger
}

// Profile carries the optional fields fetched from VK on a best-effort basis.
type Profile struct {
	FirstName string
	LastName  string
	City      string
}

// VKVerifier exchanges a short-lived VK silent token for the stable VK user
// id, and fetches profile fields for account enrichment.
type VKVerifier struct {
	serviceToken string
	exchangeURL  string
	profileURL   string
	apiVersion   string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewVKVerifier constructs a verifier with validated configuration. The
// exchange call is bounded by the configured timeout so an unresponsive
// provider cannot stall the request indefinitely.
func NewVKVerifier(cfg VKVerifierConfig) (*VKVerifier, error) {
	serviceToken := strings.TrimSpace(cfg.ServiceToken)
	if serviceToken == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBridgeConfig, errMissingServiceToken)
	}

	exchangeURL := strings.TrimSpace(cfg.ExchangeURL)
	if exchangeURL == "" {
		exchangeURL = defaultVKExchangeURL
	}
	profileURL := strings.TrimSpace(cfg.ProfileURL)
	if profileURL == "" {
		profileURL = defaultVKProfileURL
	}
	apiVersion := strings.TrimSpace(cfg.APIVersion)
	if apiVersion == "" {
		apiVersion = defaultVKAPIVersion
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VKVerifier{
		serviceToken: serviceToken,
		exchangeURL:  exchangeURL,
		profileURL:   profileURL,
		apiVersion:   apiVersion,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// ExchangeSilentToken resolves the silent token to a stable VK user id.
// Rejections and malformed success envelopes surface as ErrInvalidProof.
func (v *VKVerifier) ExchangeSilentToken(ctx context.Context, silentToken, clientInstanceID string) (string, error) {
	if strings.TrimSpace(silentToken) == "" {
		return "", fmt.Errorf("%w: %v", ErrInvalidProof, errMissingProofToken)
	}

	form := url.Values{}
	form.Set("v", v.apiVersion)
	form.Set("token", silentToken)
	form.Set("access_token", v.serviceToken)
	form.Set("uuid", clientInstanceID)

	var envelope vkExchangeEnvelope
	if err := v.call(ctx, v.exchangeURL, form, &envelope); err != nil {
		return "", err
	}
	if envelope.Error != nil {
		v.logger.Warn("vk silent token exchange rejected",
			zap.Int("error_code", envelope.Error.Code),
			zap.String("error_msg", envelope.Error.Message))
		return "", fmt.Errorf("%w: %s", ErrInvalidProof, envelope.Error.Message)
	}
	if envelope.Response == nil || envelope.Response.UserID == 0 {
		return "", fmt.Errorf("%w: response missing user id", ErrInvalidProof)
	}

	return strconv.FormatInt(envelope.Response.UserID, 10), nil
}

// FetchProfile loads name and city fields for the VK user id. Callers treat
// failures as non-fatal and continue with partial data.
func (v *VKVerifier) FetchProfile(ctx context.Context, externalID string) (Profile, error) {
	form := url.Values{}
	form.Set("v", v.apiVersion)
	form.Set("access_token", v.serviceToken)
	form.Set("user_ids", externalID)
	form.Set("fields", "city")

	var envelope vkProfileEnvelope
	if err := v.call(ctx, v.profileURL, form, &envelope); err != nil {
		return Profile{}, err
	}
	if envelope.Error != nil {
		return Profile{}, fmt.Errorf("vk profile request rejected: %s", envelope.Error.Message)
	}
	if len(envelope.Response) == 0 {
		return Profile{}, fmt.Errorf("vk profile response empty for user %s", externalID)
	}

	entry := envelope.Response[0]
	return Profile{
		FirstName: entry.FirstName,
		LastName:  entry.LastName,
		City:      entry.City.Title,
	}, nil
}

func (v *VKVerifier) call(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("vk request returned status %d", response.StatusCode)
	}

	return json.NewDecoder(response.Body).Decode(out)
}

type vkExchangeEnvelope struct {
	Response *vkExchangePayload `json:"response"`
	Error    *vkError           `json:"error"`
}

type vkExchangePayload struct {
	UserID      int64  `json:"user_id"`
	AccessToken string `json:"access_token"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

type vkProfileEnvelope struct {
	Response []vkProfileEntry `json:"response"`
	Error    *vkError         `json:"error"`
}

type vkProfileEntry struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      vkCity `json:"city"`
}

type vkCity struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type vkError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}
