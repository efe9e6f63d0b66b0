package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVKVerifierExchangesSilentToken(t *testing.T) {
	var seenForm map[string]string
	vkServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		seenForm = map[string]string{
			"token": r.PostFormValue("token"),
			"uuid":  r.PostFormValue("uuid"),
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"user_id":      777,
				"access_token": "vk-access",
			},
		})
	}))
	defer vkServer.Close()

	verifier, err := NewVKVerifier(VKVerifierConfig{
		ServiceToken: "service-token",
		ExchangeURL:  vkServer.URL,
		HTTPClient:   vkServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	externalID, err := verifier.ExchangeSilentToken(context.Background(), "silent-token", "instance-1")
	if err != nil {
		t.Fatalf("expected exchange to succeed: %v", err)
	}
	if externalID != "777" {
		t.Fatalf("unexpected external id %q", externalID)
	}
	if seenForm["token"] != "silent-token" || seenForm["uuid"] != "instance-1" {
		t.Fatalf("unexpected form payload %v", seenForm)
	}
}

func TestVKVerifierRejectsErrorEnvelope(t *testing.T) {
	vkServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"error_code": 104,
				"error_msg":  "token has expired",
			},
		})
	}))
	defer vkServer.Close()

	verifier, err := NewVKVerifier(VKVerifierConfig{
		ServiceToken: "service-token",
		ExchangeURL:  vkServer.URL,
		HTTPClient:   vkServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	_, err = verifier.ExchangeSilentToken(context.Background(), "stale-token", "instance-1")
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
}

func TestVKVerifierRejectsEnvelopeWithoutUserID(t *testing.T) {
	vkServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{
				"access_token": "vk-access",
			},
		})
	}))
	defer vkServer.Close()

	verifier, err := NewVKVerifier(VKVerifierConfig{
		ServiceToken: "service-token",
		ExchangeURL:  vkServer.URL,
		HTTPClient:   vkServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	_, err = verifier.ExchangeSilentToken(context.Background(), "silent-token", "instance-1")
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for missing user id, got %v", err)
	}
}

func TestVKVerifierRejectsEmptySilentToken(t *testing.T) {
	verifier, err := NewVKVerifier(VKVerifierConfig{ServiceToken: "service-token"})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	_, err = verifier.ExchangeSilentToken(context.Background(), "  ", "instance-1")
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for empty silent token, got %v", err)
	}
}

func TestVKVerifierFetchesProfile(t *testing.T) {
	vkServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response": []any{
				map[string]any{
					"id":         777,
					"first_name": "Ada",
					"last_name":  "Lovelace",
					"city":       map[string]any{"id": 2, "title": "Saint Petersburg"},
				},
			},
		})
	}))
	defer vkServer.Close()

	verifier, err := NewVKVerifier(VKVerifierConfig{
		ServiceToken: "service-token",
		ProfileURL:   vkServer.URL,
		HTTPClient:   vkServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	profile, err := verifier.FetchProfile(context.Background(), "777")
	if err != nil {
		t.Fatalf("expected profile fetch to succeed: %v", err)
	}
	if profile.FirstName != "Ada" || profile.LastName != "Lovelace" || profile.City != "Saint Petersburg" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestVKVerifierFetchProfileReportsEmptyResponse(t *testing.T) {
	vkServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": []any{}})
	}))
	defer vkServer.Close()

	verifier, err := NewVKVerifier(VKVerifierConfig{
		ServiceToken: "service-token",
		ProfileURL:   vkServer.URL,
		HTTPClient:   vkServer.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	if _, err := verifier.FetchProfile(context.Background(), "777"); err == nil {
		t.Fatalf("expected error for empty profile response")
	}
}

func TestNewVKVerifierRequiresServiceToken(t *testing.T) {
	_, err := NewVKVerifier(VKVerifierConfig{ServiceToken: "   "})
	if !errors.Is(err, ErrInvalidBridgeConfig) {
		t.Fatalf("expected ErrInvalidBridgeConfig, got %v", err)
	}
}
