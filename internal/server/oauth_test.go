package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

// tokenServer fakes the provider's token endpoint for code exchange.
func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "fresh-token",
			"token_type":    "Bearer",
			"refresh_token": "refresh-me",
			"expires_in":    3600,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func oauthConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/callback",
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}
}

func callback(t *testing.T, handler http.Handler, params url.Values) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(http.MethodGet, "/callback?"+params.Encode(), nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestOAuthHandler(t *testing.T) {
	t.Run("SuccessfulExchange", func(t *testing.T) {
		provider := tokenServer(t)
		handler := NewOAuthHandler(oauthConfig(provider.URL), "state-1")

		recorder := callback(t, handler, url.Values{"state": {"state-1"}, "code": {"auth-code"}})
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if !strings.Contains(recorder.Body.String(), "Login complete") {
			t.Error("expected the completion page")
		}

		result := <-handler.Result()
		if result.Error() != nil {
			t.Fatalf("unexpected error: %v", result.Error())
		}
		if result.Token == nil || result.Token.AccessToken != "fresh-token" {
			t.Errorf("unexpected token: %+v", result.Token)
		}
	})

	t.Run("StateMismatch", func(t *testing.T) {
		handler := NewOAuthHandler(oauthConfig("http://unused"), "state-1")

		recorder := callback(t, handler, url.Values{"state": {"evil"}, "code": {"auth-code"}})
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", recorder.Code)
		}

		result := <-handler.Result()
		if result.Error() == nil || !strings.Contains(result.Error().Error(), "state") {
			t.Errorf("expected a state error, got %v", result.Error())
		}
	})

	t.Run("AuthorizationDenied", func(t *testing.T) {
		handler := NewOAuthHandler(oauthConfig("http://unused"), "state-1")

		recorder := callback(t, handler, url.Values{
			"state":             {"state-1"},
			"error":             {"access_denied"},
			"error_description": {"user said no"},
		})
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", recorder.Code)
		}

		result := <-handler.Result()
		if result.Error() == nil || !strings.Contains(result.Error().Error(), "access_denied") {
			t.Errorf("expected the provider error surfaced, got %v", result.Error())
		}
	})

	t.Run("RepeatCallbackRejected", func(t *testing.T) {
		provider := tokenServer(t)
		handler := NewOAuthHandler(oauthConfig(provider.URL), "state-1")

		params := url.Values{"state": {"state-1"}, "code": {"auth-code"}}
		if recorder := callback(t, handler, params); recorder.Code != http.StatusOK {
			t.Fatalf("first callback failed: %d", recorder.Code)
		}
		if recorder := callback(t, handler, params); recorder.Code != http.StatusBadRequest {
			t.Errorf("replayed callback should be rejected, got %d", recorder.Code)
		}

		// Only the first outcome is delivered; the channel is closed after it.
		<-handler.Result()
		if _, open := <-handler.Result(); open {
			t.Error("result channel should be closed after delivery")
		}
	})
}
