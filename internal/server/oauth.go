package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
)

// OAuthResult carries the outcome of an authorization-code flow.
type OAuthResult struct {
	Token *oauth2.Token
	err   error
}

func (o OAuthResult) Error() error { return o.err }

// OAuthHandler serves the OAuth2 redirect endpoint during an interactive
// login. It validates the state parameter, exchanges the authorization
// code for a token and delivers exactly one [OAuthResult] on the channel
// returned by [OAuthHandler.Result]. Implements [Handler] so it can be
// mounted on a short-lived local [Router].
type OAuthHandler struct {
	config *oauth2.Config
	state  string

	mu      sync.Mutex
	handled bool

	once    sync.Once
	results chan OAuthResult
}

// NewOAuthHandler creates a handler bound to the given config and CSRF
// state token. The state should come from a fresh random value.
func NewOAuthHandler(config *oauth2.Config, state string) *OAuthHandler {
	return &OAuthHandler{
		config:  config,
		state:   state,
		results: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/callback"}
}

// ServeHTTP processes the provider redirect. Repeated hits after the
// first are rejected so a replayed callback cannot race the exchange.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.handled {
		h.mu.Unlock()
		http.Error(w, "callback already processed", http.StatusBadRequest)
		return
	}
	h.handled = true
	h.mu.Unlock()

	query := r.URL.Query()

	if query.Get("state") != h.state {
		h.send(OAuthResult{err: fmt.Errorf("state parameter mismatch")})
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("authorization denied: %s (%s)", query.Get("error"), query.Get("error_description"))
		h.send(OAuthResult{err: err})
		http.Error(w, "authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(context.Background(), code)
	if err != nil {
		h.send(OAuthResult{err: fmt.Errorf("token exchange failed: %w", err)})
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	h.send(OAuthResult{Token: token})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Login complete</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4rem;">
  <h1>Login complete</h1>
  <p>You can close this tab and return to the terminal.</p>
</body>
</html>
`)
}

// Result returns the channel the flow outcome is delivered on. The
// channel receives one value and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.results
}

func (h *OAuthHandler) send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}
