package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/castafiore/tunebridge/internal/catalog"
	"github.com/castafiore/tunebridge/internal/server"
	"github.com/castafiore/tunebridge/internal/shared"
)

const loginTimeout = 5 * time.Minute

// AuthLogin runs the interactive OAuth2 authorization-code flow for the
// streaming platform and saves the resulting token for later runs.
//
// A short-lived HTTP server on the configured redirect URI receives the
// provider callback; the user's browser is pointed at the consent page.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	creds := r.config.Streaming
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: streaming client_id and client_secret must be set in config.toml", shared.ErrMissingConfig)
	}

	redirect, err := url.Parse(creds.RedirectURI)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: invalid redirect_uri %q", shared.ErrInvalidConfig, creds.RedirectURI)
	}

	config := catalog.SpotifyAuthConfig(creds.ClientID, creds.ClientSecret, creds.RedirectURI)
	state := shared.GenerateID()

	handler := server.NewOAuthHandler(config, state)
	router := server.NewBasicRouter()
	router.Handler(handler)

	srv := &http.Server{Addr: redirect.Host, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	r.writePlain("Opening browser for authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("could not open browser", "error", err)
		r.writePlain("Visit this URL to authorize:\n%s\n", authURL)
	}

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-errCh:
		return fmt.Errorf("callback server failed: %w", err)
	case <-time.After(loginTimeout):
		return fmt.Errorf("%w: no callback received within %v", shared.ErrAuthFailed, loginTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := result.Error(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	path, err := saveSpotifyToken(result.Token)
	if err != nil {
		return err
	}

	r.logger.Info("authentication successful", "token_path", path)
	r.writePlain("✓ Authentication successful\n")
	r.writePlain("Token saved to: %s\n", path)

	return nil
}

// AuthStatus reports whether a saved token exists and whether it is
// still inside its validity window.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	token, err := loadSpotifyToken()
	if err != nil {
		r.writePlain("✗ Not authenticated\n")
		r.writePlain("Run 'tunebridge auth login' to connect the streaming platform\n")
		return nil
	}

	r.writePlain("✓ Authenticated\n")
	if token.RefreshToken != "" {
		r.writePlain("Refresh token: present\n")
	}
	if !token.Expiry.IsZero() {
		if token.Expiry.After(time.Now()) {
			r.writePlain("Access token expires: %s\n", token.Expiry.Format(time.RFC1123))
		} else {
			r.writePlain("Access token expired: %s (will refresh on next use)\n", token.Expiry.Format(time.RFC1123))
		}
	}

	return nil
}

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage streaming platform authentication",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize with the streaming platform via OAuth2",
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show current authentication state",
				Action: r.AuthStatus,
			},
		},
	}
}
