package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
)

// newAuthenticatedClient builds an OAuth2 HTTP client from the installed-app
// credentials file. When no token is stored yet it runs the interactive
// authorization prompt once; refreshed tokens are persisted transparently.
func newAuthenticatedClient(ctx context.Context, credentialsFile, tokenFile string, logger *slog.Logger) (*http.Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	conf, err := google.ConfigFromJSON(data, gmailapi.GmailReadonlyScope, gmailapi.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		logger.Info("no stored Gmail token, starting authorization", "token_file", tokenFile)
		token, err = tokenFromPrompt(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, token); err != nil {
			logger.Warn("failed to save Gmail token", "error", err)
		}
	}

	src := &savingTokenSource{
		src:    conf.TokenSource(ctx, token),
		path:   tokenFile,
		logger: logger,
		last:   token,
	}
	return oauth2.NewClient(ctx, src), nil
}

// savingTokenSource persists tokens whenever the underlying source refreshes
// them, so the next run skips the authorization prompt.
type savingTokenSource struct {
	src    oauth2.TokenSource
	path   string
	logger *slog.Logger
	mu     sync.Mutex
	last   *oauth2.Token
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.AccessToken != token.AccessToken {
		s.last = token
		if err := saveToken(s.path, token); err != nil {
			s.logger.Warn("failed to save refreshed Gmail token", "error", err)
		} else {
			s.logger.Debug("saved refreshed Gmail token", "expires_at", token.Expiry)
		}
	}
	return token, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize token: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func tokenFromPrompt(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	authURL := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Open the following link in your browser, then paste the authorization code:\n%s\n> ", authURL)

	var code string
	if _, err := fmt.Scan(&code); err != nil {
		return nil, fmt.Errorf("failed to read authorization code: %w", err)
	}

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}
