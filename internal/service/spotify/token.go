package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/service/storage"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// errNoToken means the user never connected (or disconnected).
var errNoToken = errors.New("spotify: no stored token")

func (c *Client) loadToken(ctx context.Context) (*oauth2.Token, error) {
	data, err := c.kv.Load(ctx, constants.StorageKeys.SpotifyToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("load spotify token: %w", err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("decode spotify token: %w", err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, errNoToken
	}
	return token, nil
}

func (c *Client) saveToken(ctx context.Context, token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return c.kv.Save(ctx, constants.StorageKeys.SpotifyToken, data)
}

// persistingTokenSource writes refreshed tokens back to storage so the next
// process start does not need to refresh again.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	client *Client

	mu   sync.Mutex
	last string
}

func newPersistingTokenSource(c *Client, base oauth2.TokenSource, initial *oauth2.Token) *persistingTokenSource {
	return &persistingTokenSource{base: base, client: c, last: initial.AccessToken}
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := token.AccessToken != s.last
	s.last = token.AccessToken
	s.mu.Unlock()

	if changed {
		if err := s.client.saveToken(context.Background(), token); err != nil {
			s.client.logger.Warn("Failed to persist refreshed Spotify token", zap.Error(err))
		} else {
			s.client.logger.Debug("Spotify token refreshed")
		}
	}
	return token, nil
}
