// Package spotify talks to the Spotify Web API on behalf of the connected
// user: connection status, saving playlists and opening them.
package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/service/storage"
	"github.com/kapu/astrofm-go/internal/util"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	spotifyauth "golang.org/x/oauth2/spotify"
)

const (
	serviceName       = "spotify"
	maxTracksPerBatch = 100

	msgSessionExpired = "Your Spotify session expired. Reconnect Spotify and try again."
	msgNotConnected   = "Connect Spotify to save playlists."
	msgNoTracks       = "There are no tracks to save yet."
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// BaseURL overrides the Web API root (tests).
	BaseURL string
	// HTTPClient is the transport used for API and token calls.
	HTTPClient *http.Client
}

type Client struct {
	oauth      *oauth2.Config
	baseURL    string
	httpClient *http.Client
	kv         storage.KV
	opener     Opener
	logger     *zap.Logger
}

func NewClient(cfg Config, kv storage.KV, opener Opener, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = constants.APIConfig.SpotifyBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.APIConfig.SpotifyTimeout}
	}
	if opener == nil {
		opener = BrowserOpener{}
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     spotifyauth.Endpoint,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		kv:         kv,
		opener:     opener,
		logger:     logger,
	}
}

// Configured reports whether OAuth credentials are present at all.
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthCodeURL is where the user grants access.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the callback code for a token and stores it.
func (c *Client) Exchange(ctx context.Context, code string) error {
	token, err := c.oauth.Exchange(c.tokenContext(ctx), code)
	if err != nil {
		return fmt.Errorf("unable to retrieve token: %w", err)
	}
	if err := c.saveToken(ctx, token); err != nil {
		return fmt.Errorf("unable to save token: %w", err)
	}
	c.logger.Info("Spotify connected")
	return nil
}

// Disconnect forgets the stored token.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := c.kv.Delete(ctx, constants.StorageKeys.SpotifyToken); err != nil {
		return fmt.Errorf("delete spotify token: %w", err)
	}
	c.logger.Info("Spotify disconnected")
	return nil
}

type meResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// FetchConnectionStatus never treats "not connected" as an error: no stored
// token, missing credentials and a rejected token all read as disconnected.
func (c *Client) FetchConnectionStatus(ctx context.Context) (domain.ConnectionState, error) {
	if !c.Configured() {
		return domain.ConnectionState{}, nil
	}

	me, err := c.me(ctx)
	switch {
	case errors.Is(err, errNoToken):
		return domain.ConnectionState{}, nil
	case isAuthExpired(err):
		c.logger.Info("Stored Spotify token rejected, treating as disconnected")
		return domain.ConnectionState{}, nil
	case err != nil:
		return domain.ConnectionState{}, err
	}

	name := me.DisplayName
	if name == "" {
		name = me.ID
	}
	return domain.ConnectionState{Connected: true, DisplayName: name}, nil
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

type createPlaylistResponse struct {
	ID           string `json:"id"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

// CreateRemotePlaylist creates a private playlist in the user's account and
// fills it in track order.
func (c *Client) CreateRemotePlaylist(ctx context.Context, tracks []domain.Track, name, description string) (*domain.PlaylistCreation, error) {
	const op = "create_playlist"

	uris := trackURIs(tracks)
	if len(uris) == 0 {
		return nil, apperrors.NewServiceError(msgNoTracks, serviceName, op, http.StatusBadRequest)
	}

	me, err := c.me(ctx)
	if errors.Is(err, errNoToken) {
		return nil, apperrors.NewServiceError(msgNotConnected, serviceName, op, http.StatusUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	hc, err := c.authedClient(ctx)
	if err != nil {
		return nil, err
	}

	var created createPlaylistResponse
	req := createPlaylistRequest{
		Name:        util.TruncateString(name, constants.StringLimits.PlaylistName),
		Description: util.TruncateString(description, constants.StringLimits.PlaylistDescription),
	}
	if err := c.doJSON(ctx, hc, http.MethodPost, "/users/"+url.PathEscape(me.ID)+"/playlists", req, &created); err != nil {
		return nil, err
	}

	for start := 0; start < len(uris); start += maxTracksPerBatch {
		end := min(start+maxTracksPerBatch, len(uris))
		batch := addTracksRequest{URIs: uris[start:end]}
		if err := c.doJSON(ctx, hc, http.MethodPost, "/playlists/"+url.PathEscape(created.ID)+"/tracks", batch, nil); err != nil {
			c.logger.Warn("Adding tracks failed after playlist was created",
				zap.String("playlist_id", created.ID),
				zap.Int("added", start),
				zap.Error(err),
			)
			return nil, err
		}
	}

	link := created.ExternalURLs.Spotify
	if link == "" {
		link = "https://open.spotify.com/playlist/" + created.ID
	}

	c.logger.Info("Spotify playlist created",
		zap.String("playlist_id", created.ID),
		zap.Int("tracks", len(uris)),
	)
	return &domain.PlaylistCreation{ID: created.ID, URL: link}, nil
}

func (c *Client) OpenExternal(ctx context.Context, link string) error {
	if link == "" {
		return apperrors.NewServiceError("Nothing to open yet.", serviceName, "open_external", http.StatusBadRequest)
	}
	if err := c.opener.Open(ctx, link); err != nil {
		c.logger.Warn("Failed to open link", zap.String("url", link), zap.Error(err))
		return apperrors.NewTransportError("failed to open link", "open_external", err)
	}
	return nil
}

func (c *Client) me(ctx context.Context) (*meResponse, error) {
	hc, err := c.authedClient(ctx)
	if err != nil {
		return nil, err
	}
	var me meResponse
	if err := c.doJSON(ctx, hc, http.MethodGet, "/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (c *Client) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// authedClient builds an HTTP client that attaches and refreshes the stored
// token. Token refreshes run on a background context so an abandoned call
// still persists the new token.
func (c *Client) authedClient(ctx context.Context) (*http.Client, error) {
	token, err := c.loadToken(ctx)
	if err != nil {
		return nil, err
	}
	base := c.oauth.TokenSource(c.tokenContext(context.Background()), token)
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: newPersistingTokenSource(c, base, token),
			Base:   c.httpClient.Transport,
		},
		Timeout: c.httpClient.Timeout,
	}, nil
}

type apiError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, path string, reqBody, respBody any) error {
	operation := method + " " + path

	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", operation, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return apperrors.NewTransportError("failed to create request", operation, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return apperrors.NewServiceError(msgSessionExpired, serviceName, operation, http.StatusUnauthorized)
		}
		return apperrors.NewTransportError("spotify request failed", operation, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Spotify response",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, int64(constants.APIConfig.MaxErrorBodyLen)))
		return mapStatus(operation, resp.StatusCode, body)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return apperrors.NewTransportError("malformed spotify response", operation, err)
		}
	}
	return nil
}

func mapStatus(operation string, status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return apperrors.NewServiceError(msgSessionExpired, serviceName, operation, status)
	}
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		return apperrors.NewServiceError(ae.Error.Message, serviceName, operation, status)
	}
	return apperrors.NewTransportError(fmt.Sprintf("spotify status %d", status), operation, nil)
}

func isAuthExpired(err error) bool {
	var se *apperrors.ServiceError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

func trackURIs(tracks []domain.Track) []string {
	uris := make([]string, 0, len(tracks))
	for _, t := range tracks {
		switch {
		case t.URI != "":
			uris = append(uris, t.URI)
		case t.ID != "":
			uris = append(uris, "spotify:track:"+t.ID)
		}
	}
	return uris
}
