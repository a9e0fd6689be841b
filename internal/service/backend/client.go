// Package backend is the JSON-over-HTTP client for the Astro.FM backend that
// computes charts, alignment scores, readings and playlists.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/util"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

const serviceName = "astrofm-backend"

// Endpoint paths, relative to the configured base URL.
const (
	pathDailyNarrative   = "/v1/readings/daily"
	pathDailyAlignment   = "/v1/alignment/daily"
	pathSonification     = "/v1/sonification"
	pathSeasonalGuidance = "/v1/guidance/seasonal"
	pathCuratedPlaylist  = "/v1/playlists/curated"
	pathGeneratePlaylist = "/v1/playlists/generate"
	pathHealth           = "/healthz"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// Now dates daily and monthly requests; it should share the cache's zone.
	Now func() time.Time
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *util.CircuitBreaker
	now        func() time.Time
	logger     *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.APIConfig.BackendTimeout
	}
	return NewClientWithHTTP(cfg, &http.Client{Timeout: timeout}, logger)
}

func NewClientWithHTTP(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		now:        cfg.Now,
		logger:     logger,
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.breaker = util.NewCircuitBreaker(util.CircuitBreakerConfig{
		Name:             serviceName,
		FailureThreshold: constants.CircuitBreakerConfig.FailureThreshold,
		ResetTimeout:     constants.CircuitBreakerConfig.ResetTimeout,
	}, logger)
	return c
}

type profileRequest struct {
	Profile domain.Profile `json:"profile"`
	Date    string         `json:"date,omitempty"`
}

type curatedRequest struct {
	Profile domain.Profile `json:"profile"`
	Genres  []string       `json:"genres"`
	Month   string         `json:"month"`
}

func (c *Client) FetchDailyNarrative(ctx context.Context, p domain.Profile) (*domain.DailyNarrative, error) {
	var out domain.DailyNarrative
	req := profileRequest{Profile: p, Date: c.now().Format(time.DateOnly)}
	if err := c.doRequest(ctx, http.MethodPost, pathDailyNarrative, req, &out); err != nil {
		return nil, err
	}
	if out.Generator == "" {
		out.Generator = serviceName
	}
	return &out, nil
}

func (c *Client) FetchDailyAlignment(ctx context.Context, p domain.Profile) (*domain.Alignment, error) {
	var out domain.Alignment
	req := profileRequest{Profile: p, Date: c.now().Format(time.DateOnly)}
	if err := c.doRequest(ctx, http.MethodPost, pathDailyAlignment, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchUserSonification(ctx context.Context, p domain.Profile) (*domain.Sonification, error) {
	var out domain.Sonification
	if err := c.doRequest(ctx, http.MethodPost, pathSonification, profileRequest{Profile: p}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchSeasonalGuidance(ctx context.Context, p domain.Profile) (*domain.SeasonalGuidance, error) {
	var out domain.SeasonalGuidance
	req := profileRequest{Profile: p, Date: c.now().Format(time.DateOnly)}
	if err := c.doRequest(ctx, http.MethodPost, pathSeasonalGuidance, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchCuratedPlaylist(ctx context.Context, p domain.Profile, genres []string) (*domain.Playlist, error) {
	var out domain.Playlist
	req := curatedRequest{Profile: p, Genres: genres, Month: c.now().Format("2006-01")}
	if err := c.doRequest(ctx, http.MethodPost, pathCuratedPlaylist, req, &out); err != nil {
		return nil, err
	}
	fillMood(&out)
	return &out, nil
}

func (c *Client) GeneratePlaylist(ctx context.Context, req domain.PlaylistRequest) (*domain.Playlist, error) {
	var out domain.Playlist
	if err := c.doRequest(ctx, http.MethodPost, pathGeneratePlaylist, req, &out); err != nil {
		return nil, err
	}
	fillMood(&out)
	return &out, nil
}

// Ping reports whether the backend answers its health endpoint.
func (c *Client) Ping(ctx context.Context) bool {
	return c.doRequest(ctx, http.MethodGet, pathHealth, nil, nil) == nil
}

func (c *Client) CircuitStatus() util.CircuitBreakerStatus {
	return c.breaker.GetStatus()
}

func fillMood(p *domain.Playlist) {
	if p.Mood == "" && len(p.Tracks) > 0 {
		p.Mood = p.AverageMood().Name
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest maps every failure onto the two remote error kinds: the backend
// saying no (ServiceError) or not getting a usable answer (TransportError).
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody any) error {
	url := c.baseURL + path
	operation := method + " " + path

	if !c.breaker.CanExecute() {
		c.logger.Warn("Backend circuit open, failing fast", zap.String("operation", operation))
		return apperrors.NewTransportError("backend circuit open", operation, nil)
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return apperrors.NewAppError("failed to marshal request", apperrors.CodeAppError, 400, map[string]any{
				"url": url,
			}).WithCause(err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return apperrors.NewTransportError("failed to create request", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure(0)
		c.logger.Warn("Backend request failed", zap.String("operation", operation), zap.Error(err))
		return apperrors.NewTransportError("request failed", operation, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Backend response",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, int64(constants.APIConfig.MaxErrorBodyLen)))
		return c.mapStatus(operation, resp.StatusCode, bodyBytes)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			c.breaker.RecordFailure(0)
			return apperrors.NewTransportError("malformed response", operation, err)
		}
	}

	c.breaker.RecordSuccess()
	return nil
}

func (c *Client) mapStatus(operation string, status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		c.breaker.RecordFailure(constants.CircuitBreakerConfig.RateLimitTimeout)
	case status >= 500:
		c.breaker.RecordFailure(0)
	default:
		// A 4xx is a considered answer; the backend is healthy.
		c.breaker.RecordSuccess()
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		msg := eb.Error
		if msg == "" {
			msg = eb.Message
		}
		if msg != "" {
			c.logger.Info("Backend rejected request",
				zap.String("operation", operation),
				zap.Int("status", status),
				zap.String("message", msg),
			)
			return apperrors.NewServiceError(msg, serviceName, operation, status)
		}
	}

	c.logger.Warn("Backend returned unexpected status",
		zap.String("operation", operation),
		zap.Int("status", status),
	)
	return apperrors.NewTransportError(fmt.Sprintf("backend status %d", status), operation, nil)
}
