// Package screenclient drives screens hosted by a running astrofm server.
package screenclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/orchestrator"
	"github.com/kapu/astrofm-go/internal/util"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

const serviceName = "astrofm-server"

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// OpenScreen activates a screen on the server.
func (c *Client) OpenScreen(ctx context.Context, screen string) (*Session, error) {
	var session Session
	if err := c.doRequest(ctx, http.MethodPost, "/screens/"+url.PathEscape(screen), nil, &session); err != nil {
		c.logger.Error("Failed to open screen", zap.String("screen", screen), zap.Error(err))
		return nil, err
	}
	return &session, nil
}

func (c *Client) Snapshot(ctx context.Context, sessionID string) (*orchestrator.Snapshot, error) {
	var snap orchestrator.Snapshot
	if err := c.doRequest(ctx, http.MethodGet, sessionPath(sessionID, ""), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Retry(ctx context.Context, sessionID, slice string) error {
	return c.doRequest(ctx, http.MethodPost, sessionPath(sessionID, "/slices/"+url.PathEscape(slice)+"/retry"), nil, nil)
}

func (c *Client) Refresh(ctx context.Context, sessionID, slice string) error {
	return c.doRequest(ctx, http.MethodPost, sessionPath(sessionID, "/slices/"+url.PathEscape(slice)+"/refresh"), nil, nil)
}

func (c *Client) Generate(ctx context.Context, sessionID string) error {
	return c.doRequest(ctx, http.MethodPost, sessionPath(sessionID, "/generate"), nil, nil)
}

func (c *Client) Save(ctx context.Context, sessionID string) error {
	return c.doRequest(ctx, http.MethodPost, sessionPath(sessionID, "/save"), nil, nil)
}

// CloseSession tears the screen down on the server.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	if err := c.doRequest(ctx, http.MethodDelete, sessionPath(sessionID, ""), nil, nil); err != nil {
		c.logger.Warn("Failed to close session", zap.String("session", sessionID), zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) bool {
	return c.doRequest(ctx, http.MethodGet, "/healthz", nil, nil) == nil
}

// StreamURL is the WebSocket endpoint for a session's snapshots.
func (c *Client) StreamURL(sessionID string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + sessionPath(sessionID, "/ws")
}

func sessionPath(id, suffix string) string {
	return "/sessions/" + url.PathEscape(id) + suffix
}

func (c *Client) doRequest(ctx context.Context, method, path string, reqBody, respBody any) error {
	operation := method + " " + path

	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransportError("astrofm server unreachable", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, int64(constants.APIConfig.MaxErrorBodyLen)))
		var body errorBody
		if json.Unmarshal(bodyBytes, &body) == nil && body.Error != "" {
			return apperrors.NewServiceError(body.Error, serviceName, operation, resp.StatusCode)
		}
		return apperrors.NewServiceError(
			fmt.Sprintf("astrofm server error: %s %s", resp.Status, util.TruncateString(string(bodyBytes), 120)),
			serviceName, operation, resp.StatusCode,
		)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return apperrors.NewTransportError("undecodable server response", operation, err)
		}
	}
	return nil
}
