package avatar

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/airis/internal/reliability"
)

const (
	apiName    = "VTubeStudioPublicAPI"
	apiVersion = "1.0"

	// MouthOpen is the standard parameter driven while speaking.
	MouthOpen = "MouthOpen"
)

// WSConfig points at a VTube-Studio-style websocket plugin API.
type WSConfig struct {
	URL         string
	AuthToken   string
	PluginName  string
	DialTimeout time.Duration
}

// WSController sends SetParameterValue requests over a websocket. The
// connection is dialed lazily and redialed after any write or read error.
type WSController struct {
	cfg    WSConfig
	logger *log.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	authenticated bool
	dialFailures  int
	nextDialAt    time.Time
}

func NewWSController(cfg WSConfig, logger *log.Logger) *WSController {
	if cfg.PluginName == "" {
		cfg.PluginName = "airis"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	return &WSController{cfg: cfg, logger: logger}
}

type wsRequest struct {
	APIName     string `json:"apiName"`
	APIVersion  string `json:"apiVersion"`
	RequestID   string `json:"requestID"`
	MessageType string `json:"messageType"`
	Data        any    `json:"data,omitempty"`
}

type wsResponse struct {
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

func (c *WSController) SpeakingStarted(ctx context.Context) {
	if err := c.SetParameter(ctx, MouthOpen, 1); err != nil {
		c.logger.Warn("avatar speaking-start update failed", "err", err)
	}
}

func (c *WSController) SpeakingStopped(ctx context.Context) {
	if err := c.SetParameter(ctx, MouthOpen, 0); err != nil {
		c.logger.Warn("avatar speaking-stop update failed", "err", err)
	}
}

// SetParameter injects a parameter value into the renderer. A failed send
// drops the connection so the next call redials.
func (c *WSController) SetParameter(ctx context.Context, name string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnLocked(ctx); err != nil {
		return err
	}
	req := wsRequest{
		APIName:     apiName,
		APIVersion:  apiVersion,
		RequestID:   uuid.NewString(),
		MessageType: "InjectParameterDataRequest",
		Data: map[string]any{
			"faceFound": true,
			"mode":      "set",
			"parameterValues": []map[string]any{
				{"id": name, "value": value},
			},
		},
	}
	if err := c.conn.WriteJSON(req); err != nil {
		c.dropLocked()
		return fmt.Errorf("write parameter %s: %w", name, err)
	}
	return nil
}

// Close releases the connection if one is open.
func (c *WSController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.authenticated = false
	return err
}

func (c *WSController) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil && c.authenticated {
		return nil
	}
	if !c.nextDialAt.IsZero() && time.Now().Before(c.nextDialAt) {
		return fmt.Errorf("avatar redial suppressed until %s", c.nextDialAt.Format(time.RFC3339))
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		c.backoffLocked()
		return fmt.Errorf("dial avatar websocket: %w", err)
	}
	c.conn = conn
	c.authenticated = false

	if err := c.authenticateLocked(); err != nil {
		c.dropLocked()
		c.backoffLocked()
		return err
	}
	c.authenticated = true
	c.dialFailures = 0
	c.nextDialAt = time.Time{}
	return nil
}

// backoffLocked spaces out dial attempts so a dead renderer endpoint does not
// get hammered on every playback transition.
func (c *WSController) backoffLocked() {
	c.dialFailures++
	c.nextDialAt = time.Now().Add(reliability.ExponentialBackoff(c.dialFailures, time.Second, 30*time.Second))
}

func (c *WSController) authenticateLocked() error {
	req := wsRequest{
		APIName:     apiName,
		APIVersion:  apiVersion,
		RequestID:   uuid.NewString(),
		MessageType: "AuthenticationRequest",
		Data: map[string]any{
			"pluginName":          c.cfg.PluginName,
			"pluginDeveloper":     c.cfg.PluginName,
			"authenticationToken": c.cfg.AuthToken,
		},
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send auth request: %w", err)
	}
	var resp wsResponse
	if err := c.conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	if resp.MessageType == "APIError" {
		return fmt.Errorf("avatar auth rejected: %s", string(resp.Data))
	}
	var data struct {
		Authenticated bool   `json:"authenticated"`
		Reason        string `json:"reason"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	if !data.Authenticated {
		return fmt.Errorf("avatar auth rejected: %s", data.Reason)
	}
	return nil
}

func (c *WSController) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.authenticated = false
}
