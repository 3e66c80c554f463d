package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linkmesh/linkmesh/internal/config"
	"github.com/linkmesh/linkmesh/internal/logging"
	"github.com/linkmesh/linkmesh/internal/models"
)

// StreamDialer opens streaming status channels against the engine's
// /ws/{job_id} endpoint.
type StreamDialer struct {
	baseURL string
	dialer  *websocket.Dialer
	log     *logging.Logger
}

// NewStreamDialer creates a dialer from the engine configuration.
func NewStreamDialer(cfg *config.Config, log *logging.Logger) *StreamDialer {
	return &StreamDialer{
		baseURL: strings.TrimSuffix(cfg.APIBaseURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// wsURL converts the HTTP base URL into the ws(s) URL for one job.
func (d *StreamDialer) wsURL(jobID string) (string, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid engine base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q for streaming", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/" + url.PathEscape(jobID)
	return u.String(), nil
}

// Dial opens the streaming channel for one job.
func (d *StreamDialer) Dial(ctx context.Context, jobID string) (*StreamChannel, error) {
	target, err := d.wsURL(jobID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("streaming channel open failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("streaming channel open failed: %w", err)
	}
	d.log.Debug().Str("job_id", jobID).Msg("Streaming channel open")

	return &StreamChannel{conn: conn}, nil
}

// StreamChannel is one open WebSocket carrying status frames for a job.
// Receive may run concurrently with Ping; the connection supports one reader
// and one writer.
type StreamChannel struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// Receive blocks until the next status frame arrives. A malformed frame is
// reported as a *models.ProtocolError and the channel stays usable; any other
// error means the transport is gone.
func (ch *StreamChannel) Receive() (models.StatusFrame, error) {
	_, data, err := ch.conn.ReadMessage()
	if err != nil {
		return models.StatusFrame{}, fmt.Errorf("streaming channel closed: %w", err)
	}
	frame, err := models.DecodeStatusFrame(data)
	if err != nil {
		return models.StatusFrame{}, &models.ProtocolError{Err: err}
	}
	return frame, nil
}

// Ping sends the keepalive message. The engine answers a text ping with the
// job's current status frame, which arrives through Receive.
func (ch *StreamChannel) Ping() error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	ch.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := ch.conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}
	return nil
}

// Close shuts the channel down. Safe to call more than once.
func (ch *StreamChannel) Close() error {
	ch.closeMu.Lock()
	defer ch.closeMu.Unlock()

	if ch.closed {
		return nil
	}
	ch.closed = true

	ch.writeMu.Lock()
	ch.conn.SetWriteDeadline(time.Now().Add(time.Second))
	ch.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ch.writeMu.Unlock()

	return ch.conn.Close()
}
