package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to complete the websocket handshake.
	handshakeTimeout = 10 * time.Second

	// Time allowed to write the REQ frame to the relay.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from a relay.
	maxMessageSize = 512 * 1024 // 512KB
)

// Outcome classifies how a single relay poll resolved.
type Outcome string

const (
	// OutcomeSuccess means the relay signalled EOSE; the count is complete.
	OutcomeSuccess Outcome = "success"

	// OutcomeTimeout means the per-poll deadline expired before EOSE. The
	// partial count is still usable: better to notify on a possible match
	// than to miss one.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeError means the connection failed to open or dropped. The
	// relay contributes nothing to the cycle.
	OutcomeError Outcome = "connection-error"
)

// PollResult is the per-relay outcome of one poll cycle.
type PollResult struct {
	Endpoint string
	Events   int
	Outcome  Outcome
	Err      error
}

// Poller is the interface the scheduler polls relays through. *Client is the
// production implementation.
type Poller interface {
	Poll(ctx context.Context, endpoint string, f Filter) PollResult
}

// Client polls relays one-shot: connect, subscribe, count stored events until
// EOSE or the deadline, disconnect. Holding no idle connections keeps the
// failure model simple; a relay that was unreachable this cycle is simply
// dialed again next cycle.
type Client struct {
	dialer  *websocket.Dialer
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a poller with the given per-poll timeout.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		timeout: timeout,
		logger:  logger,
	}
}

// Poll opens a connection to endpoint, sends one subscription request and
// counts qualifying event deliveries until the relay signals EOSE or the
// per-poll deadline expires. Failures never propagate as errors: every exit
// path resolves to a PollResult and closes the connection.
func (c *Client) Poll(ctx context.Context, endpoint string, f Filter) PollResult {
	res := PollResult{Endpoint: endpoint, Outcome: OutcomeError}
	deadline := time.Now().Add(c.timeout)

	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		c.logger.Warn("relay dial failed", zap.String("relay", endpoint), zap.Error(err))
		res.Err = fmt.Errorf("dialing relay: %w", err)
		return res
	}
	defer func() { _ = conn.Close() }()

	// A fresh subscription id per poll avoids stale subscription state on
	// relays that remember ids across connections.
	subID := "wake-" + uuid.NewString()[:8]

	req, err := encodeReq(subID, f)
	if err != nil {
		res.Err = fmt.Errorf("encoding subscription request: %w", err)
		return res
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		c.logger.Warn("relay subscribe failed", zap.String("relay", endpoint), zap.Error(err))
		res.Err = fmt.Errorf("sending subscription request: %w", err)
		return res
	}

	c.logger.Debug("subscribed",
		zap.String("relay", endpoint),
		zap.String("subID", subID),
		zap.Int64("since", f.Since),
	)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(deadline)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				c.logger.Debug("relay poll deadline reached",
					zap.String("relay", endpoint),
					zap.Int("partialEvents", res.Events),
				)
				res.Outcome = OutcomeTimeout
				return res
			}
			c.logger.Warn("relay read failed", zap.String("relay", endpoint), zap.Error(err))
			res.Err = fmt.Errorf("reading from relay: %w", err)
			return res
		}

		fr, err := decodeFrame(data)
		if err != nil {
			// Malformed frames are skipped, never fatal.
			c.logger.Debug("skipping malformed frame", zap.String("relay", endpoint), zap.Error(err))
			continue
		}

		switch fr.Type {
		case frameEvent:
			if fr.SubID != subID || fr.Event == nil {
				continue
			}
			if !f.matchesKind(fr.Event.Kind) {
				continue
			}
			res.Events++
			c.logger.Debug("qualifying event",
				zap.String("relay", endpoint),
				zap.String("eventID", fr.Event.ID),
				zap.Int64("createdAt", fr.Event.CreatedAt),
			)

		case frameEOSE:
			if fr.SubID != subID {
				continue
			}
			res.Outcome = OutcomeSuccess
			return res

		case frameNotice:
			c.logger.Debug("relay notice", zap.String("relay", endpoint))
		}
	}
}

// isTimeout reports whether a read error was caused by the poll deadline
// rather than a broken connection.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
