package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"quacker/backend/internal/models"
	"quacker/backend/pkg/logger"
	"quacker/backend/pkg/ws"

	"github.com/gorilla/websocket"
)

// ClientOptions configures a Client
type ClientOptions struct {
	Limit     int
	Interval  time.Duration
	OnNewer   func([]models.Message)
	OnOlder   func([]models.Message)
	NewTicker TickerFactory
	Logger    *logger.Logger
}

// Client is one chat participant: an HTTP session, its feed window and
// the poll loop keeping that window fresh.
type Client struct {
	API     *HTTPClient
	Manager *Manager
	Poller  *Poller
	log     *logger.Logger
}

// NewClient wires a manager and a poller around api
func NewClient(api *HTTPClient, opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = logger.GetGlobal()
	}
	m := NewManager(api, Options{Limit: opts.Limit, OnNewer: opts.OnNewer, OnOlder: opts.OnOlder})
	return &Client{
		API:     api,
		Manager: m,
		Poller: NewPoller(m, PollerOptions{
			Interval:  opts.Interval,
			NewTicker: opts.NewTicker,
			Logger:    opts.Logger,
		}),
		log: opts.Logger.WithComponent("feed"),
	}
}

// Login starts a session
func (c *Client) Login(ctx context.Context, nickname string) (string, error) {
	return c.API.Login(ctx, nickname)
}

// Session returns the nickname of the current session
func (c *Client) Session(ctx context.Context) (string, error) {
	return c.API.Session(ctx)
}

// Post sends body and then loads newer messages, so the post shows up
// through the same path as everyone else's. If a poll is already running
// the poller is asked to go again once it is done.
func (c *Client) Post(ctx context.Context, body string) error {
	if _, err := c.API.Post(ctx, body); err != nil {
		return err
	}
	_, ran, err := c.Manager.LoadNewer(ctx)
	if !ran {
		c.Poller.Trigger()
	}
	return err
}

// LoadMore appends the next page of history. It returns an empty batch
// once the start of the log has been reached.
func (c *Client) LoadMore(ctx context.Context) ([]models.Message, error) {
	batch, _, err := c.Manager.LoadOlder(ctx)
	return batch, err
}

// Run polls until ctx is cancelled
func (c *Client) Run(ctx context.Context) {
	c.Poller.Run(ctx)
}

// Watch listens for post notifications and triggers a poll for each one
// past the window head. It returns when ctx is cancelled or the socket
// fails; polling keeps working either way.
func (c *Client) Watch(ctx context.Context) error {
	conn, err := c.API.DialNotifications(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var ev ws.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Debug("ignoring notification", "error", err.Error())
			continue
		}
		if ev.Type == ws.EventMessagePosted && ev.ID > c.Manager.Newest() {
			c.Poller.Trigger()
		}
	}
}

// IsUnauthenticated reports whether err means the session is gone
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
