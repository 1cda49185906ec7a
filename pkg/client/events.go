package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a row change pushed on the change feed.
type Event struct {
	Type     string    `json:"type"`
	Resource string    `json:"resource"`
	ID       string    `json:"id,omitempty"`
	User     string    `json:"user,omitempty"`
	At       time.Time `json:"at"`
}

// Watch follows the change feed of topics, or of every readable resource
// when topics is empty, calling fn for each event. It returns when ctx is
// done, the server closes the feed or fn fails.
func (c *Client) Watch(ctx context.Context, topics []string, fn func(Event) error) error {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/events"
	if len(topics) > 0 {
		u.RawQuery = url.Values{"topics": {strings.Join(topics, ",")}}.Encode()
	}

	header := http.Header{}
	if tok := c.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return fmt.Errorf("open change feed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("read change feed: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
