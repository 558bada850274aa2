package natsbus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Client is the controllers' connection to the bus. Controllers only
// publish; the web server subscribes to events.> and relays every
// Event envelope to websocket clients.
type Client struct {
	conn *nats.Conn
}

var _ Publisher = (*Client)(nil)

func NewClient(bus *Bus) (*Client, error) {
	conn, err := nats.Connect(bus.ClientURL(), nats.Name("ghostgate"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Publish sends raw bytes. Dashboard events go through PublishJSON.
func (c *Client) Publish(topic string, data []byte) error {
	return c.conn.Publish(topic, data)
}

// PublishJSON encodes v, normally an Event from NewEvent, and sends it
// on topic. Topics come from the Topic* helpers.
func (c *Client) PublishJSON(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}
	return c.conn.Publish(topic, data)
}

// Subscribe registers handler for topic, which may use wildcards such as
// events.>. Each message body is one JSON Event.
func (c *Client) Subscribe(topic string, handler func(msg *nats.Msg)) (*nats.Subscription, error) {
	return c.conn.Subscribe(topic, handler)
}

// Flush waits until the server has processed everything published so
// far. Tests use it before asserting on subscriptions.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

func (c *Client) Close() {
	c.conn.Close()
}
