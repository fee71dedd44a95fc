// Package mqtt wraps the paho client with the small surface the gateway and
// the ingest subscriber need.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/url"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"signage-control-backend/config"
)

// Handler receives one inbound message.
type Handler func(topic string, payload []byte)

// ClientAPI is the minimal surface area the backend needs.
// It enables unit testing without a live broker.
type ClientAPI interface {
	Subscribe(topic string, cb Handler) error
	Publish(topic string, payload []byte) error
	Close()
}

type Client struct {
	cli     paho.Client
	timeout time.Duration
}

// New connects to the broker described by cfg.
func New(cfg config.MQTTConfig, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid mqtt broker url %q: %w", cfg.BrokerURL, err)
	}
	opts := paho.NewClientOptions()
	server := u.Host
	switch u.Scheme {
	case "mqtt", "tcp":
		server = "tcp://" + server
	case "ssl", "tls", "mqtts":
		server = "ssl://" + server
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	case "ws", "wss":
		server = u.Scheme + "://" + server + u.Path
	}
	opts.AddBroker(server)
	opts.SetClientID(cfg.ClientID + "-" + time.Now().Format("150405.000"))
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(c paho.Client) { log.Printf("mqtt connected to %s", server) }
	opts.OnConnectionLost = func(c paho.Client, err error) { log.Printf("mqtt connection lost: %v", err) }
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}

	cli := paho.NewClient(opts)
	if t := cli.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", t.Error())
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{cli: cli, timeout: timeout}, nil
}

func (c *Client) Subscribe(topic string, cb Handler) error {
	t := c.cli.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		cb(m.Topic(), m.Payload())
	})
	if err := c.wait(t); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	log.Printf("mqtt subscribed to %s", topic)
	return nil
}

func (c *Client) Publish(topic string, payload []byte) error {
	t := c.cli.Publish(topic, 1, false, payload)
	if err := c.wait(t); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (c *Client) Close() {
	c.cli.Disconnect(250)
}

func (c *Client) wait(t paho.Token) error {
	if !t.WaitTimeout(c.timeout) {
		return fmt.Errorf("timed out after %s", c.timeout)
	}
	return t.Error()
}
