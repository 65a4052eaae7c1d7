package statsd

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/weiihann/sirun/metric"
)

// Client sends gauges to a metric channel listener on the loopback
// interface.
type Client struct {
	conn net.Conn
}

// Dial connects a Client to 127.0.0.1:port.
func Dial(port int) (*Client, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial statsd %s: %w", addr, err)
	}

	return &Client{conn: conn}, nil
}

// Gauge sends a single gauge in its own datagram.
func (c *Client) Gauge(key string, value float64) error {
	if _, err := c.conn.Write([]byte(FormatGauge(key, value))); err != nil {
		return fmt.Errorf("send gauge %s: %w", key, err)
	}

	return nil
}

// Send writes every numeric entry of m as a gauge, all in one datagram so
// the receiver sees them together. Non-numeric entries are ignored.
func (c *Client) Send(m *metric.Map) error {
	var b strings.Builder

	m.Range(func(k string, v metric.Value) bool {
		if n, ok := v.AsNumber(); ok {
			b.WriteString(FormatGauge(k, n))
		}

		return true
	})

	if b.Len() == 0 {
		return nil
	}

	if _, err := c.conn.Write([]byte(b.String())); err != nil {
		return fmt.Errorf("send metrics: %w", err)
	}

	return nil
}

// Close releases the client's socket.
func (c *Client) Close() error {
	return c.conn.Close()
}
