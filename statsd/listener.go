package statsd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/weiihann/sirun/metric"
)

// ErrClosed is returned by Sync once the listener has stopped.
var ErrClosed = errors.New("statsd listener closed")

// syncPrefix starts the marker datagrams used by Sync. A NUL byte can never
// begin a metric key that a client would send.
var syncPrefix = []byte("\x00sirun-sync:")

const maxDatagram = 65535

// Listener receives statsd datagrams on a loopback UDP socket and buffers
// the parsed metrics until they are drained.
type Listener struct {
	conn   net.PacketConn
	logger *slog.Logger

	ready   chan struct{}
	done    chan struct{}
	started atomic.Bool
	seq     atomic.Uint64

	mu     sync.Mutex
	buf    *metric.Map
	synced uint64
	notify chan struct{}
}

// Listen binds a UDP socket on 127.0.0.1:port. Port 0 binds an ephemeral
// port, which Port reports afterwards.
func Listen(port int, logger *slog.Logger) (*Listener, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind statsd listener on %s: %w", addr, err)
	}

	l := &Listener{
		conn:   conn,
		logger: logger.With(slog.String("component", "statsd")),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		buf:    metric.NewMap(),
		notify: make(chan struct{}),
	}

	return l, nil
}

// Port returns the bound UDP port.
func (l *Listener) Port() int {
	return l.conn.LocalAddr().(*net.UDPAddr).Port
}

// Start launches the receive loop. It is safe to call more than once.
func (l *Listener) Start() {
	if l.started.Swap(true) {
		return
	}

	go l.serve()
}

// Ready is closed once the receive loop is running. Nothing that may emit
// metrics should be started before it is closed.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

func (l *Listener) serve() {
	defer close(l.done)

	l.logger.Debug("statsd listener ready", slog.Int("port", l.Port()))
	close(l.ready)

	packet := make([]byte, maxDatagram)

	for {
		n, _, err := l.conn.ReadFrom(packet)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.Error("statsd receive failed",
					slog.String("error", err.Error()),
				)
			}

			return
		}

		l.ingest(packet[:n])
	}
}

func (l *Listener) ingest(data []byte) {
	if seq, ok := parseSyncMarker(data); ok {
		l.mu.Lock()
		if seq > l.synced {
			l.synced = seq
		}
		l.broadcastLocked()
		l.mu.Unlock()

		return
	}

	metrics := Parse(data)

	l.mu.Lock()
	l.buf.Merge(metrics)
	l.broadcastLocked()
	l.mu.Unlock()
}

func (l *Listener) broadcastLocked() {
	close(l.notify)
	l.notify = make(chan struct{})
}

// Drain returns everything buffered since the previous Drain and leaves an
// empty buffer behind.
func (l *Listener) Drain() *metric.Map {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.buf
	l.buf = metric.NewMap()

	return out
}

// Sync sends a marker datagram to the listener's own socket and waits until
// the receive loop has consumed it. Datagrams queued on the socket before
// Sync was called are buffered by the time it returns.
func (l *Listener) Sync(ctx context.Context) error {
	select {
	case <-l.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	seq := l.seq.Add(1)

	conn, err := net.Dial("udp", l.conn.LocalAddr().String())
	if err != nil {
		return fmt.Errorf("dial statsd listener: %w", err)
	}
	defer conn.Close()

	marker := append(append([]byte{}, syncPrefix...), strconv.FormatUint(seq, 10)...)
	if _, err := conn.Write(marker); err != nil {
		return fmt.Errorf("send sync marker: %w", err)
	}

	for {
		l.mu.Lock()
		if l.synced >= seq {
			l.mu.Unlock()
			return nil
		}
		wait := l.notify
		l.mu.Unlock()

		select {
		case <-wait:
		case <-l.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the receive loop and releases the socket.
func (l *Listener) Close() error {
	err := l.conn.Close()

	if l.started.Load() {
		<-l.done
	}

	return err
}

func parseSyncMarker(data []byte) (uint64, bool) {
	rest, ok := bytes.CutPrefix(data, syncPrefix)
	if !ok {
		return 0, false
	}

	seq, err := strconv.ParseUint(string(rest), 10, 64)
	if err != nil {
		return 0, false
	}

	return seq, true
}
