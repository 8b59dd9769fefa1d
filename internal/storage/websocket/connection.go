package websocket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/wytcherly/foreman/pkg/streaming"
)

const (
	outboxSize = 10_000
	ackChSize  = 16
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 2 / 5
	ackTimeout = 10 * time.Second
)

// link keeps one websocket to the collector open for the life of the
// backend. A single supervisor goroutine owns the socket: it serves
// writes and redials after a failure. After a redial it first resends the
// greeting (the running session's start message) so the collector can
// resume the session, unless the greeting has not gone out yet.
type link struct {
	url    string
	secret string
	logger *slog.Logger

	// first redial delay, doubled up to maxBackoff
	backoff time.Duration

	outbox chan []byte
	acks   chan streaming.AckMessage
	done   chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	greeting []byte
	greeted  bool   // greeting written on some socket
	retry    []byte // message whose write failed, resent after redial
	stopped  chan struct{}

	dropped atomic.Uint64
}

func newLink(rawURL, secret string, logger *slog.Logger) *link {
	return &link{
		url:     rawURL,
		secret:  secret,
		logger:  logger,
		backoff: minBackoff,
		outbox:  make(chan []byte, outboxSize),
		acks:    make(chan streaming.AckMessage, ackChSize),
		done:    make(chan struct{}),
	}
}

// open dials once and starts the supervisor. A failed first dial is
// returned to the caller rather than retried.
func (l *link) open() error {
	conn, err := l.dial()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.stopped = make(chan struct{})
	l.mu.Unlock()
	go l.run(conn)
	return nil
}

func (l *link) dial() (*ws.Conn, error) {
	u, err := url.Parse(l.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", l.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (l *link) closing() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *link) run(conn *ws.Conn) {
	defer close(l.stopped)
	for redialed := false; conn != nil; redialed = true {
		err := l.serve(conn, redialed)
		if l.closing() {
			return
		}
		l.logger.Warn("Collector link lost", "error", err)
		conn = l.redial()
	}
}

// redial retries with exponential backoff until it connects or the link
// is closed, in which case it returns nil.
func (l *link) redial() *ws.Conn {
	backoff := l.backoff
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(backoff)
		select {
		case <-l.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := l.dial()
		if err == nil {
			l.logger.Info("Collector link restored", "attempt", attempt)
			return conn
		}
		l.logger.Warn("Collector redial failed", "attempt", attempt, "backoff", backoff, "error", err)
		backoff = min(backoff*2, maxBackoff)
	}
}

// serve owns conn until it fails or the link closes.
func (l *link) serve(conn *ws.Conn, redialed bool) error {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	readErr := make(chan error, 1)
	go l.readAcks(conn, readErr)

	l.mu.Lock()
	var greeting []byte
	if redialed && l.greeted {
		greeting = l.greeting
	}
	retry := l.retry
	l.retry = nil
	l.mu.Unlock()
	for _, data := range [][]byte{greeting, retry} {
		if data == nil {
			continue
		}
		if err := l.write(conn, data); err != nil {
			l.keepForRetry(retry)
			return err
		}
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-l.done:
			l.flush(conn)
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil
		case data := <-l.outbox:
			if err := l.write(conn, data); err != nil {
				l.keepForRetry(data)
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case err := <-readErr:
			return err
		}
	}
}

func (l *link) keepForRetry(data []byte) {
	if data == nil {
		return
	}
	l.mu.Lock()
	l.retry = data
	l.mu.Unlock()
}

func (l *link) write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	l.mu.Lock()
	if !l.greeted && len(data) == len(l.greeting) && bytes.Equal(data, l.greeting) {
		l.greeted = true
	}
	l.mu.Unlock()
	return nil
}

// flush writes whatever is still queued when the link closes.
func (l *link) flush(conn *ws.Conn) {
	for {
		select {
		case data := <-l.outbox:
			if err := l.write(conn, data); err != nil {
				l.logger.Warn("Dropping queued messages on close", "error", err, "queued", len(l.outbox)+1)
				return
			}
		default:
			return
		}
	}
}

// readAcks forwards acks until the socket fails. The collector sends
// nothing else we act on.
func (l *link) readAcks(conn *ws.Conn, errc chan<- error) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			l.logger.Debug("Ignoring collector message", "raw", string(message))
			continue
		}
		select {
		case l.acks <- ack:
		default:
			l.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// setGreeting sets the message replayed after every reconnect; nil clears it.
func (l *link) setGreeting(data []byte) {
	l.mu.Lock()
	l.greeting = data
	l.greeted = false
	l.mu.Unlock()
}

func (l *link) currentGreeting() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.greeting
}

// send queues data for the supervisor. It never blocks; a full outbox
// drops the message.
func (l *link) send(data []byte) {
	select {
	case l.outbox <- data:
	default:
		if n := l.dropped.Add(1); n == 1 || n%1000 == 0 {
			l.logger.Warn("Collector outbox full, dropping messages", "dropped", n)
		}
	}
}

// await sends data and blocks until the collector acks ackFor.
func (l *link) await(data []byte, ackFor string, timeout time.Duration) error {
	if l.closing() {
		return fmt.Errorf("link closed before sending %q", ackFor)
	}
	l.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-l.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-l.done:
			return fmt.Errorf("link closed while waiting for ack of %q", ackFor)
		}
	}
}

// close flushes the outbox, sends a close frame and stops the supervisor.
func (l *link) close() error {
	l.closeOnce.Do(func() { close(l.done) })
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped != nil {
		<-stopped
	}
	return nil
}
