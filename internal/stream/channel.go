package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/venuewire/xapi/internal/buffer"
	"github.com/venuewire/xapi/internal/transport"
	"github.com/venuewire/xapi/internal/wire"
)

// Errors
var (
	ErrDuplicateSubscription = errors.New("subscription already open")
	ErrStopped               = errors.New("stream channel stopped")
)

// keepAliveFeed is the reserved keepalive push; its records carry nothing.
const keepAliveFeed = "keepAlive"

// Config holds the channel's tunables.
type Config struct {
	// StreamSessionID authorizes control frames on this socket.
	StreamSessionID string

	// BufferCapacity is the per-subscription record limit.
	BufferCapacity int

	// PollInterval bounds each socket read; it doubles as the shutdown
	// check interval for the reader goroutine.
	PollInterval time.Duration
}

// Channel owns the stream socket and its subscriptions.
type Channel struct {
	cfg    Config
	conn   transport.Conn
	reader *wire.Scanner
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[string]*Subscription
	stopped bool
	unknown int64 // pushes dropped for lack of a matching subscription

	done chan struct{}
	wg   sync.WaitGroup

	// onFatal fires at most once, on a transport or protocol failure in
	// the reader. The session reacts by degrading.
	onFatal   func(error)
	fatalOnce sync.Once
}

// Subscription is a standing feed request and its record buffer.
type Subscription struct {
	name   string // control name, e.g. "TickPrices"
	feed   string // pushed command name, e.g. "tickPrices"
	symbol string
	params map[string]any
	buf    *buffer.Ring
}

// Name returns the stream command name the subscription was opened with.
func (s *Subscription) Name() string { return s.name }

// Symbol returns the subscribed symbol, if any.
func (s *Subscription) Symbol() string { return s.symbol }

// Drain atomically removes and returns all buffered records, oldest first.
func (s *Subscription) Drain() []wire.Record { return s.buf.Drain() }

// Peek returns buffered records without consuming them.
func (s *Subscription) Peek() []wire.Record { return s.buf.Peek() }

// Len returns the number of buffered records.
func (s *Subscription) Len() int { return s.buf.Len() }

// Dropped returns how many records were evicted unread.
func (s *Subscription) Dropped() int64 { return s.buf.Dropped() }

func (s *Subscription) key() string { return routeKey(s.feed, s.symbol) }

// New wraps an established stream socket. onFatal is invoked (once, from
// the reader goroutine) when the channel dies; it must not call back into
// Stop synchronously.
func New(conn transport.Conn, cfg Config, onFatal func(error), logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Channel{
		cfg:     cfg,
		conn:    conn,
		reader:  wire.NewScanner(conn),
		logger:  logger,
		subs:    make(map[string]*Subscription),
		done:    make(chan struct{}),
		onFatal: onFatal,
	}
}

// Start launches the background reader.
func (c *Channel) Start() {
	c.wg.Add(1)
	go c.readLoop()
}

// Subscribe registers the feed and sends its control frame. It returns as
// soon as the frame is written; the first record, if any, lands in the
// subscription's buffer later.
func (c *Channel) Subscribe(name string, params map[string]any) (*Subscription, error) {
	sub := &Subscription{
		name:   name,
		feed:   feedName(name),
		symbol: symbolOf(params),
		params: params,
		buf:    buffer.New(c.cfg.BufferCapacity),
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	if _, exists := c.subs[sub.key()]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s %s: %w", name, sub.symbol, ErrDuplicateSubscription)
	}
	// Register before the control frame goes out so the first pushed
	// record cannot race past the registry.
	c.subs[sub.key()] = sub
	c.mu.Unlock()

	if err := c.sendControl("stream"+name, params); err != nil {
		c.mu.Lock()
		delete(c.subs, sub.key())
		c.mu.Unlock()
		return nil, err
	}

	c.logger.Debug("subscribed", "feed", sub.feed, "symbol", sub.symbol)
	return sub, nil
}

// Unsubscribe stops routing for sub, discards its buffered records, and
// sends the stop control frame. Unsubscribing twice is a no-op.
func (c *Channel) Unsubscribe(sub *Subscription) error {
	c.mu.Lock()
	registered := c.subs[sub.key()] == sub
	if registered {
		delete(c.subs, sub.key())
	}
	stopped := c.stopped
	c.mu.Unlock()

	if !registered {
		return nil
	}

	// Buffered-but-unread records are dropped immediately, no grace drain.
	sub.buf.Reset()

	if stopped {
		return nil
	}

	params := make(map[string]any)
	if sub.symbol != "" {
		params["symbol"] = sub.symbol
	}
	if err := c.sendControl("stop"+sub.name, params); err != nil {
		return err
	}

	c.logger.Debug("unsubscribed", "feed", sub.feed, "symbol", sub.symbol)
	return nil
}

// KeepAlive sends the reserved stream keepalive control frame. Used only
// by the keepalive scheduler.
func (c *Channel) KeepAlive() error {
	return c.sendControl("streamKeepAlive", nil)
}

// Subscriptions returns the number of active subscriptions.
func (c *Channel) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// UnroutedDropped returns how many pushed records matched no subscription.
func (c *Channel) UnroutedDropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unknown
}

// Stop signals the reader, waits for it to exit, and releases every
// subscription. The socket itself is closed by the caller afterwards, so
// no goroutine can ever touch a closed socket. Idempotent.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.done)
	c.wg.Wait()

	c.mu.Lock()
	for key, sub := range c.subs {
		sub.buf.Reset()
		delete(c.subs, key)
	}
	c.mu.Unlock()
}

func (c *Channel) sendControl(cmd string, params map[string]any) error {
	frame, err := wire.StreamRequest{
		Command:         cmd,
		StreamSessionID: c.cfg.StreamSessionID,
		Params:          params,
	}.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// readLoop is the sole reader of the stream socket and the sole writer to
// any subscription buffer.
func (c *Channel) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PollInterval)); err != nil {
			c.fatal(fmt.Errorf("arm stream deadline: %w", err))
			return
		}

		raw, err := c.reader.Next()
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			select {
			case <-c.done:
				// Errors during shutdown are expected.
				return
			default:
			}
			c.fatal(fmt.Errorf("stream read: %w", err))
			return
		}

		_, push, err := wire.Decode(raw)
		if err != nil {
			c.fatal(err)
			return
		}
		if push == nil {
			c.fatal(&wire.ProtocolError{Reason: "solicited frame on stream channel", Frame: raw})
			return
		}
		if push.Command == keepAliveFeed {
			continue
		}
		c.route(push)
	}
}

// route appends the pushed record to the matching subscription's buffer.
// Records carrying a symbol route to the name+symbol subscription first,
// falling back to a symbol-less subscription for the same feed.
func (c *Channel) route(push *wire.PushRecord) {
	symbol, _ := push.Data["symbol"].(string)

	c.mu.Lock()
	defer c.mu.Unlock()

	sub := c.subs[routeKey(push.Command, symbol)]
	if sub == nil && symbol != "" {
		sub = c.subs[routeKey(push.Command, "")]
	}
	if sub == nil {
		c.unknown++
		c.logger.Debug("dropping unrouted record", "feed", push.Command, "symbol", symbol)
		return
	}

	// Holding mu here makes unsubscribe-then-push atomic: once routing is
	// removed, no late record can land in the released buffer.
	sub.buf.Append(push.Data)
}

func (c *Channel) fatal(err error) {
	c.fatalOnce.Do(func() {
		c.logger.Error("stream channel failed", "error", err)
		if c.onFatal != nil {
			c.onFatal(err)
		}
	})
}

func routeKey(feed, symbol string) string {
	if symbol == "" {
		return feed
	}
	return feed + "|" + symbol
}

// feedName maps a stream command name to the command the venue echoes in
// pushed frames ("TickPrices" becomes "tickPrices").
func feedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}

func symbolOf(params map[string]any) string {
	s, _ := params["symbol"].(string)
	return s
}
