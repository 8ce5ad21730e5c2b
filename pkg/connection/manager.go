// Package connection owns the two websocket channels of the bridge: the main
// channel to the core and the presentation channel opened on the port the core
// announces. It runs the reconnect timer for the main channel and derives the
// overall connection status from the main transport state and the timer.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/germanamz/guibridge/pkg/wire"
)

var (
	// ErrNotOpen is returned by Send when the target channel is not open.
	// Nothing is buffered for later delivery.
	ErrNotOpen = errors.New("connection: channel not open")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("connection: manager closed")
	// ErrRetrying wraps dial errors that armed the reconnect timer.
	ErrRetrying = errors.New("connection: core unavailable, retrying")
	// ErrSuperseded is returned by OpenPresentation when a later call
	// replaced it before its dial finished.
	ErrSuperseded = errors.New("connection: presentation open superseded")
)

// Launcher starts the core process. It is fire-and-forget.
type Launcher interface {
	Launch()
}

// Options configures a Manager.
type Options struct {
	Address           string        // Base websocket address, e.g. "ws://127.0.0.1".
	CorePort          int           // Port of the core's message bus (default 8181).
	CorePath          string        // Path of the main channel (default "/core").
	GUIPath           string        // Path of the presentation channel (default "/gui").
	Token             string        // Session token sent in the handshake.
	ReconnectInterval time.Duration // Delay between reconnect attempts (default 1s).
	DialTimeout       time.Duration // Per-attempt dial timeout (default 5s).
	WriteTimeout      time.Duration // Per-frame write timeout (default 5s).

	Dialer   Dialer       // Defaults to WebsocketDialer(0).
	Launcher Launcher     // Optional; run once when the core is absent.
	Logger   *slog.Logger // Defaults to a discarding logger.

	// OnFrame receives every inbound text frame. It is called from the
	// channel's read goroutine.
	OnFrame func(ch Channel, raw []byte)
	// OnStatus is called whenever the derived main status changes.
	OnStatus func(Status)
	// OnChannel is called on every transport transition of either channel.
	OnChannel func(ch Channel, s Status)
	// OnError receives errors from timer-driven reconnect attempts that
	// stopped the retry loop.
	OnError func(error)
}

func (o *Options) applyDefaults() {
	if o.CorePort == 0 {
		o.CorePort = 8181
	}
	if o.CorePath == "" {
		o.CorePath = "/core"
	}
	if o.GUIPath == "" {
		o.GUIPath = "/gui"
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = WebsocketDialer(0)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

type channelState struct {
	state  Status
	conn   Conn
	cancel context.CancelFunc
}

// Manager owns the main and presentation channels. It is safe for concurrent
// use.
type Manager struct {
	opts Options
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	channels [2]channelState
	timer    *time.Timer
	armed    bool
	launched bool
	closed   bool
	// presentGen counts OpenPresentation calls; only the latest may attach.
	presentGen uint64

	notifyMu   sync.Mutex
	lastStatus Status
}

// New creates a Manager. No connection is attempted until Connect.
func New(opts Options) *Manager {
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		opts:   opts,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// CoreURL is the address of the main channel.
func (m *Manager) CoreURL() string {
	return fmt.Sprintf("%s:%d%s", m.opts.Address, m.opts.CorePort, m.opts.CorePath)
}

// PresentationURL is the address of the presentation channel on port.
func (m *Manager) PresentationURL(port int) string {
	return fmt.Sprintf("%s:%d%s", m.opts.Address, port, m.opts.GUIPath)
}

// Status derives the bridge status: Connecting while the reconnect timer is
// armed, otherwise the main channel's transport state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	if m.armed {
		return StatusConnecting
	}
	return m.channels[Main].state
}

// ChannelStatus returns the transport state of ch.
func (m *Manager) ChannelStatus(ch Channel) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[ch].state
}

// ReconnectArmed reports whether the reconnect timer is armed.
func (m *Manager) ReconnectArmed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Connect opens the main channel. When the core is absent it launches the core
// process (once per Manager) and arms the reconnect timer, returning an error
// wrapping ErrRetrying. Any other failure is returned without retrying.
func (m *Manager) Connect(ctx context.Context) error {
	return m.attempt(ctx)
}

// Reconnect force-closes the main channel and arms the reconnect timer.
func (m *Manager) Reconnect() {
	m.log.Debug("reconnect requested")

	m.closeChannel(Main, true)

	m.mu.Lock()
	if !m.closed {
		m.armLocked()
	}
	m.mu.Unlock()

	m.statusChanged()
}

// OpenPresentation opens the presentation channel on port, replacing any open
// one. Failures are logged and returned; they are never retried.
func (m *Manager) OpenPresentation(ctx context.Context, port int) error {
	url := m.PresentationURL(port)

	m.closeChannel(Presentation, true)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.presentGen++
	gen := m.presentGen
	m.channels[Presentation].state = StatusConnecting
	m.mu.Unlock()
	m.channelChanged(Presentation, StatusConnecting)

	conn, err := m.dial(ctx, url)
	if err != nil {
		m.mu.Lock()
		current := gen == m.presentGen
		if current {
			m.channels[Presentation].state = StatusClosed
		}
		m.mu.Unlock()
		if current {
			m.channelChanged(Presentation, StatusClosed)
		}

		m.log.Warn("presentation channel failed", "url", url, "error", err)
		return fmt.Errorf("connection: open presentation %s: %w", url, err)
	}

	if err := m.attach(Presentation, conn, gen); err != nil {
		if errors.Is(err, ErrSuperseded) {
			m.log.Debug("presentation channel superseded", "url", url)
		}
		return err
	}

	m.log.Info("presentation channel open", "url", url)
	return nil
}

// Send encodes env and writes it to ch. If ch is not open it logs a warning
// and returns ErrNotOpen; the message is dropped.
func (m *Manager) Send(ch Channel, env wire.Envelope) error {
	m.mu.Lock()
	st := m.channels[ch]
	m.mu.Unlock()

	if st.state != StatusOpen || st.conn == nil {
		m.log.Warn("connection not open, dropping message", "channel", ch.String(), "type", env.Type)
		return ErrNotOpen
	}

	b, err := env.Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.WriteTimeout)
	defer cancel()

	if err := st.conn.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("connection: send %q on %s: %w", env.Type, ch, err)
	}

	m.log.Debug("sent", "channel", ch.String(), "type", env.Type)
	return nil
}

// Close disarms the reconnect timer and closes both channels.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.disarmLocked()
	m.mu.Unlock()

	m.closeChannel(Presentation, false)
	m.closeChannel(Main, false)
	m.cancel()

	m.statusChanged()
	return nil
}

// attempt dials the core once.
func (m *Manager) attempt(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if s := m.channels[Main].state; s == StatusOpen || s == StatusConnecting {
		m.mu.Unlock()
		return nil
	}
	m.channels[Main].state = StatusConnecting
	m.mu.Unlock()
	m.channelChanged(Main, StatusConnecting)
	m.statusChanged()

	url := m.CoreURL()

	conn, err := m.dial(ctx, url)
	if err != nil {
		return m.attemptFailed(url, err)
	}

	if err := m.attach(Main, conn, 0); err != nil {
		return err
	}

	m.log.Info("connected to core", "url", url)

	if err := m.Send(Main, wire.Handshake(m.opts.Token)); err != nil {
		m.log.Warn("handshake failed", "error", err)
	}

	return nil
}

func (m *Manager) attemptFailed(url string, err error) error {
	absent := IsCoreAbsent(err)

	m.mu.Lock()
	m.channels[Main].state = StatusClosed
	launch := false
	if absent && !m.closed {
		launch = !m.launched && m.opts.Launcher != nil
		m.launched = true
		m.armLocked()
	} else {
		m.disarmLocked()
	}
	m.mu.Unlock()

	m.channelChanged(Main, StatusClosed)

	if launch {
		m.log.Info("core not reachable, launching it", "url", url)
		m.opts.Launcher.Launch()
	}

	m.statusChanged()

	if absent {
		m.log.Debug("core not reachable", "url", url, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrRetrying, url, err)
	}

	m.log.Warn("core is running but the connection failed", "url", url, "error", err)
	return fmt.Errorf("connection: connect %s: %w", url, err)
}

// retry runs when the reconnect timer fires.
func (m *Manager) retry() {
	m.mu.Lock()
	armed := m.armed && !m.closed
	m.mu.Unlock()

	if !armed {
		return
	}

	err := m.attempt(m.ctx)
	if err == nil || errors.Is(err, ErrRetrying) || errors.Is(err, ErrClosed) {
		return
	}

	if m.opts.OnError != nil {
		m.opts.OnError(err)
	}
}

// armLocked schedules the next reconnect attempt. Callers must hold m.mu.
func (m *Manager) armLocked() {
	m.armed = true
	if m.timer == nil {
		m.timer = time.AfterFunc(m.opts.ReconnectInterval, m.retry)
		return
	}
	m.timer.Reset(m.opts.ReconnectInterval)
}

// disarmLocked stops the reconnect timer. Callers must hold m.mu.
func (m *Manager) disarmLocked() {
	m.armed = false
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *Manager) dial(ctx context.Context, url string) (Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()
	return m.opts.Dialer(dctx, url)
}

// attach installs conn as the open transport of ch and starts its read loop.
// A transport already installed on ch is detached and closed. For the
// presentation channel gen must be the latest OpenPresentation generation.
// On error conn is closed.
func (m *Manager) attach(ch Channel, conn Conn, gen uint64) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.CloseNow()
		return ErrClosed
	}
	if ch == Presentation && gen != m.presentGen {
		m.mu.Unlock()
		_ = conn.CloseNow()
		return ErrSuperseded
	}

	prev := m.channels[ch]
	if prev.conn != nil {
		prev.cancel()
		_ = prev.conn.CloseNow()
	}

	rctx, cancel := context.WithCancel(m.ctx)
	m.channels[ch] = channelState{state: StatusOpen, conn: conn, cancel: cancel}
	if ch == Main {
		m.disarmLocked()
	}
	m.mu.Unlock()

	m.channelChanged(ch, StatusOpen)
	if ch == Main {
		m.statusChanged()
	}

	go m.readLoop(rctx, ch, conn)
	return nil
}

// current reports whether conn is still the installed transport of ch.
func (m *Manager) current(ch Channel, conn Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[ch].conn == conn
}

func (m *Manager) readLoop(ctx context.Context, ch Channel, conn Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			m.dropped(ch, conn, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if !m.current(ch, conn) {
			_ = conn.CloseNow()
			return
		}
		if m.opts.OnFrame != nil {
			m.opts.OnFrame(ch, data)
		}
	}
}

// dropped handles a read failure. Deliberate closes detach the conn first, so
// only unexpected drops reach the bookkeeping below. A dropped main channel
// arms the reconnect timer so the bridge follows a restarting core.
func (m *Manager) dropped(ch Channel, conn Conn, err error) {
	m.mu.Lock()
	st := m.channels[ch]
	if st.conn != conn {
		m.mu.Unlock()
		return
	}
	st.cancel()
	m.channels[ch] = channelState{state: StatusClosed}
	rearm := ch == Main && !m.closed
	if rearm {
		m.armLocked()
	}
	m.mu.Unlock()

	_ = conn.CloseNow()

	m.log.Warn("channel dropped", "channel", ch.String(), "error", err)
	m.channelChanged(ch, StatusClosed)
	m.statusChanged()
}

// closeChannel detaches and closes the transport of ch. force skips the close
// handshake.
func (m *Manager) closeChannel(ch Channel, force bool) {
	m.mu.Lock()
	st := m.channels[ch]
	if st.conn == nil {
		m.mu.Unlock()
		return
	}
	m.channels[ch] = channelState{state: StatusClosing}
	m.mu.Unlock()

	m.channelChanged(ch, StatusClosing)
	if ch == Main {
		m.statusChanged()
	}

	if force {
		_ = st.conn.CloseNow()
	} else {
		_ = st.conn.Close(websocket.StatusNormalClosure, "")
	}
	st.cancel()

	m.mu.Lock()
	if m.channels[ch].state == StatusClosing && m.channels[ch].conn == nil {
		m.channels[ch].state = StatusClosed
	}
	m.mu.Unlock()

	m.channelChanged(ch, StatusClosed)
	if ch == Main {
		m.statusChanged()
	}
}

func (m *Manager) channelChanged(ch Channel, s Status) {
	if m.opts.OnChannel != nil {
		m.opts.OnChannel(ch, s)
	}
}

// statusChanged recomputes the derived status and notifies OnStatus when it
// differs from the last reported value.
func (m *Manager) statusChanged() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	s := m.Status()
	if s == m.lastStatus {
		return
	}
	m.lastStatus = s

	if m.opts.OnStatus != nil {
		m.opts.OnStatus(s)
	}
}
