package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/germanamz/guibridge/pkg/activeskills"
	"github.com/germanamz/guibridge/pkg/connection"
	"github.com/germanamz/guibridge/pkg/delegates"
	"github.com/germanamz/guibridge/pkg/dispatch"
	"github.com/germanamz/guibridge/pkg/launcher"
	"github.com/germanamz/guibridge/pkg/sessiondata"
	"github.com/germanamz/guibridge/pkg/wire"
)

var (
	// ErrNotStarted is returned by requests issued before Start.
	ErrNotStarted = errors.New("engine: not started")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("engine: already started")
)

// Speaker plays spoken text locally.
type Speaker = dispatch.Speaker

// Host renders delegates for skills.
type Host = delegates.Host

const inboxSize = 256

// Option customises an Engine.
type Option func(*options)

type options struct {
	host     Host
	launcher launcher.Launcher
	speaker  Speaker
	logger   *slog.Logger
	dialer   connection.Dialer
}

// WithHost sets the rendering host used to create delegates.
func WithHost(h Host) Option { return func(o *options) { o.host = h } }

// WithLauncher replaces the exec launcher built from the core_loader config.
func WithLauncher(l launcher.Launcher) Option { return func(o *options) { o.launcher = l } }

// WithSpeaker sets the text-to-speech collaborator that receives speak
// utterances.
func WithSpeaker(s Speaker) Option { return func(o *options) { o.speaker = s } }

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithDialer replaces the websocket dialer.
func WithDialer(d connection.Dialer) Option { return func(o *options) { o.dialer = d } }

type frame struct {
	ch    connection.Channel
	raw   []byte
	reset bool
}

// Engine is the composition root that wires the bridge together and exposes a
// frontend-agnostic API.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	token string

	events     *EventBus
	store      *sessiondata.Store
	skills     *activeskills.List
	registry   *delegates.Registry
	dispatcher *dispatch.Dispatcher
	conn       *connection.Manager

	inbox  chan frame
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started   atomic.Bool
	closeOnce sync.Once
}

// New creates an Engine from the given configuration. Defaults are applied
// before validation. No connection is attempted until Start.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.launcher == nil && !cfg.CoreLoader.Disabled {
		o.launcher = launcher.NewExec(cfg.CoreLoader.Command, cfg.CoreLoader.Args, o.logger.With("component", "launcher"))
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:    cfg,
		log:    o.logger,
		token:  uuid.NewString(),
		events: NewEventBus(),
		store:  sessiondata.NewStore(),
		skills: activeskills.New(),
		inbox:  make(chan frame, inboxSize),
		ctx:    ctx,
		cancel: cancel,
	}

	e.registry = delegates.New(o.host, e.store, delegates.WithSharedURLs(cfg.ShareDelegatesAcrossSkills))

	e.dispatcher = dispatch.New(dispatch.Options{
		Token:            e.token,
		MaxPort:          cfg.MaxPort,
		NoisePrefixes:    cfg.NoisePrefixes,
		Store:            e.store,
		Skills:           e.skills,
		Registry:         e.registry,
		OpenPresentation: e.openPresentation,
		Speaker:          o.speaker,
		Sink:             func(n dispatch.Notice) { e.events.Publish(eventFromNotice(n)) },
		Logger:           o.logger.With("component", "dispatch"),
	})

	connOpts := connection.Options{
		Address:           cfg.WebsocketAddress,
		CorePort:          cfg.CorePort,
		CorePath:          cfg.CorePath,
		GUIPath:           cfg.GUIPath,
		Token:             e.token,
		ReconnectInterval: cfg.ReconnectDelay(),
		Dialer:            o.dialer,
		Logger:            o.logger.With("component", "connection"),
		OnFrame:           e.enqueue,
		OnStatus:          e.statusChanged,
		OnChannel:         e.channelChanged,
		OnError:           e.publishError,
	}
	if o.launcher != nil {
		connOpts.Launcher = o.launcher
	}
	e.conn = connection.New(connOpts)

	return e, nil
}

// Start runs the dispatch loop and connects to the core. A core that is not
// running yet is not an error: the core loader is launched and the engine
// keeps retrying in the background.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	e.wg.Add(1)
	go e.loop()

	err := e.conn.Connect(ctx)
	switch {
	case err == nil, errors.Is(err, connection.ErrRetrying):
		return nil
	default:
		e.publishError(err)
		return fmt.Errorf("engine: start: %w", err)
	}
}

// Reconnect drops the main channel and reconnects after the reconnect
// interval.
func (e *Engine) Reconnect() { e.conn.Reconnect() }

// SendText sends an utterance to the core as if it had been spoken.
func (e *Engine) SendText(text string) error {
	return e.send(connection.Main, wire.Utterance(text))
}

// TriggerEvent asks the core to run the action identified by actionID.
func (e *Engine) TriggerEvent(actionID string, parameters map[string]any) error {
	return e.send(connection.Main, wire.ActionTrigger(actionID, parameters))
}

// SendPresentation sends an arbitrary request on the presentation channel.
func (e *Engine) SendPresentation(typ string, data map[string]any) error {
	return e.send(connection.Presentation, wire.New(typ, data))
}

func (e *Engine) send(ch connection.Channel, env wire.Envelope) error {
	if !e.started.Load() {
		return ErrNotStarted
	}
	return e.conn.Send(ch, env)
}

// Status returns the derived connection status.
func (e *Engine) Status() connection.Status { return e.conn.Status() }

// PresentationStatus returns the state of the presentation channel.
func (e *Engine) PresentationStatus() connection.Status {
	return e.conn.ChannelStatus(connection.Presentation)
}

// IsListening reports whether the core is recording.
func (e *Engine) IsListening() bool { return e.dispatcher.IsListening() }

// IsSpeaking reports whether the core is playing audio.
func (e *Engine) IsSpeaking() bool { return e.dispatcher.IsSpeaking() }

// CurrentSkill returns the skill whose handler is running, or "".
func (e *Engine) CurrentSkill() string { return e.dispatcher.CurrentSkill() }

// ActiveSkills returns a copy of the ordered active-skill list.
func (e *Engine) ActiveSkills() []string { return e.skills.Skills() }

// SessionData returns the property bag of skill, if it exists.
func (e *Engine) SessionData(skill string) (*sessiondata.Bag, bool) {
	return e.store.Lookup(skill)
}

// Delegates returns the handles created for skill, ordered by url.
func (e *Engine) Delegates(skill string) []delegates.Handle {
	return e.registry.Handles(skill)
}

// Token returns the session token sent in the handshake.
func (e *Engine) Token() string { return e.token }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Close disconnects, stops the dispatch loop, disposes every delegate and
// closes all event subscriptions.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.conn.Close()
		e.cancel()
		e.wg.Wait()
		e.registry.DropAll()
		e.events.Close()
	})
	return err
}

// loop applies frames one at a time so every store sees messages in arrival
// order.
func (e *Engine) loop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case f := <-e.inbox:
			switch {
			case f.reset:
				e.dispatcher.Reset()
			case f.ch == connection.Main:
				e.dispatcher.HandleMain(f.raw)
			default:
				e.dispatcher.HandlePresentation(f.raw)
			}
		}
	}
}

func (e *Engine) enqueue(ch connection.Channel, raw []byte) {
	e.push(frame{ch: ch, raw: raw})
}

func (e *Engine) push(f frame) {
	select {
	case e.inbox <- f:
	case <-e.ctx.Done():
	}
}

// openPresentation is called by the dispatcher; the dial runs outside the
// dispatch loop.
func (e *Engine) openPresentation(port int) {
	go func() {
		err := e.conn.OpenPresentation(e.ctx, port)
		if err == nil || errors.Is(err, connection.ErrClosed) || errors.Is(err, connection.ErrSuperseded) {
			return
		}
		e.publishError(err)
	}()
}

func (e *Engine) statusChanged(s connection.Status) {
	e.log.Debug("connection status", "status", s.String())
	e.events.Publish(Event{Kind: EventConnectionStateChanged, Data: s})
}

// channelChanged resets presentation state whenever a new presentation channel
// opens; the core replays its state on every new channel.
func (e *Engine) channelChanged(ch connection.Channel, s connection.Status) {
	if ch == connection.Presentation && s == connection.StatusOpen {
		e.push(frame{reset: true})
	}
}

func (e *Engine) publishError(err error) {
	e.log.Warn("engine error", "error", err)
	e.events.Publish(Event{Kind: EventError, Data: err})
}
