// Package dispatch routes decoded frames from the main and presentation
// channels to the session store, the active-skill list and the delegate
// registry, and reports what happened through a Sink.
//
// A Dispatcher is driven by a single goroutine. The state it owns (listening,
// speaking, current skill) is guarded so other goroutines may read it.
package dispatch

import (
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/germanamz/guibridge/pkg/activeskills"
	"github.com/germanamz/guibridge/pkg/delegates"
	"github.com/germanamz/guibridge/pkg/sessiondata"
	"github.com/germanamz/guibridge/pkg/wire"
)

// DefaultMaxPort is the highest presentation port accepted from the core.
const DefaultMaxPort = 65535

// Speaker plays spoken text locally.
type Speaker interface {
	Say(text string)
}

// Options configures a Dispatcher.
type Options struct {
	Token         string   // Session token the core must echo in mycroft.gui.port.
	MaxPort       int      // Highest accepted presentation port (default 65535).
	NoisePrefixes []string // Defaults to wire.DefaultNoisePrefixes.

	Store    *sessiondata.Store
	Skills   *activeskills.List
	Registry *delegates.Registry

	// OpenPresentation is called with a validated port. It must not block.
	OpenPresentation func(port int)
	Speaker          Speaker
	Sink             Sink
	Logger           *slog.Logger
}

type handler func(env wire.Envelope)

// Dispatcher applies inbound messages to the bridge state.
type Dispatcher struct {
	opts Options
	log  *slog.Logger

	main         map[string]handler
	presentation map[string]handler

	mu           sync.RWMutex
	listening    bool
	speaking     bool
	currentSkill string
}

// New creates a Dispatcher. Nil stores are replaced by empty ones.
func New(opts Options) *Dispatcher {
	if opts.MaxPort <= 0 {
		opts.MaxPort = DefaultMaxPort
	}
	if opts.NoisePrefixes == nil {
		opts.NoisePrefixes = wire.DefaultNoisePrefixes
	}
	if opts.Store == nil {
		opts.Store = sessiondata.NewStore()
	}
	if opts.Skills == nil {
		opts.Skills = activeskills.New()
	}
	if opts.Registry == nil {
		opts.Registry = delegates.New(nil, opts.Store)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Dispatcher{opts: opts, log: opts.Logger}

	d.main = map[string]handler{
		wire.TypeIntentFailure:      d.intentFailure,
		wire.TypeAudioOutputStart:   func(wire.Envelope) { d.setSpeaking(true) },
		wire.TypeAudioOutputEnd:     func(wire.Envelope) { d.setSpeaking(false) },
		wire.TypeRecordBegin:        func(wire.Envelope) { d.setListening(true) },
		wire.TypeRecordEnd:          func(wire.Envelope) { d.setListening(false) },
		wire.TypeRecognitionUnknown: func(wire.Envelope) { d.emit(KindNotUnderstood, "", nil) },
		wire.TypeSkillHandlerStart:  func(env wire.Envelope) { d.setCurrentSkill(env.DataString("name")) },
		wire.TypeSkillHandlerDone:   func(wire.Envelope) { d.setCurrentSkill("") },
		wire.TypeSpeak:              d.speak,
		wire.TypeStop:               d.stopped,
		wire.TypeStopHandled:        d.stopped,
		wire.TypeGUIPort:            d.guiPort,
	}

	d.presentation = map[string]handler{
		wire.TypeSessionSet:      d.sessionSet,
		wire.TypeSessionDelete:   d.sessionDelete,
		wire.TypeGUIShow:         d.guiShow,
		wire.TypeSessionInsert:   d.activeSkillsOnly(d.sessionInsert),
		wire.TypeSessionRemove:   d.activeSkillsOnly(d.sessionRemove),
		wire.TypeSessionMove:     d.activeSkillsOnly(d.sessionMove),
		wire.TypeEventsTriggered: d.eventsTriggered,
	}

	return d
}

// HandleMain processes one main-channel frame.
func (d *Dispatcher) HandleMain(raw []byte) {
	env, ok := d.decode("main", raw)
	if !ok {
		return
	}

	d.log.Debug("main message", "type", env.Type)
	d.emit(KindIntentReceived, "", Intent{Type: env.Type, Data: env.Data})

	h, ok := d.main[env.Type]
	if !ok {
		return
	}
	h(env)
}

// HandlePresentation processes one presentation-channel frame.
func (d *Dispatcher) HandlePresentation(raw []byte) {
	env, ok := d.decode("presentation", raw)
	if !ok {
		return
	}

	d.log.Debug("presentation message", "type", env.Type)

	h, ok := d.presentation[env.Type]
	if !ok {
		d.log.Debug("unhandled presentation message", "type", env.Type)
		return
	}
	h(env)
}

// decode parses raw and filters noise. Malformed frames are dropped.
func (d *Dispatcher) decode(channel string, raw []byte) (wire.Envelope, bool) {
	env, err := wire.Decode(raw)
	if err != nil {
		d.log.Debug("dropping malformed frame", "channel", channel, "error", err)
		return wire.Envelope{}, false
	}
	if wire.IsNoise(env.Type, d.opts.NoisePrefixes) {
		return wire.Envelope{}, false
	}
	return env, true
}

// IsListening reports whether the core is recording.
func (d *Dispatcher) IsListening() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listening
}

// IsSpeaking reports whether the core is playing audio.
func (d *Dispatcher) IsSpeaking() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.speaking
}

// CurrentSkill returns the skill whose handler is running, or "".
func (d *Dispatcher) CurrentSkill() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.currentSkill
}

// Reset clears everything learned from the presentation channel: delegates
// are disposed first, then session data and the active-skill list.
func (d *Dispatcher) Reset() {
	n := d.opts.Registry.DropAll()
	d.opts.Store.Reset()
	removed := d.opts.Skills.Clear()

	d.log.Debug("presentation state reset", "delegates", n, "skills", len(removed))

	if len(removed) > 0 {
		d.emit(KindActiveSkillsChanged, "", ActiveSkills{Skills: []string{}, Removed: removed})
	}
}

func (d *Dispatcher) emit(kind Kind, skill string, data any) {
	if d.opts.Sink != nil {
		d.opts.Sink(Notice{Kind: kind, Skill: skill, Data: data})
	}
}

// --- main channel ---

func (d *Dispatcher) intentFailure(wire.Envelope) {
	d.setListening(false)
	d.emit(KindNotUnderstood, "", nil)
}

func (d *Dispatcher) setListening(v bool) {
	d.mu.Lock()
	d.listening = v
	d.mu.Unlock()
	d.emit(KindListeningChanged, "", v)
}

func (d *Dispatcher) setSpeaking(v bool) {
	d.mu.Lock()
	d.speaking = v
	d.mu.Unlock()
	d.emit(KindSpeakingChanged, "", v)
}

func (d *Dispatcher) setCurrentSkill(skill string) {
	d.mu.Lock()
	d.currentSkill = skill
	d.mu.Unlock()

	if skill != "" {
		d.log.Debug("current skill", "skill", skill)
	}
	d.emit(KindCurrentSkillChanged, skill, skill)
}

func (d *Dispatcher) speak(env wire.Envelope) {
	utterance := env.DataString("utterance")

	if d.opts.Speaker != nil && utterance != "" {
		d.opts.Speaker.Say(utterance)
	}

	d.emit(KindFallbackText, d.CurrentSkill(), FallbackText{Utterance: utterance, Data: env.Data})
}

func (d *Dispatcher) stopped(wire.Envelope) {
	d.emit(KindStopped, "", nil)
}

func (d *Dispatcher) guiPort(env wire.Envelope) {
	port, ok := env.DataInt("port")
	if !ok {
		d.log.Warn("mycroft.gui.port without a numeric port", "port", env.Data["port"])
		return
	}
	if port < 0 || port > d.opts.MaxPort {
		d.log.Warn("invalid port from mycroft.gui.port", "port", port)
		return
	}

	if id := env.DataString("gui_id"); id != d.opts.Token {
		d.log.Warn("wrong gui_id from mycroft.gui.port", "gui_id", id)
		return
	}

	if d.opts.OpenPresentation != nil {
		d.opts.OpenPresentation(port)
	}
}

// --- presentation channel ---

func (d *Dispatcher) sessionSet(env wire.Envelope) {
	skill := env.String("namespace")
	if skill == "" {
		d.log.Warn("mycroft.session.set without namespace")
		return
	}

	bag := d.opts.Store.GetOrCreate(skill)

	keys := make([]string, 0, len(env.Data))
	for k, v := range env.Data {
		bag.Set(k, sessiondata.FromJSON(v))
		keys = append(keys, k)
	}
	slices.Sort(keys)

	d.emit(KindSessionChanged, skill, SessionChange{Keys: keys})
}

func (d *Dispatcher) sessionDelete(env wire.Envelope) {
	skill := env.String("namespace")
	property := env.String("property")

	if skill == "" {
		d.log.Warn("mycroft.session.delete without namespace")
		return
	}
	if property == "" {
		d.log.Warn("mycroft.session.delete without property", "skill", skill)
		return
	}

	if !d.opts.Store.Delete(skill, property) {
		d.log.Warn("mycroft.session.delete of unknown property", "skill", skill, "property", property)
		return
	}

	d.emit(KindSessionChanged, skill, SessionChange{Keys: []string{property}, Deleted: true})
}

func (d *Dispatcher) guiShow(env wire.Envelope) {
	skill := env.String("namespace")
	url := env.String("gui_url")

	if skill == "" {
		d.log.Warn("mycroft.gui.show with empty namespace")
		return
	}
	if url == "" {
		d.log.Warn("mycroft.gui.show with empty gui_url", "skill", skill)
		return
	}

	h, created, err := d.opts.Registry.GetOrCreate(skill, url)
	if err != nil {
		d.log.Warn("delegate creation failed", "skill", skill, "url", url, "error", err)
		return
	}

	d.emit(KindDelegateCreated, skill, DelegateShown{URL: url, Handle: h, Created: created})
}

// activeSkillsOnly restricts h to messages addressing the active-skill list.
func (d *Dispatcher) activeSkillsOnly(h handler) handler {
	return func(env wire.Envelope) {
		if ns := env.DataString("namespace"); ns != wire.ActiveSkillsNamespace {
			d.log.Debug("ignoring list message for namespace", "type", env.Type, "namespace", ns)
			return
		}
		h(env)
	}
}

func (d *Dispatcher) sessionInsert(env wire.Envelope) {
	position, _ := env.DataInt("position")
	skill := env.DataString("skill_id")

	if skill == "" {
		d.log.Warn("active skill insert without skill_id")
		return
	}

	if !d.opts.Skills.InsertUnique(position, skill) {
		if d.opts.Skills.Contains(skill) {
			d.log.Debug("active skill already present", "skill", skill)
		} else {
			d.log.Warn("invalid position for active skill insert", "position", position, "len", d.opts.Skills.Len())
		}
		return
	}

	d.emit(KindActiveSkillsChanged, skill, ActiveSkills{Skills: d.opts.Skills.Skills()})
}

func (d *Dispatcher) sessionRemove(env wire.Envelope) {
	position, _ := env.DataInt("position")
	count, _ := env.DataInt("items_number")

	removed, ok := d.opts.Skills.RemoveRange(position, count)
	if !ok {
		d.log.Warn("invalid range for active skill remove", "position", position, "items_number", count, "len", d.opts.Skills.Len())
		return
	}

	// Delegates go before the bags they are bound to.
	for _, skill := range removed {
		d.opts.Registry.DropSkill(skill)
		d.opts.Store.Drop(skill)
	}

	d.emit(KindActiveSkillsChanged, "", ActiveSkills{Skills: d.opts.Skills.Skills(), Removed: removed})
}

func (d *Dispatcher) sessionMove(env wire.Envelope) {
	from, _ := env.DataInt("from")
	to, _ := env.DataInt("to")
	count, _ := env.DataInt("items_number")

	if !d.opts.Skills.MoveRange(from, count, to) {
		d.log.Warn("invalid range for active skill move", "from", from, "to", to, "items_number", count, "len", d.opts.Skills.Len())
		return
	}

	d.emit(KindActiveSkillsChanged, "", ActiveSkills{Skills: d.opts.Skills.Skills()})
}

func (d *Dispatcher) eventsTriggered(env wire.Envelope) {
	id := env.String("event_id")
	params := env.Object("parameters")
	if params == nil {
		params = map[string]any{}
	}

	d.emit(KindEventTriggered, d.CurrentSkill(), Triggered{EventID: id, Parameters: params})
}
