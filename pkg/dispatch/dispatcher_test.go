package dispatch

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/guibridge/pkg/activeskills"
	"github.com/germanamz/guibridge/pkg/delegates"
	"github.com/germanamz/guibridge/pkg/sessiondata"
)

// --- Test helpers ---

type recorder struct {
	notices []Notice
}

func (r *recorder) sink(n Notice) { r.notices = append(r.notices, n) }

func (r *recorder) kinds() []Kind {
	out := make([]Kind, 0, len(r.notices))
	for _, n := range r.notices {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recorder) last(kind Kind) (Notice, bool) {
	for i := len(r.notices) - 1; i >= 0; i-- {
		if r.notices[i].Kind == kind {
			return r.notices[i], true
		}
	}
	return Notice{}, false
}

type item struct {
	skill string
	url   string
	bag   *sessiondata.Bag
}

type host struct {
	created  []*item
	disposed []*item
	err      error
}

func (h *host) CreateResource(url string, data *sessiondata.Bag) (delegates.Handle, error) {
	if h.err != nil {
		return nil, h.err
	}
	it := &item{url: url, bag: data}
	h.created = append(h.created, it)
	return it, nil
}

func (h *host) DisposeResource(handle delegates.Handle) {
	h.disposed = append(h.disposed, handle.(*item))
}

type speaker struct{ said []string }

func (s *speaker) Say(text string) { s.said = append(s.said, text) }

type fixture struct {
	d      *Dispatcher
	rec    *recorder
	host   *host
	store  *sessiondata.Store
	skills *activeskills.List
	reg    *delegates.Registry
	ports  []int
	logs   *bytes.Buffer
}

func newFixture(t *testing.T, skills ...string) *fixture {
	t.Helper()

	f := &fixture{
		rec:    &recorder{},
		host:   &host{},
		store:  sessiondata.NewStore(),
		skills: activeskills.New(skills...),
		logs:   &bytes.Buffer{},
	}
	f.reg = delegates.New(f.host, f.store)
	f.d = New(Options{
		Token:            "tok-1",
		Store:            f.store,
		Skills:           f.skills,
		Registry:         f.reg,
		OpenPresentation: func(port int) { f.ports = append(f.ports, port) },
		Sink:             f.rec.sink,
		Logger:           slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	return f
}

func (f *fixture) main(raw string)         { f.d.HandleMain([]byte(raw)) }
func (f *fixture) presentation(raw string) { f.d.HandlePresentation([]byte(raw)) }

// --- Main channel ---

func TestGUIPortMatchingToken(t *testing.T) {
	f := newFixture(t)

	f.main(`{"type":"mycroft.gui.port","data":{"port":5678,"gui_id":"tok-1"}}`)

	assert.Equal(t, []int{5678}, f.ports)
}

func TestGUIPortRejected(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "wrong token", raw: `{"type":"mycroft.gui.port","data":{"port":5678,"gui_id":"other"}}`},
		{name: "missing token", raw: `{"type":"mycroft.gui.port","data":{"port":5678}}`},
		{name: "negative port", raw: `{"type":"mycroft.gui.port","data":{"port":-1,"gui_id":"tok-1"}}`},
		{name: "port too large", raw: `{"type":"mycroft.gui.port","data":{"port":70000,"gui_id":"tok-1"}}`},
		{name: "missing port", raw: `{"type":"mycroft.gui.port","data":{"gui_id":"tok-1"}}`},
		{name: "non-numeric port", raw: `{"type":"mycroft.gui.port","data":{"port":"5678","gui_id":"tok-1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.main(tt.raw)
			assert.Empty(t, f.ports)
			assert.Contains(t, f.logs.String(), "level=WARN")
		})
	}
}

func TestGUIPortBoundaries(t *testing.T) {
	f := newFixture(t)

	f.main(`{"type":"mycroft.gui.port","data":{"port":0,"gui_id":"tok-1"}}`)
	f.main(`{"type":"mycroft.gui.port","data":{"port":65535,"gui_id":"tok-1"}}`)

	assert.Equal(t, []int{0, 65535}, f.ports)
}

func TestListeningAndSpeaking(t *testing.T) {
	f := newFixture(t)

	f.main(`{"type":"recognizer_loop:record_begin"}`)
	assert.True(t, f.d.IsListening())

	f.main(`{"type":"recognizer_loop:audio_output_start"}`)
	assert.True(t, f.d.IsSpeaking())

	f.main(`{"type":"recognizer_loop:record_end"}`)
	assert.False(t, f.d.IsListening())

	f.main(`{"type":"recognizer_loop:audio_output_end"}`)
	assert.False(t, f.d.IsSpeaking())

	n, ok := f.rec.last(KindSpeakingChanged)
	require.True(t, ok)
	assert.Equal(t, false, n.Data)
}

func TestIntentFailure(t *testing.T) {
	f := newFixture(t)

	f.main(`{"type":"recognizer_loop:record_begin"}`)
	f.main(`{"type":"intent_failure"}`)

	assert.False(t, f.d.IsListening())
	assert.Equal(t, []Kind{
		KindIntentReceived, KindListeningChanged,
		KindIntentReceived, KindListeningChanged, KindNotUnderstood,
	}, f.rec.kinds())
}

func TestRecognitionUnknownAndStop(t *testing.T) {
	f := newFixture(t)

	f.main(`{"type":"mycroft.speech.recognition.unknown"}`)
	f.main(`{"type":"mycroft.stop"}`)
	f.main(`{"type":"mycroft.stop.handled"}`)

	assert.Equal(t, []Kind{
		KindIntentReceived, KindNotUnderstood,
		KindIntentReceived, KindStopped,
		KindIntentReceived, KindStopped,
	}, f.rec.kinds())
}

func TestCurrentSkillAndSpeak(t *testing.T) {
	sp := &speaker{}
	f := newFixture(t)
	f.d.opts.Speaker = sp

	f.main(`{"type":"mycroft.skill.handler.start","data":{"name":"WeatherSkill.handle_current"}}`)
	assert.Equal(t, "WeatherSkill.handle_current", f.d.CurrentSkill())

	f.main(`{"type":"speak","data":{"utterance":"It is sunny"}}`)

	n, ok := f.rec.last(KindFallbackText)
	require.True(t, ok)
	assert.Equal(t, "WeatherSkill.handle_current", n.Skill)
	assert.Equal(t, "It is sunny", n.Data.(FallbackText).Utterance)
	assert.Equal(t, []string{"It is sunny"}, sp.said)

	f.main(`{"type":"mycroft.skill.handler.complete"}`)
	assert.Empty(t, f.d.CurrentSkill())
}

func TestEveryMainMessageRaisesIntent(t *testing.T) {
	f := newFixture(t)

	f.main(`{"type":"something.custom","data":{"a":1}}`)

	require.Len(t, f.rec.notices, 1)
	n := f.rec.notices[0]
	assert.Equal(t, KindIntentReceived, n.Kind)
	assert.Equal(t, Intent{Type: "something.custom", Data: map[string]any{"a": float64(1)}}, n.Data)
}

func TestNoiseAndMalformedDropped(t *testing.T) {
	f := newFixture(t)

	f.main(`{"type":"enclosure.eyes.blink"}`)
	f.main(`{"type":"mycroft-date-time.tick"}`)
	f.main(`{not json`)
	f.presentation(`{"type":"enclosure.mouth.reset"}`)
	f.presentation(`garbage`)

	assert.Empty(t, f.rec.notices)
	assert.NotContains(t, f.logs.String(), "enclosure")
}

// --- Presentation channel ---

func TestSessionSetThenDelete(t *testing.T) {
	f := newFixture(t)

	f.presentation(`{"type":"mycroft.session.set","namespace":"weather","data":{"temp":"72F","sky":"clear"}}`)

	bag, ok := f.store.Lookup("weather")
	require.True(t, ok)
	assert.Equal(t, "72F", bag.String("temp"))

	n, ok := f.rec.last(KindSessionChanged)
	require.True(t, ok)
	assert.Equal(t, "weather", n.Skill)
	assert.Equal(t, SessionChange{Keys: []string{"sky", "temp"}}, n.Data)

	f.presentation(`{"type":"mycroft.session.delete","namespace":"weather","property":"temp"}`)

	_, ok = bag.Get("temp")
	assert.False(t, ok)
	assert.Equal(t, []string{"sky"}, bag.Keys())
}

func TestSessionSetOverwritesTypedValues(t *testing.T) {
	f := newFixture(t)

	f.presentation(`{"type":"mycroft.session.set","namespace":"timer","data":{"left":30,"items":[1,2],"active":true}}`)
	f.presentation(`{"type":"mycroft.session.set","namespace":"timer","data":{"left":29}}`)

	bag, _ := f.store.Lookup("timer")
	assert.Equal(t, float64(29), bag.Number("left"))
	assert.True(t, bag.Bool("active"))
	assert.Len(t, bag.List("items"), 2)
}

func TestSessionDeleteWarnings(t *testing.T) {
	f := newFixture(t)

	f.presentation(`{"type":"mycroft.session.delete","property":"temp"}`)
	f.presentation(`{"type":"mycroft.session.delete","namespace":"weather"}`)
	f.presentation(`{"type":"mycroft.session.delete","namespace":"weather","property":"temp"}`)

	assert.Empty(t, f.rec.notices)
	assert.Empty(t, f.store.Skills(), "delete never creates entries")
	assert.Contains(t, f.logs.String(), "without namespace")
	assert.Contains(t, f.logs.String(), "without property")
	assert.Contains(t, f.logs.String(), "unknown property")
}

func TestGUIShowCreatesOnce(t *testing.T) {
	f := newFixture(t)

	f.presentation(`{"type":"mycroft.gui.show","namespace":"weather","gui_url":"weather.qml"}`)
	f.presentation(`{"type":"mycroft.gui.show","namespace":"weather","gui_url":"weather.qml"}`)

	require.Len(t, f.host.created, 1)
	assert.Same(t, f.store.GetOrCreate("weather"), f.host.created[0].bag)

	var shown []DelegateShown
	for _, n := range f.rec.notices {
		if n.Kind == KindDelegateCreated {
			shown = append(shown, n.Data.(DelegateShown))
		}
	}
	require.Len(t, shown, 2)
	assert.True(t, shown[0].Created)
	assert.False(t, shown[1].Created)
}

func TestGUIShowRejected(t *testing.T) {
	f := newFixture(t)

	f.presentation(`{"type":"mycroft.gui.show","gui_url":"weather.qml"}`)
	f.presentation(`{"type":"mycroft.gui.show","namespace":"weather"}`)

	f.host.err = errors.New("bad component")
	f.presentation(`{"type":"mycroft.gui.show","namespace":"weather","gui_url":"weather.qml"}`)

	assert.Empty(t, f.host.created)
	assert.Empty(t, f.reg.URLs("weather"))
	_, ok := f.rec.last(KindDelegateCreated)
	assert.False(t, ok)
}

func TestInsertIntoEmptyList(t *testing.T) {
	f := newFixture(t)

	f.presentation(`{"type":"mycroft.session.insert","data":{"namespace":"mycroft.system.active_skills","position":0,"skill_id":"weather"}}`)

	assert.Equal(t, []string{"weather"}, f.skills.Skills())
	n, ok := f.rec.last(KindActiveSkillsChanged)
	require.True(t, ok)
	assert.Equal(t, []string{"weather"}, n.Data.(ActiveSkills).Skills)
}

func TestInsertRejected(t *testing.T) {
	f := newFixture(t, "weather")

	f.presentation(`{"type":"mycroft.session.insert","data":{"namespace":"mycroft.system.active_skills","position":0,"skill_id":"weather"}}`)
	f.presentation(`{"type":"mycroft.session.insert","data":{"namespace":"mycroft.system.active_skills","position":5,"skill_id":"timer"}}`)
	f.presentation(`{"type":"mycroft.session.insert","data":{"namespace":"other","position":0,"skill_id":"timer"}}`)

	assert.Equal(t, []string{"weather"}, f.skills.Skills())
	assert.Empty(t, f.rec.notices)
}

func TestRemoveCascades(t *testing.T) {
	f := newFixture(t, "weather", "timer", "music")

	f.presentation(`{"type":"mycroft.session.set","namespace":"timer","data":{"left":30}}`)
	f.presentation(`{"type":"mycroft.gui.show","namespace":"timer","gui_url":"timer.qml"}`)
	f.presentation(`{"type":"mycroft.session.set","namespace":"music","data":{"track":"x"}}`)

	f.presentation(`{"type":"mycroft.session.remove","data":{"namespace":"mycroft.system.active_skills","position":1,"items_number":1}}`)

	assert.Equal(t, []string{"weather", "music"}, f.skills.Skills())
	_, ok := f.store.Lookup("timer")
	assert.False(t, ok)
	_, ok = f.store.Lookup("music")
	assert.True(t, ok)
	assert.Empty(t, f.reg.URLs("timer"))
	require.Len(t, f.host.disposed, 1)
	assert.Equal(t, "timer.qml", f.host.disposed[0].url)

	n, ok := f.rec.last(KindActiveSkillsChanged)
	require.True(t, ok)
	assert.Equal(t, []string{"timer"}, n.Data.(ActiveSkills).Removed)
}

func TestRemoveRejected(t *testing.T) {
	f := newFixture(t, "weather", "timer")

	f.presentation(`{"type":"mycroft.session.remove","data":{"namespace":"mycroft.system.active_skills","position":2,"items_number":1}}`)
	f.presentation(`{"type":"mycroft.session.remove","data":{"namespace":"mycroft.system.active_skills","position":1,"items_number":2}}`)
	f.presentation(`{"type":"mycroft.session.remove","data":{"namespace":"mycroft.system.active_skills","position":-1,"items_number":1}}`)

	assert.Equal(t, []string{"weather", "timer"}, f.skills.Skills())
	assert.Empty(t, f.rec.notices)
}

func TestMove(t *testing.T) {
	f := newFixture(t, "a", "b", "c", "d")

	f.presentation(`{"type":"mycroft.session.move","data":{"namespace":"mycroft.system.active_skills","from":2,"items_number":2,"to":0}}`)
	assert.Equal(t, []string{"c", "d", "a", "b"}, f.skills.Skills())

	f.presentation(`{"type":"mycroft.session.move","data":{"namespace":"mycroft.system.active_skills","from":0,"items_number":0,"to":1}}`)
	f.presentation(`{"type":"mycroft.session.move","data":{"namespace":"mycroft.system.active_skills","from":0,"items_number":1,"to":4}}`)
	assert.Equal(t, []string{"c", "d", "a", "b"}, f.skills.Skills())
}

func TestEventsTriggered(t *testing.T) {
	f := newFixture(t)

	f.presentation(`{"type":"mycroft.events.triggered","event_id":"page_gained_focus","parameters":{"number":1}}`)
	f.presentation(`{"type":"mycroft.events.triggered","event_id":"bare"}`)

	var got []Triggered
	for _, n := range f.rec.notices {
		got = append(got, n.Data.(Triggered))
	}
	assert.Equal(t, []Triggered{
		{EventID: "page_gained_focus", Parameters: map[string]any{"number": float64(1)}},
		{EventID: "bare", Parameters: map[string]any{}},
	}, got)
}

func TestUnknownPresentationMessageIgnored(t *testing.T) {
	f := newFixture(t)

	f.presentation(`{"type":"mycroft.something.new"}`)

	assert.Empty(t, f.rec.notices)
	assert.Contains(t, f.logs.String(), "unhandled presentation message")
}

func TestReset(t *testing.T) {
	f := newFixture(t, "weather")

	f.presentation(`{"type":"mycroft.gui.show","namespace":"weather","gui_url":"weather.qml"}`)
	f.d.Reset()

	assert.Zero(t, f.skills.Len())
	assert.Empty(t, f.store.Skills())
	assert.Len(t, f.host.disposed, 1)

	n, ok := f.rec.last(KindActiveSkillsChanged)
	require.True(t, ok)
	assert.Equal(t, []string{"weather"}, n.Data.(ActiveSkills).Removed)
}
