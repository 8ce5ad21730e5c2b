package dispatch

import "github.com/germanamz/guibridge/pkg/delegates"

// Kind identifies a notification raised while handling a message.
type Kind string

const (
	KindIntentReceived      Kind = "intent_received"
	KindListeningChanged    Kind = "listening_changed"
	KindSpeakingChanged     Kind = "speaking_changed"
	KindCurrentSkillChanged Kind = "current_skill_changed"
	KindNotUnderstood       Kind = "not_understood"
	KindStopped             Kind = "stopped"
	KindFallbackText        Kind = "fallback_text"
	KindEventTriggered      Kind = "event_triggered"
	KindDelegateCreated     Kind = "delegate_created"
	KindActiveSkillsChanged Kind = "active_skills_changed"
	KindSessionChanged      Kind = "session_changed"
)

// Notice is one observable outcome of a handled message.
type Notice struct {
	Kind  Kind
	Skill string
	Data  any
}

// Sink receives notices. It is called from the dispatching goroutine and must
// not block.
type Sink func(Notice)

// Intent is the payload of KindIntentReceived: the raw type and data of every
// non-noise main-channel message.
type Intent struct {
	Type string
	Data map[string]any
}

// FallbackText is the payload of KindFallbackText.
type FallbackText struct {
	Utterance string
	Data      map[string]any
}

// Triggered is the payload of KindEventTriggered.
type Triggered struct {
	EventID    string
	Parameters map[string]any
}

// DelegateShown is the payload of KindDelegateCreated. Created is false when
// an existing handle was reused.
type DelegateShown struct {
	URL     string
	Handle  delegates.Handle
	Created bool
}

// ActiveSkills is the payload of KindActiveSkillsChanged.
type ActiveSkills struct {
	Skills  []string
	Removed []string
}

// SessionChange is the payload of KindSessionChanged.
type SessionChange struct {
	Keys    []string
	Deleted bool
}
