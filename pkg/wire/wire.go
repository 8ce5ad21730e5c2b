// Package wire defines the JSON envelope exchanged with the core on both the
// main and presentation channels, along with the message type names the
// bridge understands.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message types received on the main channel.
const (
	TypeIntentFailure      = "intent_failure"
	TypeAudioOutputStart   = "recognizer_loop:audio_output_start"
	TypeAudioOutputEnd     = "recognizer_loop:audio_output_end"
	TypeRecordBegin        = "recognizer_loop:record_begin"
	TypeRecordEnd          = "recognizer_loop:record_end"
	TypeRecognitionUnknown = "mycroft.speech.recognition.unknown"
	TypeSkillHandlerStart  = "mycroft.skill.handler.start"
	TypeSkillHandlerDone   = "mycroft.skill.handler.complete"
	TypeSpeak              = "speak"
	TypeStop               = "mycroft.stop"
	TypeStopHandled        = "mycroft.stop.handled"
	TypeGUIPort            = "mycroft.gui.port"
)

// Message types received on the presentation channel.
const (
	TypeSessionSet      = "mycroft.session.set"
	TypeSessionDelete   = "mycroft.session.delete"
	TypeSessionInsert   = "mycroft.session.insert"
	TypeSessionRemove   = "mycroft.session.remove"
	TypeSessionMove     = "mycroft.session.move"
	TypeGUIShow         = "mycroft.gui.show"
	TypeEventsTriggered = "mycroft.events.triggered"
)

// Message types sent by the bridge.
const (
	TypeGUIConnected  = "mycroft.gui.connected"
	TypeUtterance     = "recognizer_loop:utterance"
	TypeActionTrigger = "mycroft.actions.trigger"
)

// ActiveSkillsNamespace is the reserved namespace carrying the active-skill
// list in session.insert/remove/move messages.
const ActiveSkillsNamespace = "mycroft.system.active_skills"

// DefaultNoisePrefixes are type prefixes of telemetry chatter that is dropped
// before logging or routing.
var DefaultNoisePrefixes = []string{"enclosure", "mycroft-date"}

// ErrMissingType is returned by Decode when the frame has no type field.
var ErrMissingType = errors.New("wire: envelope has no type")

// Envelope is one frame on either channel. Besides type and data, several
// presentation messages carry fields at the top level (namespace, property,
// gui_url, event_id, parameters); those are kept in Fields.
type Envelope struct {
	Type   string
	Data   map[string]any
	Fields map[string]any
}

// New builds an envelope carrying data.
func New(typ string, data map[string]any) Envelope {
	return Envelope{Type: typ, Data: data}
}

// Decode parses a text frame. Numbers are decoded as float64.
func Decode(raw []byte) (Envelope, error) {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode: %w", err)
	}

	typ, _ := obj["type"].(string)
	if typ == "" {
		return Envelope{}, ErrMissingType
	}

	env := Envelope{Type: typ}
	if data, ok := obj["data"].(map[string]any); ok {
		env.Data = data
	}

	delete(obj, "type")
	delete(obj, "data")
	if len(obj) > 0 {
		env.Fields = obj
	}

	return env, nil
}

// Encode serialises the envelope. A nil Data is sent as an empty object so the
// core always sees {"type":...,"data":{}}.
func (e Envelope) Encode() ([]byte, error) {
	obj := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		obj[k] = v
	}

	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	obj["type"] = e.Type
	obj["data"] = data

	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %q: %w", e.Type, err)
	}
	return b, nil
}

// IsNoise reports whether typ starts with one of prefixes.
func IsNoise(typ string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

// String returns the top-level field key as a string, or "".
func (e Envelope) String(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// Object returns the top-level field key as an object, or nil.
func (e Envelope) Object(key string) map[string]any {
	m, _ := e.Fields[key].(map[string]any)
	return m
}

// DataString returns data[key] as a string, or "".
func (e Envelope) DataString(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// DataInt returns data[key] as an int. Missing or non-numeric values read as
// 0, which mirrors how the core's own clients treat absent positions. The
// second result reports whether a number was present.
func (e Envelope) DataInt(key string) (int, bool) {
	return toInt(e.Data[key])
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// Handshake builds the identification message sent once the main channel opens.
func Handshake(token string) Envelope {
	return New(TypeGUIConnected, map[string]any{"gui_id": token})
}

// Utterance builds a spoken-text request.
func Utterance(text string) Envelope {
	return New(TypeUtterance, map[string]any{"utterances": []string{text}})
}

// ActionTrigger builds an event trigger request.
func ActionTrigger(actionID string, parameters map[string]any) Envelope {
	if parameters == nil {
		parameters = map[string]any{}
	}
	return New(TypeActionTrigger, map[string]any{
		"actionId":   actionID,
		"parameters": parameters,
	})
}
