package provider

import (
	"github.com/tidwall/gjson"
)

// Event is one decoded upstream stream frame.
//
// The upstream does not send a fixed shape: role sometimes sits at the top
// level and sometimes under "message", and any field may be missing. Event
// therefore keeps the raw JSON object and answers questions about it through
// gjson lookups instead of unmarshalling into a struct that would erase the
// difference between "absent" and "empty".
type Event struct {
	raw gjson.Result

	// Err is set on the last Event of a channel when the stream failed
	// (decode error, broken connection). Raw fields are empty in that case.
	Err error
}

// ParseEvent validates payload as a JSON object and wraps it.
func ParseEvent(payload []byte) (Event, error) {
	if !gjson.ValidBytes(payload) {
		return Event{}, &StreamDecodeError{Payload: string(payload), Err: errInvalidJSON}
	}
	res := gjson.ParseBytes(payload)
	if !res.IsObject() {
		return Event{}, &StreamDecodeError{Payload: string(payload), Err: errNotObject}
	}
	return Event{raw: res}, nil
}

// Raw returns the original JSON text of the frame.
func (e Event) Raw() string {
	return e.raw.Raw
}

// Name returns the upstream event name ("message", "done", "error"), or ""
// when the frame has none.
func (e Event) Name() string {
	return e.raw.Get("event").String()
}

// Role returns the top-level role and whether it was present.
func (e Event) Role() (string, bool) {
	return lookupString(e.raw, "role")
}

// MessageRole returns the nested message.role and whether it was present.
func (e Event) MessageRole() (string, bool) {
	return lookupString(e.raw, "message.role")
}

// MessageContent returns the nested message.content and whether it was
// present.
func (e Event) MessageContent() (string, bool) {
	return lookupString(e.raw, "message.content")
}

// IsFinish reports whether the frame carries a truthy is_finish marker.
// Truthiness follows JSON loosely: true, a non-zero number, a non-empty
// string, or a non-empty array/object.
func (e Event) IsFinish() bool {
	return truthy(e.raw.Get("is_finish"))
}

// lookupString returns the value at path when it exists and is not null.
// Non-string scalars are rendered with their JSON text.
func lookupString(res gjson.Result, path string) (string, bool) {
	v := res.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	return v.String(), true
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return v.Float() != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		if v.IsArray() {
			return len(v.Array()) > 0
		}
		return len(v.Map()) > 0
	}
	return false
}
