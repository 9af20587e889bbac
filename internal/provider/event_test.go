package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_Fields(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"event":"message","role":"assistant","message":{"role":"user","content":"hi"},"is_finish":false}`))
	require.NoError(t, err)

	assert.Equal(t, "message", ev.Name())

	role, ok := ev.Role()
	assert.True(t, ok)
	assert.Equal(t, "assistant", role)

	role, ok = ev.MessageRole()
	assert.True(t, ok)
	assert.Equal(t, "user", role)

	content, ok := ev.MessageContent()
	assert.True(t, ok)
	assert.Equal(t, "hi", content)

	assert.False(t, ev.IsFinish())
}

func TestParseEvent_MissingFields(t *testing.T) {
	ev, err := ParseEvent([]byte(`{}`))
	require.NoError(t, err)

	_, ok := ev.Role()
	assert.False(t, ok)
	_, ok = ev.MessageRole()
	assert.False(t, ok)
	_, ok = ev.MessageContent()
	assert.False(t, ok)
	assert.False(t, ev.IsFinish())
	assert.Equal(t, "", ev.Name())
}

func TestParseEvent_NullIsAbsent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"role":null,"message":{"content":null}}`))
	require.NoError(t, err)

	_, ok := ev.Role()
	assert.False(t, ok)
	_, ok = ev.MessageContent()
	assert.False(t, ok)
}

func TestEvent_IsFinishTruthiness(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{`{"is_finish":true}`, true},
		{`{"is_finish":1}`, true},
		{`{"is_finish":"yes"}`, true},
		{`{"is_finish":[1]}`, true},
		{`{"is_finish":false}`, false},
		{`{"is_finish":0}`, false},
		{`{"is_finish":""}`, false},
		{`{"is_finish":null}`, false},
		{`{"is_finish":{}}`, false},
		{`{}`, false},
	}

	for _, tt := range tests {
		ev, err := ParseEvent([]byte(tt.payload))
		require.NoError(t, err, tt.payload)
		assert.Equal(t, tt.want, ev.IsFinish(), tt.payload)
	}
}

func TestParseEvent_Invalid(t *testing.T) {
	for _, payload := range []string{`{"message":`, `not json`, `[1,2]`, `"text"`, `42`} {
		_, err := ParseEvent([]byte(payload))
		require.Error(t, err, payload)

		var decodeErr *StreamDecodeError
		assert.True(t, errors.As(err, &decodeErr), payload)
		assert.Equal(t, payload, decodeErr.Payload)
	}
}
