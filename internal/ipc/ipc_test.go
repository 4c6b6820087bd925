package ipc

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeMessenger_SendWritesOneJSONLinePerMessage(t *testing.T) {
	var buf bytes.Buffer
	m := NewPipeMessenger(bytes.NewReader(nil), &buf, nil)

	require.NoError(t, m.Send(Message{Type: TypeEmbed, ID: 1, Texts: []string{"hello"}}))
	require.NoError(t, m.Send(Message{Type: TypeReady}))

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestPipeMessenger_MalformedLineIsSilentlyDropped(t *testing.T) {
	r := bytes.NewBufferString("not json\n{\"type\":\"ready\"}\n")
	var buf bytes.Buffer
	m := NewPipeMessenger(r, &buf, nil)

	received := make(chan Message, 4)
	m.OnMessage(func(msg Message) { received <- msg })

	select {
	case msg := <-received:
		assert.Equal(t, TypeReady, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for valid message")
	}

	select {
	case extra := <-received:
		t.Fatalf("unexpected second message: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChanMessenger_RoundTrip(t *testing.T) {
	parent, child := NewChanPair()

	childReceived := make(chan Message, 1)
	child.OnMessage(func(m Message) { childReceived <- m })

	require.NoError(t, parent.Send(Message{Type: TypeInit, Model: "test-model"}))

	select {
	case m := <-childReceived:
		assert.Equal(t, TypeInit, m.Type)
		assert.Equal(t, "test-model", m.Model)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestChanMessenger_ExitTriggersDisconnect(t *testing.T) {
	parent, child := NewChanPair()

	disconnected := make(chan struct{})
	child.OnDisconnect(func(err error) { close(disconnected) })

	require.NoError(t, parent.Exit(0))

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for disconnect")
	}
}
