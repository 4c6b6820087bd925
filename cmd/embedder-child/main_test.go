package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsearch/indexer-core/internal/embedmodel"
	"github.com/localsearch/indexer-core/internal/ipc"
)

func TestHandleEmbedIgnoresMissingTexts(t *testing.T) {
	parent, childSide := ipc.NewChanPair()
	c := newChild(childSide)
	c.model = embedmodel.NewStaticModel()

	var replies []ipc.Message
	parent.OnMessage(func(msg ipc.Message) { replies = append(replies, msg) })

	c.handleEmbed(ipc.Message{Type: ipc.TypeEmbed, ID: 1, Texts: nil})

	assert.Empty(t, replies, "missing texts must be silently ignored per §6")
}

func TestHandleEmbedIgnoresMissingID(t *testing.T) {
	parent, childSide := ipc.NewChanPair()
	c := newChild(childSide)
	c.model = embedmodel.NewStaticModel()

	var replies []ipc.Message
	parent.OnMessage(func(msg ipc.Message) { replies = append(replies, msg) })

	c.handleEmbed(ipc.Message{Type: ipc.TypeEmbed, ID: 0, Texts: []string{"hello"}})

	assert.Empty(t, replies, "missing id must be silently ignored per §6")
}

func TestHandleEmbedRespondsWhenWellFormed(t *testing.T) {
	parent, childSide := ipc.NewChanPair()
	c := newChild(childSide)
	c.model = embedmodel.NewStaticModel()

	replyCh := make(chan ipc.Message, 1)
	parent.OnMessage(func(msg ipc.Message) { replyCh <- msg })

	c.handleEmbed(ipc.Message{Type: ipc.TypeEmbed, ID: 7, Texts: []string{"hello world"}})

	reply := <-replyCh
	assert.Equal(t, ipc.TypeEmbedOK, reply.Type)
	assert.Equal(t, int64(7), reply.ID)
	require.Len(t, reply.Vectors, 1)
}

func TestHandleEmbedRespondsWithErrorWhenModelUninitialized(t *testing.T) {
	parent, childSide := ipc.NewChanPair()
	c := newChild(childSide)

	replyCh := make(chan ipc.Message, 1)
	parent.OnMessage(func(msg ipc.Message) { replyCh <- msg })

	c.handleEmbed(ipc.Message{Type: ipc.TypeEmbed, ID: 3, Texts: []string{"hello"}})

	reply := <-replyCh
	assert.Equal(t, ipc.TypeEmbedErr, reply.Type)
	assert.Equal(t, int64(3), reply.ID)
	assert.NotEmpty(t, reply.Error)
}
