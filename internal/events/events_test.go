package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/alcove/internal/events"
)

func TestPublisher_NilConnectionIsNoOp(t *testing.T) {
	p := events.NewPublisher(nil, nil)

	// None of these may panic or error without a connection.
	p.LibraryCreated("lib1")
	p.LibraryDropped("lib1")
	p.DocumentIngested("lib1", "doc1", 12)
	p.DocumentDeleted("lib1", "doc1")
	p.Close()
}

func TestPublisher_NilReceiverIsSafe(t *testing.T) {
	var p *events.Publisher
	p.DocumentIngested("lib1", "doc1", 3)
	p.Close()
}

func TestConnect_EmptyURLDisablesEventing(t *testing.T) {
	p, err := events.Connect("", nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	p.DocumentIngested("lib1", "doc1", 1)
}

func TestConnect_UnreachableServer(t *testing.T) {
	_, err := events.Connect("nats://127.0.0.1:1", nil)
	assert.Error(t, err)
}
