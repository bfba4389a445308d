package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/presence/pkg/protocol"
)

func TestConn_SendBufferFullCloses(t *testing.T) {
	c := newConn("c1", nil)

	for range sendBuffer {
		require.NoError(t, c.Send(protocol.Authenticated()))
	}
	assert.ErrorIs(t, c.Send(protocol.Authenticated()), ErrSendBufferFull)
	assert.ErrorIs(t, c.Send(protocol.Authenticated()), ErrConnClosed)
	assert.ErrorIs(t, c.Ping(), ErrConnClosed)
}

func TestConn_CloseOnce(t *testing.T) {
	c := newConn("c1", nil)

	require.NoError(t, c.Close(protocol.ClosePolicyViolation, "first"))
	require.NoError(t, c.Close(protocol.CloseNormal, "second"))
	c.abandon()

	assert.Equal(t, "c1", c.ID())
	assert.Contains(t, string(c.closeMsg), "first")
}

func TestConn_PingIsQueuedForWritePump(t *testing.T) {
	c := newConn("c1", nil)

	// No write pump is running; Ping must still return at once.
	require.NoError(t, c.Ping())
	require.NoError(t, c.Ping())
	assert.Len(t, c.ping, 1)

	require.NoError(t, c.Close(protocol.CloseNormal, "bye"))
	assert.ErrorIs(t, c.Ping(), ErrConnClosed)
}

func TestReadLimit(t *testing.T) {
	assert.Equal(t, int64(2000*bytesPerChar+frameOverhead), ReadLimit(2000))
	assert.Equal(t, int64(frameOverhead), ReadLimit(0))
}
