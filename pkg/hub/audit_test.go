package hub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/presence/pkg/audit"
	"github.com/txn2/presence/pkg/protocol"
	"github.com/txn2/presence/pkg/social"
)

func TestAuditRecordsAuthentication(t *testing.T) {
	f := newFixture(t)
	log := audit.NewMemoryLogger(0)
	f.hub.audit = log

	f.login("c1", testAlice)
	stranger := f.connect("c2")
	f.send(stranger, protocol.TypeAuthenticate, f.token("dave", testChannel))

	events, err := log.Query(context.Background(), audit.QueryFilter{Action: audit.ActionAuthenticate})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "dave", events[0].Actor)
	assert.Equal(t, "c2", events[0].Connection)
	assert.False(t, events[0].Success)
	assert.NotEmpty(t, events[0].ErrorMessage)

	assert.Equal(t, testAlice, events[1].Actor)
	assert.True(t, events[1].Success)
}

func TestAuditRecordsRelationshipChanges(t *testing.T) {
	f := newFixture(t)
	log := audit.NewMemoryLogger(0)
	f.hub.audit = log

	alice := f.login("c1", testAlice)
	f.send(alice, protocol.TypeAddFriend, testBob)
	f.send(alice, protocol.TypeAddFoe, testAlice)

	failed := false
	events, err := log.Query(context.Background(), audit.QueryFilter{Actor: testAlice, Success: &failed})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionRequestFoe, events[0].Action)
	assert.Equal(t, social.ErrSelfReference.Error(), events[0].ErrorMessage)

	events, err = log.Query(context.Background(), audit.QueryFilter{Action: audit.ActionRequestFriend})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, testBob, events[0].Target)
	assert.True(t, events[0].Success)
}

type failingLogger struct {
	*audit.MemoryLogger
}

func (failingLogger) Log(context.Context, audit.Event) error {
	return errors.New("audit sink unavailable")
}

func TestAuditFailureDoesNotBlockRequests(t *testing.T) {
	f := newFixture(t)
	f.hub.audit = failingLogger{audit.NewMemoryLogger(0)}

	alice := f.login("c1", testAlice)
	f.send(alice, protocol.TypeAddFriend, testBob)

	_, ok := alice.Last(protocol.RespError)
	assert.False(t, ok)
}
