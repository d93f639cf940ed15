package grant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablePutLookup(t *testing.T) {
	tr := newTriple(t)
	table := NewTable()
	g, err := Issue(tr.handler, tr.requester, tr.receiver, time.Now(), 0)
	require.NoError(t, err)

	table.Put(g)
	assert.Equal(t, 1, table.Count())

	got, err := table.Lookup(Triple{Handler: tr.handler, Requester: tr.requester, Receiver: tr.receiver})
	require.NoError(t, err)
	assert.Same(t, g, got)

	_, err = table.Lookup(Triple{Handler: tr.handler, Requester: tr.receiver, Receiver: tr.requester})
	require.ErrorIs(t, err, ErrGrantNotFound)
}

func TestTableKeepsRolesApart(t *testing.T) {
	tr := newTriple(t)
	table := NewTable()

	// this node holds handler's grant for requester -> receiver, and itself introduces
	// handler to receiver
	held, err := Issue(tr.handler, tr.requester, tr.receiver, time.Now(), 0)
	require.NoError(t, err)
	issued, err := Issue(tr.receiver, tr.handler, tr.requester, time.Now(), 0)
	require.NoError(t, err)
	table.Put(held)
	table.Put(issued)

	assert.Equal(t, 2, table.Count())
	got, err := table.Lookup(held.Triple())
	require.NoError(t, err)
	assert.Equal(t, held.ID, got.ID)
	got, err = table.Lookup(issued.Triple())
	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
}

func TestTableExpireOnce(t *testing.T) {
	tr := newTriple(t)
	table := NewTable()
	g, err := Issue(tr.handler, tr.requester, tr.receiver, time.Now(), 0)
	require.NoError(t, err)
	table.Put(g)

	assert.True(t, table.Expire(g.Triple()))
	assert.False(t, table.Expire(g.Triple()))
	assert.False(t, table.Expire(Triple{}))
	assert.True(t, g.Expired)

	// consumed grants remain on file
	assert.Equal(t, 1, table.Count())
}

func TestTableRevoke(t *testing.T) {
	tr := newTriple(t)
	table := NewTable()
	g, err := Issue(tr.handler, tr.requester, tr.receiver, time.Now(), 0)
	require.NoError(t, err)
	table.Put(g)
	assert.True(t, table.Revoke(g.Triple()))
	assert.False(t, table.Revoke(g.Triple()))

	_, err = table.Lookup(g.Triple())
	require.ErrorIs(t, err, ErrGrantNotFound)
}

func TestTableCleanup(t *testing.T) {
	tr := newTriple(t)
	table := NewTable()
	now := time.Unix(1_700_000_000, 0)

	short, err := Issue(tr.handler, tr.requester, tr.receiver, now, time.Second)
	require.NoError(t, err)
	long, err := Issue(tr.handler, tr.receiver, tr.requester, now, time.Hour)
	require.NoError(t, err)
	table.Put(short)
	table.Put(long)

	removed := table.Cleanup(now.Add(time.Minute))
	require.Len(t, removed, 1)
	assert.Equal(t, short.ID, removed[0].ID)
	assert.True(t, removed[0].Expired)
	assert.Equal(t, 1, table.Count())

	snap := table.Snapshot()
	require.Contains(t, snap, long.Triple())
}
