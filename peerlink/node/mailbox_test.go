package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxFIFO(t *testing.T) {
	m := newMailbox()
	var got []int
	for i := 0; i < 5; i++ {
		m.push(func() { got = append(got, i) })
	}
	assert.Equal(t, 5, m.len())
	require.Len(t, m.ready, 1)

	for {
		job, ok := m.pop()
		if !ok {
			break
		}
		job()
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	assert.Zero(t, m.len())
}
