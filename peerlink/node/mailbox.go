package node

import "sync"

// mailbox is an unbounded FIFO of work for the node loop. Push never blocks, so a node
// can hand a message to a peer from inside its own loop.
type mailbox struct {
	mu    sync.Mutex
	queue []func()
	ready chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) push(job func()) {
	m.mu.Lock()
	m.queue = append(m.queue, job)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) pop() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, false
	}
	job := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	return job, true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
