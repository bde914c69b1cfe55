package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/berfenger/battseq/pkg/bms_modbus"
)

type pendingWrite struct {
	addr  uint16
	value uint16
}

// registerMirror queues register writes issued by the control cycle until
// the next Sync. A newer write to the same address replaces the queued one
// and keeps its position.
type registerMirror struct {
	client bms_modbus.RegisterClient
	mu     sync.Mutex
	queue  []pendingWrite
}

func (m *registerMirror) write(addr uint16, value uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.queue {
		if m.queue[i].addr == addr {
			m.queue[i].value = value
			return
		}
	}
	m.queue = append(m.queue, pendingWrite{addr: addr, value: value})
}

func (m *registerMirror) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// flush sends queued writes in order. On failure the failed write and
// everything after it stay queued for the next attempt.
func (m *registerMirror) flush(ctx context.Context) error {
	m.mu.Lock()
	writes := m.queue
	m.queue = nil
	m.mu.Unlock()

	for i, w := range writes {
		err := ctx.Err()
		if err == nil {
			err = m.client.WriteRegister(w.addr, w.value)
		}
		if err != nil {
			m.requeue(writes[i:])
			return fmt.Errorf("write register 0x%04x: %w", w.addr, err)
		}
	}
	return nil
}

// requeue puts unsent writes back in front of anything queued meanwhile.
func (m *registerMirror) requeue(writes []pendingWrite) {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := append([]pendingWrite(nil), writes...)
	for _, w := range m.queue {
		replaced := false
		for i := range merged {
			if merged[i].addr == w.addr {
				merged[i].value = w.value
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, w)
		}
	}
	m.queue = merged
}
