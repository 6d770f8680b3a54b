package manager

import (
	"time"

	"go.uber.org/zap"

	"github.com/tablelink/tablelink/pkg/metrics"
)

// StartReaper runs the idle-handle sweep on the configured interval until
// shutdown. Reaped connections keep their credential record and registry
// entry; the pool factory silently re-materializes them on next use.
func (m *Manager) StartReaper() {
	go func() {
		ticker := time.NewTicker(m.cfg.Reaper.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.reapIdle()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// reapIdle closes every handle unused past the idle threshold. The sweep
// skips entirely once draining so it never resurrects or races handles the
// shutdown fan-out is closing.
func (m *Manager) reapIdle() {
	if m.draining.Load() {
		return
	}

	threshold := m.now().Add(-m.cfg.Reaper.IdleThreshold)

	type idleHandle struct {
		id   string
		conn Conn
	}
	var idle []idleHandle

	m.mu.Lock()
	for id, ent := range m.entries {
		if ent.conn != nil && ent.lastUsed.Before(threshold) {
			idle = append(idle, idleHandle{id: id, conn: ent.conn})
			ent.conn = nil
		}
	}
	m.mu.Unlock()

	for _, handle := range idle {
		// Close failures must not block the sweep; log and move on.
		if err := handle.conn.Close(); err != nil {
			m.logger.Warn("idle handle close failed",
				zap.String("id", handle.id), zap.Error(err))
		}
		metrics.LiveHandles.Dec()
		metrics.ReapedHandles.Inc()
		m.logger.Info("idle handle reaped", zap.String("id", handle.id))
	}
}
