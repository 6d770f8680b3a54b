package manager

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tablelink/tablelink/pkg/metrics"
)

// Shutdown moves the manager from running to draining and tears down every
// live handle. The transition fires exactly once and is terminal: from the
// first call on, every public operation fails fast with shutting_down. All
// pool closes run concurrently, each bounded by the configured close
// timeout; a close that overruns its budget is logged and abandoned rather
// than blocking shutdown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		m.draining.Store(true)
		close(m.stopCh)

		m.logger.Info("shutdown started, draining connections")

		type liveHandle struct {
			id   string
			conn Conn
		}

		m.mu.Lock()
		handles := make([]liveHandle, 0, len(m.entries))
		for id, ent := range m.entries {
			if ent.conn != nil {
				handles = append(handles, liveHandle{id: id, conn: ent.conn})
				ent.conn = nil
			}
		}
		m.mu.Unlock()

		var g errgroup.Group
		for _, handle := range handles {
			handle := handle
			g.Go(func() error {
				closeCtx, cancel := context.WithTimeout(ctx, m.cfg.Pool.CloseTimeout)
				defer cancel()

				done := make(chan error, 1)
				go func() {
					done <- handle.conn.Close()
				}()

				select {
				case err := <-done:
					if err != nil {
						m.logger.Warn("handle close failed during shutdown",
							zap.String("id", handle.id), zap.Error(err))
					}
				case <-closeCtx.Done():
					m.logger.Warn("handle close timed out, abandoning",
						zap.String("id", handle.id),
						zap.Duration("timeout", m.cfg.Pool.CloseTimeout))
				}
				return nil
			})
		}
		_ = g.Wait()

		m.mu.Lock()
		m.entries = make(map[string]*entry)
		m.mu.Unlock()
		m.cache.clear()
		metrics.LiveHandles.Set(0)
		metrics.RegisteredConnections.Set(0)

		m.logger.Info("shutdown complete", zap.Int("handles_closed", len(handles)))
	})
}
