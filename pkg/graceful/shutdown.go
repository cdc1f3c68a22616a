package graceful

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relayport/relay_service/pkg/logger"
)

// Stopper is implemented by long-running components (workers, pollers)
type Stopper interface {
	Stop()
}

// ShutdownManager coordinates ordered teardown of the service
type ShutdownManager struct {
	server   *http.Server
	db       *sql.DB
	stoppers []Stopper
	closers  []func() error
	logger   *logger.Logger
}

func NewShutdownManager(server *http.Server, db *sql.DB, logger *logger.Logger) *ShutdownManager {
	return &ShutdownManager{
		server: server,
		db:     db,
		logger: logger,
	}
}

// Register adds a component stopped before the HTTP server
func (sm *ShutdownManager) Register(s Stopper) {
	sm.stoppers = append(sm.stoppers, s)
}

// RegisterCloser adds a closer invoked after the HTTP server stops
func (sm *ShutdownManager) RegisterCloser(fn func() error) {
	sm.closers = append(sm.closers, fn)
}

// WaitForShutdown blocks until SIGINT/SIGTERM and then tears everything down
func (sm *ShutdownManager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sm.logger.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, s := range sm.stoppers {
		s.Stop()
	}

	if err := sm.server.Shutdown(ctx); err != nil {
		sm.logger.Error("Server forced shutdown", "error", err)
	}

	for _, fn := range sm.closers {
		if err := fn(); err != nil {
			sm.logger.Warn("Component close error", "error", err)
		}
	}

	if err := sm.db.Close(); err != nil {
		sm.logger.Warn("Database close error", "error", err)
	}

	sm.logger.Info("Shutdown complete")
}
