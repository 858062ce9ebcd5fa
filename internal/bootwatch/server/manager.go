package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/bootwatch/pkg/log"
)

// Server defines the common interface for all long-running components
// (HTTP surface, transport sources, notifier).
type Server interface {
	Start(ctx context.Context) error
}

// Named attaches a name to a Server for logging.
type Named struct {
	Name string
	Server
}

// Manager manages the lifecycle of all servers.
type Manager struct {
	servers []Named
}

// NewManager creates a server manager.
func NewManager(servers ...Named) *Manager {
	return &Manager{servers: servers}
}

// Add registers another server. It must be called before Start.
func (m *Manager) Add(name string, s Server) {
	m.servers = append(m.servers, Named{Name: name, Server: s})
}

// Start launches all servers in parallel and waits for termination. The first
// server to fail cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range m.servers {
		g.Go(func() error {
			err := s.Start(ctx)
			if err != nil {
				log.Error(err, "Server stopped with error", "server", s.Name)
			} else {
				log.Debug("Server stopped", "server", s.Name)
			}
			return err
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
