package canvasclient

import (
	"context"

	"github.com/MartinFunctu/lifeos/domain/navigation"
	"github.com/MartinFunctu/lifeos/domain/view"
)

// Session pairs a client's mirror with a navigation controller: the view is
// always the mirror resolved against the current path.
type Session struct {
	client *Client
	nav    *navigation.Controller
}

// NewSession creates a session at the root canvas. Nodes with children in
// the mirror are navigable in addition to nodes with sub-blocks.
func NewSession(client *Client, opts ...navigation.Option) *Session {
	opts = append([]navigation.Option{navigation.WithChildProbe(client.mirror.HasChildren)}, opts...)
	return &Session{
		client: client,
		nav:    navigation.NewController(opts...),
	}
}

// Client returns the underlying client
func (s *Session) Client() *Client { return s.client }

// Load refreshes the mirror from the service
func (s *Session) Load(ctx context.Context) error {
	return s.client.Load(ctx)
}

// View resolves the visible nodes and edges for the current path
func (s *Session) View() view.View {
	return s.client.mirror.View(s.nav.Path())
}

// Enter drills into node id. Unknown or non-navigable nodes are ignored.
func (s *Session) Enter(id string) bool {
	node, _ := s.client.mirror.Node(id)
	return s.nav.Enter(node)
}

// JumpTo truncates the breadcrumb trail; a negative index goes to the root
func (s *Session) JumpTo(index int) bool {
	return s.nav.JumpTo(index)
}

// Reset returns to the root canvas
func (s *Session) Reset() {
	s.nav.Reset()
}

// Path returns the breadcrumb trail
func (s *Session) Path() navigation.Path {
	return s.nav.Path()
}

// Close cancels pending navigation notifications
func (s *Session) Close() {
	s.nav.Stop()
}
