// Package navigation holds the breadcrumb state machine for drilling into
// nested canvases.
package navigation

import (
	"strings"
	"sync"
	"time"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
)

// DefaultSettleDelay is how long the controller waits before announcing a
// transition, giving the canvas time to re-fit to the new visible set.
const DefaultSettleDelay = 50 * time.Millisecond

// Crumb is one step of the drill-in trail
type Crumb struct {
	NodeID string `json:"id"`
	Label  string `json:"label"`
}

// Path is the ordered trail from the root canvas to the current view.
// The empty path is the root canvas.
type Path []Crumb

// CurrentParentID returns the id whose children are visible, or "" at root
func (p Path) CurrentParentID() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1].NodeID
}

// IsRoot reports whether the path points at the root canvas
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// IDs returns the node ids of the path
func (p Path) IDs() []string {
	ids := make([]string, len(p))
	for i, c := range p {
		ids[i] = c.NodeID
	}
	return ids
}

// Clone returns an independent copy
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// String renders the path as a comma separated id list, the format of the
// ?path= query parameter
func (p Path) String() string {
	return strings.Join(p.IDs(), ",")
}

// ParsePath parses a comma separated id list. Labels are not part of the
// query format and are left empty.
func ParsePath(raw string) Path {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var p Path
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			p = append(p, Crumb{NodeID: id})
		}
	}
	return p
}

// Option configures a Controller
type Option func(*Controller)

// WithSettleDelay overrides the settle delay. Zero or negative announces
// transitions synchronously.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) { c.settle = d }
}

// WithChildProbe lets the controller treat nodes with children as navigable
// even when they carry no sub-blocks.
func WithChildProbe(hasChildren func(nodeID string) bool) Option {
	return func(c *Controller) { c.hasChildren = hasChildren }
}

// OnChange registers the callback invoked after each transition settles
func OnChange(fn func(Path)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller is the navigation state machine. It is safe for concurrent use.
type Controller struct {
	mu          sync.Mutex
	path        Path
	settle      time.Duration
	timer       *time.Timer
	onChange    func(Path)
	hasChildren func(nodeID string) bool
}

// NewController returns a controller positioned at the root canvas
func NewController(opts ...Option) *Controller {
	c := &Controller{settle: DefaultSettleDelay}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Navigable reports whether node can be entered
func (c *Controller) Navigable(node *entities.Node) bool {
	if node == nil {
		return false
	}
	if node.HasSubBlocks() {
		return true
	}
	return c.hasChildren != nil && c.hasChildren(node.ID().String())
}

// Enter pushes node onto the path. Entering a node that is not navigable is a
// no-op and returns false.
func (c *Controller) Enter(node *entities.Node) bool {
	if !c.Navigable(node) {
		return false
	}

	c.mu.Lock()
	c.path = append(c.path.Clone(), Crumb{NodeID: node.ID().String(), Label: node.Label()})
	c.mu.Unlock()

	c.schedule()
	return true
}

// JumpTo truncates the path to index+1 entries. A negative index returns to
// the root canvas; an index past the end is a no-op.
func (c *Controller) JumpTo(index int) bool {
	c.mu.Lock()
	if index >= len(c.path) {
		c.mu.Unlock()
		return false
	}
	if index < 0 {
		c.path = nil
	} else {
		c.path = c.path[:index+1].Clone()
	}
	c.mu.Unlock()

	c.schedule()
	return true
}

// Reset returns to the root canvas
func (c *Controller) Reset() {
	c.mu.Lock()
	c.path = nil
	c.mu.Unlock()

	c.schedule()
}

// Path returns a copy of the current path
func (c *Controller) Path() Path {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path.Clone()
}

// CurrentParentID returns the id whose children are visible, or "" at root
func (c *Controller) CurrentParentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path.CurrentParentID()
}

// Stop cancels a pending change notification
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// schedule announces the transition after the settle delay. Rapid transitions
// coalesce into one notification carrying the latest path.
func (c *Controller) schedule() {
	if c.onChange == nil {
		return
	}
	if c.settle <= 0 {
		c.onChange(c.Path())
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.settle, func() {
		c.onChange(c.Path())
	})
}
