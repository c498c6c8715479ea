package canvasclient

import (
	"context"
	"sync"

	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/pkg/api"
	"github.com/MartinFunctu/lifeos/pkg/common"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

// Drag moves one node through many intermediate positions that only touch
// the mirror. End commits the final position as a single update.
type Drag struct {
	client *Client
	id     string
	before *entities.Node

	// pending fields of the node when the drag began
	pendingBefore api.UpdateNodeRequest
	hadPending    bool

	mu    sync.Mutex
	seq   int64
	x, y  float64
	moved bool
	ended bool
}

// BeginDrag starts dragging node id
func (c *Client) BeginDrag(id string) (*Drag, error) {
	m := c.mirror
	m.mu.RLock()
	defer m.mu.RUnlock()
	before, ok := m.nodes[id]
	if !ok {
		return nil, pkgerrors.NewNodeNotFoundError(id)
	}
	pending, hadPending := m.pending[id]
	return &Drag{client: c, id: id, before: before, pendingBefore: pending, hadPending: hadPending}, nil
}

// Move places the node at (x, y) locally
func (d *Drag) Move(x, y float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended {
		return nil
	}

	seq := d.client.nextSeq()
	m := d.client.mirror
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[d.id]
	if !ok {
		return pkgerrors.NewNodeNotFoundError(d.id)
	}
	next := current.Clone()
	patch := entities.NodePatch{X: common.Some(x), Y: common.Some(y)}
	if err := next.Apply(patch, d.client.now()); err != nil {
		return err
	}
	next.MarkEventsAsCommitted()
	m.putNode(next)
	m.latest[nodeKey(d.id)] = seq
	m.pending[d.id] = mergePatch(m.pending[d.id], api.UpdateNodeRequest{X: common.Some(x), Y: common.Some(y)})

	d.seq, d.x, d.y, d.moved = seq, x, y, true
	return nil
}

// End commits the last position. A drag without moves commits nothing. On
// failure the node returns to where the drag started.
func (d *Drag) End(ctx context.Context) error {
	d.mu.Lock()
	if d.ended || !d.moved {
		d.ended = true
		d.mu.Unlock()
		return nil
	}
	d.ended = true

	m := d.client.mirror
	m.mu.RLock()
	patch := mergePatch(m.pending[d.id], api.UpdateNodeRequest{X: common.Some(d.x), Y: common.Some(d.y)})
	m.mu.RUnlock()

	h := &Handle{
		client:    d.client,
		mutation:  UpdateNode(d.id, patch),
		seq:       d.seq,
		snapshots: []snapshot{{key: nodeKey(d.id), id: d.id, node: d.before}},
	}
	d.mu.Unlock()

	return d.client.Commit(ctx, h)
}

// Cancel puts the node back where the drag started without contacting the service
func (d *Drag) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ended {
		return
	}
	d.ended = true
	if !d.moved {
		return
	}
	h := &Handle{
		client:    d.client,
		seq:       d.seq,
		snapshots: []snapshot{{key: nodeKey(d.id), id: d.id, node: d.before}},
	}
	h.Rollback()

	m := d.client.mirror
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest[nodeKey(d.id)] != d.seq {
		return
	}
	if d.hadPending {
		m.pending[d.id] = d.pendingBefore
	} else {
		delete(m.pending, d.id)
	}
}
