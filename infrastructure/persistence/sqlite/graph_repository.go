// Package sqlite stores canvas graphs in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/core/entities"
	"github.com/MartinFunctu/lifeos/domain/core/valueobjects"
	"github.com/MartinFunctu/lifeos/infrastructure/persistence/schema"
	pkgerrors "github.com/MartinFunctu/lifeos/pkg/errors"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS nodes (
	owner_id   TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	label      TEXT    NOT NULL DEFAULT '',
	x          REAL    NOT NULL DEFAULT 0,
	y          REAL    NOT NULL DEFAULT 0,
	payload    TEXT    NOT NULL DEFAULT '{}',
	parent_id  TEXT,
	seq        INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (owner_id, id)
);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(owner_id, parent_id);

CREATE TABLE IF NOT EXISTS edges (
	owner_id   TEXT    NOT NULL,
	id         TEXT    NOT NULL,
	source     TEXT    NOT NULL,
	target     TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (owner_id, id)
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(owner_id, source);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(owner_id, target);
`

// migrations is the schema history of the store. Append, never edit.
var migrations = []schema.Migration{
	{Version: 1, Description: "nodes and edges", Up: schema.Statements(schemaV1)},
}

const nodeColumns = "id, owner_id, kind, label, x, y, payload, seq, created_at, updated_at"

// Config holds SQLite-specific configuration
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// GraphRepository implements ports.GraphRepository on SQLite. Every write
// runs in an IMMEDIATE transaction so reads and the write that depends on
// them see the same snapshot.
type GraphRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var (
	_ ports.GraphRepository = (*GraphRepository)(nil)
	_ ports.HealthChecker   = (*GraphRepository)(nil)
)

// NewGraphRepository opens (and if needed creates) the database at cfg.Path
func NewGraphRepository(ctx context.Context, cfg Config, logger *zap.Logger) (*GraphRepository, error) {
	if cfg.Path == "" {
		cfg.Path = "lifeos.db"
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	evolution, err := schema.NewEvolution(logger, migrations...)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := evolution.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info("SQLite graph store ready", zap.String("path", cfg.Path))

	return &GraphRepository{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database
func (r *GraphRepository) Close() error {
	return r.db.Close()
}

// Ping implements ports.HealthChecker
func (r *GraphRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return pkgerrors.NewStorageError("ping", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction and commits when it returns nil
func (r *GraphRepository) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.NewStorageError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.NewStorageError(op, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(s rowScanner) (*entities.Node, error) {
	var (
		id, owner, kind, label, payloadJSON string
		x, y                                float64
		seq, createdAt, updatedAt           int64
	)
	if err := s.Scan(&id, &owner, &kind, &label, &x, &y, &payloadJSON, &seq, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	nodeID, err := valueobjects.NewNodeIDFromString(id)
	if err != nil {
		return nil, err
	}
	position, err := valueobjects.NewPosition(x, y)
	if err != nil {
		return nil, err
	}
	payload, err := valueobjects.ParsePayloadJSON([]byte(payloadJSON))
	if err != nil {
		return nil, err
	}
	return entities.ReconstructNode(nodeID, owner, entities.NodeKind(kind), label, position, payload, seq,
		time.Unix(0, createdAt).UTC(), time.Unix(0, updatedAt).UTC())
}

func scanEdge(s rowScanner) (*entities.Edge, error) {
	var (
		id, owner, source, target, kind string
		createdAt                       int64
	)
	if err := s.Scan(&id, &owner, &source, &target, &kind, &createdAt); err != nil {
		return nil, err
	}
	src, err := valueobjects.NewNodeIDFromString(source)
	if err != nil {
		return nil, err
	}
	tgt, err := valueobjects.NewNodeIDFromString(target)
	if err != nil {
		return nil, err
	}
	return entities.ReconstructEdge(id, owner, src, tgt, entities.EdgeKind(kind), time.Unix(0, createdAt).UTC())
}

func (r *GraphRepository) queryNodes(ctx context.Context, q queryer, op, where string, args ...interface{}) ([]*entities.Node, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, pkgerrors.NewStorageError(op, err)
	}
	defer rows.Close()

	nodes := []*entities.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, pkgerrors.NewStorageError(op, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewStorageError(op, err)
	}
	return nodes, nil
}

func (r *GraphRepository) queryEdges(ctx context.Context, q queryer, op, where string, args ...interface{}) ([]*entities.Edge, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, owner_id, source, target, kind, created_at FROM edges WHERE "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, pkgerrors.NewStorageError(op, err)
	}
	defer rows.Close()

	edges := []*entities.Edge{}
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, pkgerrors.NewStorageError(op, err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewStorageError(op, err)
	}
	return edges, nil
}

func (r *GraphRepository) getNode(ctx context.Context, q queryer, owner string, id valueobjects.NodeID) (*entities.Node, error) {
	row := q.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE owner_id = ? AND id = ?", owner, id.String())
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNodeNotFoundError(id.String())
	}
	if err != nil {
		return nil, pkgerrors.NewStorageError("get_node", err)
	}
	return n, nil
}

func (r *GraphRepository) nodeExists(ctx context.Context, q queryer, owner, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM nodes WHERE owner_id = ? AND id = ?", owner, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.NewStorageError("node_exists", err)
	}
	return true, nil
}

func (r *GraphRepository) ListNodes(ctx context.Context, owner string) ([]*entities.Node, error) {
	return r.queryNodes(ctx, r.db, "list_nodes", "owner_id = ?", owner)
}

func (r *GraphRepository) GetNode(ctx context.Context, owner string, id valueobjects.NodeID) (*entities.Node, error) {
	return r.getNode(ctx, r.db, owner, id)
}

func (r *GraphRepository) ListChildren(ctx context.Context, owner string, parent valueobjects.NodeID) ([]*entities.Node, error) {
	return r.queryNodes(ctx, r.db, "list_children", "owner_id = ? AND parent_id = ?", owner, parent.String())
}

func (r *GraphRepository) CreateNode(ctx context.Context, owner string, node *entities.Node) (*entities.Node, bool, error) {
	var (
		stored  *entities.Node
		created bool
	)
	err := r.withTx(ctx, "create_node", func(tx *sql.Tx) error {
		if parent, ok := node.ParentID(); ok {
			exists, err := r.nodeExists(ctx, tx, owner, parent.String())
			if err != nil {
				return err
			}
			if !exists {
				existing, getErr := r.getNode(ctx, tx, owner, node.ID())
				if getErr == nil {
					stored = existing
					return nil
				}
				return pkgerrors.NewParentNotFoundError(parent.String())
			}
		}

		payloadJSON, err := node.Payload().MarshalJSON()
		if err != nil {
			return pkgerrors.NewValidationError(err.Error())
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO nodes (`+nodeColumns+`, parent_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			node.ID().String(), owner, string(node.Kind()), node.Label(),
			node.Position().X(), node.Position().Y(), string(payloadJSON), node.Seq(),
			node.CreatedAt().UnixNano(), node.UpdatedAt().UnixNano(), nullable(node.ParentKey()),
		)
		if err != nil {
			return pkgerrors.NewStorageError("create_node", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return pkgerrors.NewStorageError("create_node", err)
		}
		created = affected == 1

		stored, err = r.getNode(ctx, tx, owner, node.ID())
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *GraphRepository) UpdateNode(ctx context.Context, owner string, id valueobjects.NodeID, patch entities.NodePatch) (*entities.Node, error) {
	var updated *entities.Node
	err := r.withTx(ctx, "update_node", func(tx *sql.Tx) error {
		current, err := r.getNode(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		if parent, touched := patch.NewParent(); touched && !parent.IsZero() && !parent.Equals(id) {
			exists, err := r.nodeExists(ctx, tx, owner, parent.String())
			if err != nil {
				return err
			}
			if !exists {
				return pkgerrors.NewParentNotFoundError(parent.String())
			}
		}

		if err := current.Apply(patch, r.now()); err != nil {
			return err
		}
		current.MarkEventsAsCommitted()
		if err := r.writeNode(ctx, tx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *GraphRepository) writeNode(ctx context.Context, tx *sql.Tx, n *entities.Node) error {
	payloadJSON, err := n.Payload().MarshalJSON()
	if err != nil {
		return pkgerrors.NewValidationError(err.Error())
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET label = ?, x = ?, y = ?, payload = ?, parent_id = ?, seq = ?, updated_at = ?
		 WHERE owner_id = ? AND id = ?`,
		n.Label(), n.Position().X(), n.Position().Y(), string(payloadJSON), nullable(n.ParentKey()),
		n.Seq(), n.UpdatedAt().UnixNano(), n.OwnerID(), n.ID().String(),
	)
	if err != nil {
		return pkgerrors.NewStorageError("update_node", err)
	}
	return nil
}

func (r *GraphRepository) DeleteNode(ctx context.Context, owner string, id valueobjects.NodeID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM nodes WHERE owner_id = ? AND id = ?", owner, id.String())
	if err != nil {
		return pkgerrors.NewStorageError("delete_node", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.NewNodeNotFoundError(id.String())
	}
	return nil
}

func (r *GraphRepository) ListEdges(ctx context.Context, owner string) ([]*entities.Edge, error) {
	return r.queryEdges(ctx, r.db, "list_edges", "owner_id = ?", owner)
}

func (r *GraphRepository) ListEdgesForNode(ctx context.Context, owner string, id valueobjects.NodeID) ([]*entities.Edge, error) {
	return r.queryEdges(ctx, r.db, "list_edges_for_node", "owner_id = ? AND (source = ? OR target = ?)", owner, id.String(), id.String())
}

func (r *GraphRepository) CreateEdge(ctx context.Context, owner string, edge *entities.Edge) (*entities.Edge, bool, error) {
	var (
		stored  *entities.Edge
		created bool
	)
	err := r.withTx(ctx, "create_edge", func(tx *sql.Tx) error {
		existing, err := r.queryEdges(ctx, tx, "create_edge", "owner_id = ? AND id = ?", owner, edge.ID())
		if err != nil {
			return err
		}
		if len(existing) == 1 {
			stored = existing[0]
			return nil
		}

		for _, endpoint := range []valueobjects.NodeID{edge.Source(), edge.Target()} {
			exists, err := r.nodeExists(ctx, tx, owner, endpoint.String())
			if err != nil {
				return err
			}
			if !exists {
				return pkgerrors.NewEndpointNotFoundError(endpoint.String())
			}
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO edges (id, owner_id, source, target, kind, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			edge.ID(), owner, edge.Source().String(), edge.Target().String(), string(edge.Kind()), edge.CreatedAt().UnixNano(),
		)
		if err != nil {
			return pkgerrors.NewStorageError("create_edge", err)
		}
		stored = edge.Clone()
		stored.AssignOwner(owner)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *GraphRepository) DeleteEdge(ctx context.Context, owner string, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM edges WHERE owner_id = ? AND id = ?", owner, id)
	if err != nil {
		return pkgerrors.NewStorageError("delete_edge", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.NewEdgeNotFoundError(id)
	}
	return nil
}

// CascadeNodes applies the request in one transaction
func (r *GraphRepository) CascadeNodes(ctx context.Context, owner string, req ports.CascadeRequest) ([]string, error) {
	if len(req.Delete) == 0 {
		return []string{}, nil
	}

	removed := []string{}
	err := r.withTx(ctx, "cascade_nodes", func(tx *sql.Tx) error {
		if _, err := r.getNode(ctx, tx, owner, req.Delete[0]); err != nil {
			return err
		}

		doomed := make([]interface{}, 0, len(req.Delete))
		isDoomed := make(map[string]bool, len(req.Delete))
		for _, id := range req.Delete {
			doomed = append(doomed, id.String())
			isDoomed[id.String()] = true
		}
		in := placeholders(len(doomed))

		args := append([]interface{}{owner}, doomed...)
		edges, err := r.queryEdges(ctx, tx, "cascade_nodes",
			"owner_id = ? AND (source IN ("+in+") OR target IN ("+in+"))", append(args, doomed...)...)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE owner_id = ? AND id = ?", owner, e.ID()); err != nil {
				return pkgerrors.NewStorageError("cascade_nodes", err)
			}
			removed = append(removed, e.ID())
		}

		now := r.now()
		for _, id := range req.Reparent {
			if isDoomed[id.String()] {
				continue
			}
			child, err := r.getNode(ctx, tx, owner, id)
			if pkgerrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			child.Reparent(now)
			child.MarkEventsAsCommitted()
			if err := r.writeNode(ctx, tx, child); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE owner_id = ? AND id IN ("+in+")", args...); err != nil {
			return pkgerrors.NewStorageError("cascade_nodes", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(removed)
	return removed, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
