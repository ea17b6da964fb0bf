package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lyriclab/internal/domain"
)

var _ domain.HistoryStore = (*HistoryStore)(nil)

const defaultHistoryLimit = 40

// HistoryStore keeps the undo tree of every project.
type HistoryStore struct {
	db    *DB
	limit int
}

// NewHistoryStore returns a store that keeps at most limit nodes per project.
func NewHistoryStore(db *DB, limit int) *HistoryStore {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &HistoryStore{db: db, limit: limit}
}

const historyColumns = `id, project_id, parent_id, label, snapshot_json, created_at`

func scanNode(row interface{ Scan(...any) error }) (*domain.HistoryNode, error) {
	var n domain.HistoryNode
	var parent sql.NullString
	var created int64
	if err := row.Scan(&n.ID, &n.ProjectID, &parent, &n.Label, &n.Snapshot, &created); err != nil {
		return nil, err
	}
	if parent.Valid {
		n.ParentID = &parent.String
	}
	n.CreatedAt = time.Unix(0, created)
	return &n, nil
}

// LoadTree returns the full undo tree for a project, or nil when there is none.
func (s *HistoryStore) LoadTree(ctx context.Context, projectID string) (*domain.HistoryTree, error) {
	rows, err := s.db.query(ctx,
		`SELECT `+historyColumns+` FROM history_nodes WHERE project_id = ? ORDER BY created_at ASC`, projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("load history nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.HistoryNode
	var rootID string
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history node: %w", err)
		}
		if n.ParentID == nil && rootID == "" {
			rootID = n.ID
		}
		nodes = append(nodes, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}

	currentID, err := s.currentID(ctx, projectID)
	if err != nil || currentID == "" {
		currentID = rootID
	}

	return &domain.HistoryTree{Nodes: nodes, CurrentID: currentID, RootID: rootID}, nil
}

// Push inserts a new node under parentID and moves the current pointer to it.
func (s *HistoryStore) Push(ctx context.Context, projectID, parentID, label, snapshot string) (*domain.HistoryNode, error) {
	node := &domain.HistoryNode{
		ID:        domain.NewID(),
		ProjectID: projectID,
		Label:     label,
		Snapshot:  snapshot,
		CreatedAt: time.Now(),
	}
	if parentID != "" {
		node.ParentID = &parentID
	}

	_, err := s.db.exec(ctx,
		`INSERT INTO history_nodes (`+historyColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		node.ID, projectID, node.ParentID, label, snapshot, node.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert history node: %w", err)
	}

	if err := s.GoTo(ctx, projectID, node.ID); err != nil {
		return nil, fmt.Errorf("update history state: %w", err)
	}

	if err := s.Prune(ctx, projectID, s.limit); err != nil {
		return nil, err
	}
	return node, nil
}

// Current returns the node the project currently points at, or nil.
func (s *HistoryStore) Current(ctx context.Context, projectID string) (*domain.HistoryNode, error) {
	id, err := s.currentID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}
	return s.Node(ctx, id)
}

// Node returns a node by id, or nil when it does not exist.
func (s *HistoryStore) Node(ctx context.Context, id string) (*domain.HistoryNode, error) {
	n, err := scanNode(s.db.queryRow(ctx, `SELECT `+historyColumns+` FROM history_nodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get history node: %w", err)
	}
	return n, nil
}

// LatestChild returns the most recently created child of nodeID, or nil.
func (s *HistoryStore) LatestChild(ctx context.Context, nodeID string) (*domain.HistoryNode, error) {
	n, err := scanNode(s.db.queryRow(ctx,
		`SELECT `+historyColumns+` FROM history_nodes WHERE parent_id = ? ORDER BY created_at DESC LIMIT 1`, nodeID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest child: %w", err)
	}
	return n, nil
}

// GoTo updates the current position pointer.
func (s *HistoryStore) GoTo(ctx context.Context, projectID, nodeID string) error {
	_, err := s.db.exec(ctx,
		s.db.upsert("history_state", "project_id", "current_node_id"),
		projectID, nodeID,
	)
	return err
}

// Clear removes all history for a project.
func (s *HistoryStore) Clear(ctx context.Context, projectID string) error {
	if _, err := s.db.exec(ctx, `DELETE FROM history_state WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("clear history state: %w", err)
	}
	_, err := s.db.exec(ctx, `DELETE FROM history_nodes WHERE project_id = ?`, projectID)
	return err
}

// Projects lists every project id that has history.
func (s *HistoryStore) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.query(ctx, `SELECT DISTINCT project_id FROM history_nodes`)
	if err != nil {
		return nil, fmt.Errorf("list history projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Prune removes the oldest nodes when a project holds more than maxNodes.
// The current node is never removed; children of a removed node are
// re-parented to its parent.
func (s *HistoryStore) Prune(ctx context.Context, projectID string, maxNodes int) error {
	var count int
	if err := s.db.queryRow(ctx, `SELECT COUNT(*) FROM history_nodes WHERE project_id = ?`, projectID).Scan(&count); err != nil {
		return fmt.Errorf("count history nodes: %w", err)
	}
	if count <= maxNodes {
		return nil
	}

	currentID, err := s.currentID(ctx, projectID)
	if err != nil {
		return err
	}

	// Collect ids before writing; SQLite has a single connection.
	rows, err := s.db.query(ctx,
		`SELECT id FROM history_nodes WHERE project_id = ? ORDER BY created_at ASC LIMIT ?`,
		projectID, count-maxNodes,
	)
	if err != nil {
		return fmt.Errorf("select prunable nodes: %w", err)
	}
	var victims []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if id != currentID {
			victims = append(victims, id)
		}
	}
	rows.Close()

	for _, id := range victims {
		// Re-read the parent: an earlier victim may have been this node's parent.
		var parent sql.NullString
		if err := s.db.queryRow(ctx, `SELECT parent_id FROM history_nodes WHERE id = ?`, id).Scan(&parent); err != nil {
			continue
		}
		if _, err := s.db.exec(ctx, `UPDATE history_nodes SET parent_id = ? WHERE parent_id = ?`, parent, id); err != nil {
			return fmt.Errorf("reparent history nodes: %w", err)
		}
		if _, err := s.db.exec(ctx, `DELETE FROM history_nodes WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete history node: %w", err)
		}
	}
	return nil
}

func (s *HistoryStore) currentID(ctx context.Context, projectID string) (string, error) {
	var id string
	err := s.db.queryRow(ctx, `SELECT current_node_id FROM history_state WHERE project_id = ?`, projectID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get history state: %w", err)
	}
	return id, nil
}
