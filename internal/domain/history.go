package domain

import (
	"context"
	"time"
)

// HistoryNode is one entry in a project's undo tree. Snapshot holds the
// encoded lyrics at that point.
type HistoryNode struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	ParentID  *string   `json:"parentId"`
	Label     string    `json:"label"`
	Snapshot  string    `json:"snapshot"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryTree is every node of a project plus the current position.
type HistoryTree struct {
	Nodes     []HistoryNode `json:"nodes"`
	CurrentID string        `json:"currentId"`
	RootID    string        `json:"rootId"`
}

type HistoryStore interface {
	// Push adds a node under parentID ("" for a root) and makes it current.
	Push(ctx context.Context, projectID, parentID, label, snapshot string) (*HistoryNode, error)
	Current(ctx context.Context, projectID string) (*HistoryNode, error)
	Node(ctx context.Context, id string) (*HistoryNode, error)
	// LatestChild returns the most recent child of nodeID, or nil.
	LatestChild(ctx context.Context, nodeID string) (*HistoryNode, error)
	GoTo(ctx context.Context, projectID, nodeID string) error
	LoadTree(ctx context.Context, projectID string) (*HistoryTree, error)
	Clear(ctx context.Context, projectID string) error
	// Prune drops the oldest nodes beyond max, keeping the current one.
	Prune(ctx context.Context, projectID string, max int) error
	Projects(ctx context.Context) ([]string, error)
}
