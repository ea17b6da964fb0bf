package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"lyriclab/internal/domain"
)

var _ domain.ProjectStore = (*ProjectStore)(nil)

// ProjectStore implements domain.ProjectStore on a SQL database. Each
// project is stored whole as JSON; title, status and timestamp are kept
// alongside for ordering.
type ProjectStore struct {
	db *DB
}

func NewProjectStore(db *DB) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) List(ctx context.Context) ([]domain.ProjectSummary, error) {
	rows, err := s.db.query(ctx, `SELECT id, data_json FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []domain.ProjectSummary{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		var p domain.Project
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			log.Printf("[storage] skipping unreadable project %s: %v", id, err)
			continue
		}
		out = append(out, p.Summary())
	}
	return out, rows.Err()
}

func (s *ProjectStore) Get(ctx context.Context, id string) (*domain.Project, error) {
	var data string
	err := s.db.queryRow(ctx, `SELECT data_json FROM projects WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	p := &domain.Project{}
	if err := json.Unmarshal([]byte(data), p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	return p, nil
}

func (s *ProjectStore) Save(ctx context.Context, p *domain.Project) error {
	p.LastModified = time.Now()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	_, err = s.db.exec(ctx,
		s.db.upsert("projects", "id", "title", "status", "updated_at", "data_json"),
		p.ID, p.Title, string(p.Status), p.LastModified.UnixNano(), string(data),
	)
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}
	return nil
}

func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.exec(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (s *ProjectStore) Close() error {
	return s.db.Close()
}
