// Package project persists generated components and their prompt history
// in a local SQLite database.
package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/doeshing/oncomn/internal/domain"
	"github.com/doeshing/oncomn/internal/ports"
)

const schema = `CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_modified INTEGER NOT NULL,
	code TEXT NOT NULL,
	prompts TEXT NOT NULL
);`

// SQLiteStore implements ports.ProjectRepository.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore creates (or opens) the project database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions); err != nil {
		return nil, errors.Wrap(err, "creating project directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening project database")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating projects table")
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the sqlite database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts a new project.
func (s *SQLiteStore) Create(ctx context.Context, project domain.Project) error {
	code, prompts, err := encode(project)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at, last_modified, code, prompts) VALUES (?, ?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.CreatedAt.UnixNano(), project.LastModified.UnixNano(), code, prompts,
	)
	return errors.Wrapf(err, "inserting project %s", project.ID)
}

// Get loads one project.
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, last_modified, code, prompts FROM projects WHERE id = ?`, id)
	project, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, errors.Wrapf(domain.ErrProjectNotFound, "project %s", id)
	}
	if err != nil {
		return domain.Project{}, errors.Wrapf(err, "loading project %s", id)
	}
	return project, nil
}

// List returns projects, most recently modified first. limit <= 0 returns all of them.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]domain.Project, error) {
	query := `SELECT id, name, created_at, last_modified, code, prompts FROM projects ORDER BY last_modified DESC, id`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing projects")
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		project, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning project")
		}
		projects = append(projects, project)
	}
	return projects, errors.Wrap(rows.Err(), "iterating projects")
}

// Update overwrites an existing project.
func (s *SQLiteStore) Update(ctx context.Context, project domain.Project) error {
	code, prompts, err := encode(project)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, last_modified = ?, code = ?, prompts = ? WHERE id = ?`,
		project.Name, project.LastModified.UnixNano(), code, prompts, project.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "updating project %s", project.ID)
	}
	return expectRow(result, project.ID)
}

// Delete removes a project.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "deleting project %s", id)
	}
	return expectRow(result, id)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (domain.Project, error) {
	var (
		project             domain.Project
		created, modified   int64
		rawCode, rawPrompts string
	)
	if err := row.Scan(&project.ID, &project.Name, &created, &modified, &rawCode, &rawPrompts); err != nil {
		return domain.Project{}, err
	}
	project.CreatedAt = time.Unix(0, created).UTC()
	project.LastModified = time.Unix(0, modified).UTC()
	if err := json.Unmarshal([]byte(rawCode), &project.Code); err != nil {
		return domain.Project{}, errors.Wrap(err, "unmarshaling code")
	}
	if err := json.Unmarshal([]byte(rawPrompts), &project.Prompts); err != nil {
		return domain.Project{}, errors.Wrap(err, "unmarshaling prompts")
	}
	return project, nil
}

func encode(project domain.Project) (string, string, error) {
	code, err := json.Marshal(project.Code)
	if err != nil {
		return "", "", errors.Wrap(err, "marshaling code")
	}
	prompts := project.Prompts
	if prompts == nil {
		prompts = []domain.PromptEntry{}
	}
	rawPrompts, err := json.Marshal(prompts)
	if err != nil {
		return "", "", errors.Wrap(err, "marshaling prompts")
	}
	return string(code), string(rawPrompts), nil
}

func expectRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if affected == 0 {
		return errors.Wrapf(domain.ErrProjectNotFound, "project %s", id)
	}
	return nil
}

var _ ports.ProjectRepository = (*SQLiteStore)(nil)
