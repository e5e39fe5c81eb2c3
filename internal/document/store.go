package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/docpipeline/internal/models"
)

// MutateFunc edits doc in place and reports whether anything changed.
type MutateFunc func(doc *models.Document) (bool, error)

type Store interface {
	Add(ctx context.Context, doc models.Document) (models.Document, error)
	GetByID(ctx context.Context, id int64) (models.Document, error)
	GetAll(ctx context.Context) ([]models.Document, error)
	Update(ctx context.Context, doc models.Document) error
	Delete(ctx context.Context, id int64) error
	Contains(ctx context.Context, id int64) (bool, error)
	// Mutate runs a read-modify-write for one document with writes to the
	// same id serialized. It returns the stored document and whether fn
	// changed it.
	Mutate(ctx context.Context, id int64, fn MutateFunc) (models.Document, bool, error)
}

const documentColumns = `id, name, file_type, file_size, ocr_text, blob_key, created_at, updated_at`

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func scanDocument(row pgx.Row) (models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.Name, &d.FileType, &d.FileSize, &d.OCRText, &d.BlobKey, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *PGStore) Add(ctx context.Context, doc models.Document) (models.Document, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO documents (name, file_type, file_size, ocr_text, blob_key)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+documentColumns,
		doc.Name, doc.FileType, doc.FileSize, doc.OCRText, doc.BlobKey,
	)
	created, err := scanDocument(row)
	if err != nil {
		return models.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return created, nil
}

func (s *PGStore) GetByID(ctx context.Context, id int64) (models.Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("get document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document %d: %w", id, err)
	}
	return doc, nil
}

func (s *PGStore) GetAll(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Update overwrites the stored fields of doc.ID. A missing id is not an error.
func (s *PGStore) Update(ctx context.Context, doc models.Document) error {
	_, err := s.db.Exec(ctx,
		`UPDATE documents SET name = $2, file_type = $3, file_size = $4, ocr_text = $5, blob_key = $6, updated_at = now()
		 WHERE id = $1`,
		doc.ID, doc.Name, doc.FileType, doc.FileSize, doc.OCRText, doc.BlobKey,
	)
	if err != nil {
		return fmt.Errorf("update document %d: %w", doc.ID, err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	return nil
}

func (s *PGStore) Contains(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document %d: %w", id, err)
	}
	return exists, nil
}

func (s *PGStore) Mutate(ctx context.Context, id int64, fn MutateFunc) (models.Document, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return models.Document{}, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := scanDocument(tx.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, false, fmt.Errorf("mutate document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Document{}, false, fmt.Errorf("lock document %d: %w", id, err)
	}

	changed, err := fn(&doc)
	if err != nil {
		return models.Document{}, false, err
	}
	if !changed {
		return doc, false, nil
	}

	doc, err = scanDocument(tx.QueryRow(ctx,
		`UPDATE documents SET name = $2, file_type = $3, file_size = $4, ocr_text = $5, blob_key = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING `+documentColumns,
		doc.ID, doc.Name, doc.FileType, doc.FileSize, doc.OCRText, doc.BlobKey,
	))
	if err != nil {
		return models.Document{}, false, fmt.Errorf("update document %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Document{}, false, fmt.Errorf("commit document %d: %w", id, err)
	}
	return doc, true, nil
}
