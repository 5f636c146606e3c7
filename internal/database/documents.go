package database

import (
	"context"
	"fmt"

	"mcportal/internal/models"
)

const documentColumns = `d.id, d.filename, d.path, d.is_public, d.uploaded_at`

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d        models.Document
		uploaded string
	)
	if err := row.Scan(&d.ID, &d.Filename, &d.Path, &d.IsPublic, &uploaded); err != nil {
		return nil, err
	}
	d.UploadedAt = parseTime(uploaded)
	return &d, nil
}

func (db *DB) queryDocuments(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// CreateDocument stores the metadata of an uploaded file.
func (db *DB) CreateDocument(ctx context.Context, filename, path string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO documents (filename, path, is_public, uploaded_at) VALUES (?, ?, 0, ?)`,
		filename, path, nowString())
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return res.LastInsertId()
}

// GetDocument returns sql.ErrNoRows for unknown ids.
func (db *DB) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	return scanDocument(db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id = ?`, id))
}

// ListDocuments returns every document, newest first.
func (db *DB) ListDocuments(ctx context.Context) ([]models.Document, error) {
	return db.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents d ORDER BY d.uploaded_at DESC, d.id DESC`)
}

// ListPublicDocuments returns documents visible to everyone.
func (db *DB) ListPublicDocuments(ctx context.Context) ([]models.Document, error) {
	return db.queryDocuments(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.is_public = 1 ORDER BY d.uploaded_at DESC, d.id DESC`)
}

// ListDocumentsForUser returns documents assigned to userID.
func (db *DB) ListDocumentsForUser(ctx context.Context, userID int64) ([]models.Document, error) {
	return db.queryDocuments(ctx, `
		SELECT `+documentColumns+` FROM documents d
		JOIN user_documents ud ON ud.document_id = d.id
		WHERE ud.user_id = ?
		ORDER BY d.uploaded_at DESC, d.id DESC`, userID)
}

// AssignDocument links a document to a user. It reports whether a new
// assignment was created.
func (db *DB) AssignDocument(ctx context.Context, userID, documentID int64) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_documents (user_id, document_id) VALUES (?, ?)`, userID, documentID)
	if err != nil {
		return false, fmt.Errorf("assign document: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UnassignDocument removes a link. Missing links are not an error.
func (db *DB) UnassignDocument(ctx context.Context, userID, documentID int64) error {
	_, err := db.ExecContext(ctx, `DELETE FROM user_documents WHERE user_id = ? AND document_id = ?`, userID, documentID)
	return err
}

// IsDocumentAssigned reports whether userID may see documentID through an assignment.
func (db *DB) IsDocumentAssigned(ctx context.Context, userID, documentID int64) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_documents WHERE user_id = ? AND document_id = ?`, userID, documentID).Scan(&n)
	return n > 0, err
}

// ListDocumentAssignees returns the ids of users a document is assigned to.
func (db *DB) ListDocumentAssignees(ctx context.Context, documentID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT user_id FROM user_documents WHERE document_id = ? ORDER BY user_id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetDocumentPublic flips the public flag.
func (db *DB) SetDocumentPublic(ctx context.Context, id int64, public bool) error {
	res, err := db.ExecContext(ctx, `UPDATE documents SET is_public = ? WHERE id = ?`, boolInt(public), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// DeleteDocument removes the row; assignments cascade.
func (db *DB) DeleteDocument(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return expectOne(res)
}
