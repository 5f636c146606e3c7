package database

import (
	"context"
	"database/sql"
	"fmt"

	"mcportal/internal/models"
)

const postColumns = `id, title, content, published, COALESCE(image_path, ''), created_at`

func scanPost(row rowScanner) (*models.Post, error) {
	var (
		p       models.Post
		created string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Published, &p.ImagePath, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func (db *DB) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// CreatePost inserts p and returns its id.
func (db *DB) CreatePost(ctx context.Context, p *models.Post) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO posts (title, content, published, image_path, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.Title, p.Content, boolInt(p.Published), nullString(p.ImagePath), nowString())
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return res.LastInsertId()
}

// UpdatePost replaces title, content, published flag and image path.
func (db *DB) UpdatePost(ctx context.Context, p *models.Post) error {
	res, err := db.ExecContext(ctx,
		`UPDATE posts SET title = ?, content = ?, published = ?, image_path = ? WHERE id = ?`,
		p.Title, p.Content, boolInt(p.Published), nullString(p.ImagePath), p.ID)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return expectOne(res)
}

// GetPost returns sql.ErrNoRows for unknown ids.
func (db *DB) GetPost(ctx context.Context, id int64) (*models.Post, error) {
	return scanPost(db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id))
}

// ListPosts returns all posts newest first.
func (db *DB) ListPosts(ctx context.Context) ([]models.Post, error) {
	return db.queryPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at DESC, id DESC`)
}

// ListPublishedPosts returns at most limit published posts newest first.
func (db *DB) ListPublishedPosts(ctx context.Context, limit int) ([]models.Post, error) {
	return db.queryPosts(ctx,
		`SELECT `+postColumns+` FROM posts WHERE published = 1 ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

// TogglePostPublished flips the flag and returns the new value.
func (db *DB) TogglePostPublished(ctx context.Context, id int64) (bool, error) {
	var published bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT published FROM posts WHERE id = ?`, id).Scan(&published); err != nil {
			return err
		}
		published = !published
		_, err := tx.ExecContext(ctx, `UPDATE posts SET published = ? WHERE id = ?`, boolInt(published), id)
		return err
	})
	return published, err
}

// DeletePost removes the row and returns the image path it referenced.
func (db *DB) DeletePost(ctx context.Context, id int64) (string, error) {
	var image sql.NullString
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT image_path FROM posts WHERE id = ?`, id).Scan(&image); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
		return err
	})
	return image.String, err
}
