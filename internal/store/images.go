package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const imageColumns = "id, content, alt, order_key, file_name, source_file_name, size_bytes, created_at, updated_at"

// MaxOrderKey returns the largest order key in use, or 0 when the gallery is empty.
func (s *Store) MaxOrderKey(ctx context.Context) (int64, error) {
	var maxKey sql.NullInt64
	if err := s.db.GetContext(ctx, &maxKey, "SELECT MAX(order_key) FROM banner_images"); err != nil {
		return 0, wrap("max order key", err)
	}
	return maxKey.Int64, nil
}

func (s *Store) InsertImage(ctx context.Context, in ImageCreate) (*Image, error) {
	now := s.now()
	img := &Image{
		ID:             uuid.NewString(),
		Content:        in.Content,
		Alt:            in.Alt,
		OrderKey:       in.OrderKey,
		FileName:       in.FileName,
		SourceFileName: in.SourceFileName,
		SizeBytes:      in.SizeBytes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO banner_images (`+imageColumns+`)
	VALUES (:id, :content, :alt, :order_key, :file_name, :source_file_name, :size_bytes, :created_at, :updated_at)`, img)
	if err != nil {
		return nil, wrap("insert image", err)
	}
	return img, nil
}

// ListImages returns the gallery in display order: highest order key first.
func (s *Store) ListImages(ctx context.Context) ([]Image, error) {
	images := []Image{}
	err := s.db.SelectContext(ctx, &images, "SELECT "+imageColumns+" FROM banner_images ORDER BY order_key DESC, id DESC")
	if err != nil {
		return nil, wrap("list images", err)
	}
	return images, nil
}

func (s *Store) GetImage(ctx context.Context, id string) (*Image, error) {
	var img Image
	err := s.db.GetContext(ctx, &img, "SELECT "+imageColumns+" FROM banner_images WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get image", err)
	}
	return &img, nil
}

// UpdateImageOrderKeys applies every update in a single transaction. If any
// id is unknown the whole batch is rolled back with ErrNotFound.
func (s *Store) UpdateImageOrderKeys(ctx context.Context, updates []OrderUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap("begin reorder", err)
	}
	defer tx.Rollback()

	now := s.now()
	for _, u := range updates {
		res, err := tx.ExecContext(ctx, "UPDATE banner_images SET order_key = ?, updated_at = ? WHERE id = ?", u.OrderKey, now, u.ID)
		if err != nil {
			return wrap(fmt.Sprintf("update order key of %s", u.ID), err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			// MySQL reports 0 for unchanged rows, so confirm the row exists.
			var n int
			if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM banner_images WHERE id = ?", u.ID); err != nil {
				return wrap("check image", err)
			}
			if n == 0 {
				return ErrNotFound
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("commit reorder", err)
	}
	return nil
}

func (s *Store) DeleteImage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM banner_images WHERE id = ?", id)
	if err != nil {
		return wrap("delete image", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ImagesVersion returns a fingerprint that changes whenever the gallery is
// inserted into, reordered or deleted from.
func (s *Store) ImagesVersion(ctx context.Context) (string, error) {
	var row struct {
		Count   int64          `db:"n"`
		KeySum  sql.NullInt64  `db:"key_sum"`
		Updated sql.NullString `db:"updated"`
	}
	err := s.db.GetContext(ctx, &row, "SELECT COUNT(*) AS n, SUM(order_key) AS key_sum, MAX(updated_at) AS updated FROM banner_images")
	if err != nil {
		return "", wrap("images version", err)
	}
	return fmt.Sprintf("%d:%d:%s", row.Count, row.KeySum.Int64, row.Updated.String), nil
}
