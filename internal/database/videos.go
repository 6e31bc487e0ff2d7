package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clipflow/internal/logging"
	"clipflow/internal/mediatypes"
)

// videoColumns is the select list shared by all video queries.
const videoColumns = `id, owner, stored_filename, original_filename, size_bytes, source_path,
	mime_type, status, sensitivity, progress, variant_360, variant_720, variant_1080,
	thumb_path, created_at, updated_at`

// variantColumns maps quality labels to their storage columns. Only these
// three renditions exist; the mapping doubles as an injection guard since
// column names cannot be parameterized.
var variantColumns = map[mediatypes.Quality]string{
	mediatypes.Quality360:  "variant_360",
	mediatypes.Quality720:  "variant_720",
	mediatypes.Quality1080: "variant_1080",
}

// CreateVideo inserts a new record in the uploaded state. The store assigns
// the identifier; any caller-provided ID is ignored.
func (d *Database) CreateVideo(ctx context.Context, v *Video) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_video", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	v.ID = uuid.NewString()
	v.Status = StatusUploaded
	v.Sensitivity = SensitivityUnknown
	v.Progress = 0

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO videos (id, owner, stored_filename, original_filename, size_bytes, source_path, mime_type, status, sensitivity, progress)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.Owner, v.StoredFilename, v.OriginalFilename, v.SizeBytes, v.SourcePath,
		v.MimeType, v.Status, v.Sensitivity, v.Progress,
	)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}

	created, getErr := d.GetVideo(ctx, v.ID)
	if getErr != nil {
		return getErr
	}
	*v = *created
	return nil
}

// GetVideo retrieves a single record by identifier.
func (d *Database) GetVideo(ctx context.Context, id string) (*Video, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_video", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)

	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	return v, err
}

// ListVideos returns one page of records matching the options, newest first.
func (d *Database) ListVideos(ctx context.Context, opts ListOptions) (*ListResult, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_videos", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts.Normalize()

	where := []string{"1=1"}
	args := []interface{}{}

	if opts.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, opts.Owner)
	}
	if opts.Status != "" {
		where = append(where, "status = ?")
		args = append(args, opts.Status)
	}
	if opts.Sensitivity != "" {
		where = append(where, "sensitivity = ?")
		args = append(args, opts.Sensitivity)
	}
	if opts.Search != "" {
		where = append(where, "original_filename LIKE ? ESCAPE '\\' COLLATE NOCASE")
		args = append(args, "%"+escapeLike(opts.Search)+"%")
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count videos: %w", err)
	}

	query := `SELECT ` + videoColumns + ` FROM videos WHERE ` + clause +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, (opts.Page-1)*opts.Limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Warn("failed to close video rows: %v", closeErr)
		}
	}()

	videos := make([]*Video, 0, opts.Limit)
	for rows.Next() {
		v, scanErr := scanVideo(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		videos = append(videos, v)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return &ListResult{
		Page:   opts.Page,
		Limit:  opts.Limit,
		Total:  total,
		Videos: videos,
	}, nil
}

// MarkProcessing transitions a record from uploaded to processing with
// progress reset to zero. Any other starting state is rejected.
func (d *Database) MarkProcessing(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("mark_processing", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		UPDATE videos SET status = ?, progress = 0, updated_at = strftime('%s', 'now')
		WHERE id = ? AND status = ?`,
		StatusProcessing, id, StatusUploaded,
	)
	if err != nil {
		return fmt.Errorf("failed to mark processing: %w", err)
	}
	return d.transitionOutcome(ctx, result, id)
}

// UpdateProgress persists a progress checkpoint. Writes are accepted only
// while the record is processing and only if they do not move backward.
func (d *Database) UpdateProgress(ctx context.Context, id string, progress int) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_progress", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		UPDATE videos SET progress = ?, updated_at = strftime('%s', 'now')
		WHERE id = ? AND status = ? AND progress <= ?`,
		progress, id, StatusProcessing, progress,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return d.transitionOutcome(ctx, result, id)
}

// SetVariant records the on-disk path of a finished rendition. Variants are
// populated incrementally as encode jobs complete.
func (d *Database) SetVariant(ctx context.Context, id string, quality mediatypes.Quality, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_variant", start, err) }()

	column, ok := variantColumns[quality]
	if !ok {
		err = fmt.Errorf("unknown variant quality %q", quality)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		`UPDATE videos SET `+column+` = ?, updated_at = strftime('%s', 'now') WHERE id = ?`,
		path, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set variant %s: %w", quality, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// SetThumbnail records the poster frame path for a video.
func (d *Database) SetThumbnail(ctx context.Context, id, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_thumbnail", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx,
		`UPDATE videos SET thumb_path = ?, updated_at = strftime('%s', 'now') WHERE id = ?`,
		path, id,
	)
	if err != nil {
		return fmt.Errorf("failed to set thumbnail: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// Finalize moves a processing record to its terminal state, pinning
// progress to 100 and recording the classification result.
func (d *Database) Finalize(ctx context.Context, id string, status Status, sensitivity Sensitivity) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("finalize_video", start, err) }()

	if !status.IsTerminal() {
		err = fmt.Errorf("finalize requires a terminal status, got %q: %w", status, ErrIllegalTransition)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `
		UPDATE videos SET status = ?, sensitivity = ?, progress = 100, updated_at = strftime('%s', 'now')
		WHERE id = ? AND status = ?`,
		status, sensitivity, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize video: %w", err)
	}
	return d.transitionOutcome(ctx, result, id)
}

// DeleteVideo removes a record. File cleanup happens before this call;
// record deletion is the commit point of the delete operation.
func (d *Database) DeleteVideo(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_video", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// transitionOutcome distinguishes "no such record" from "guarded update
// matched nothing" after a conditional status write.
func (d *Database) transitionOutcome(ctx context.Context, result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrIllegalTransition
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (*Video, error) {
	var (
		v         Video
		v360      sql.NullString
		v720      sql.NullString
		v1080     sql.NullString
		thumb     sql.NullString
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(
		&v.ID, &v.Owner, &v.StoredFilename, &v.OriginalFilename, &v.SizeBytes, &v.SourcePath,
		&v.MimeType, &v.Status, &v.Sensitivity, &v.Progress, &v360, &v720, &v1080,
		&thumb, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Variants = make(map[mediatypes.Quality]string, 3)
	if v360.Valid && v360.String != "" {
		v.Variants[mediatypes.Quality360] = v360.String
	}
	if v720.Valid && v720.String != "" {
		v.Variants[mediatypes.Quality720] = v720.String
	}
	if v1080.Valid && v1080.String != "" {
		v.Variants[mediatypes.Quality1080] = v1080.String
	}
	if thumb.Valid {
		v.ThumbPath = thumb.String
	}
	v.CreatedAt = time.Unix(createdAt, 0)
	v.UpdatedAt = time.Unix(updatedAt, 0)

	return &v, nil
}

// escapeLike escapes LIKE wildcards in user-supplied search terms.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
