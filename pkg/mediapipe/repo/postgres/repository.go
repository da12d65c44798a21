package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DESpear262/delicious-lotus-sub004/pkg/mediapipe"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements mediapipe.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) mediapipe.Repository {
	return &Repository{db: pool}
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "correlation") {
				return mediapipe.ErrCorrelationExists
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found")
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("record not found")
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Artifact operations

func (r *Repository) CreateArtifact(ctx context.Context, artifact *mediapipe.MediaArtifact) error {
	meta, err := marshalMap(artifact.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO media_artifact (
			id, owner_id, name, kind, status, object_key, thumbnail_key,
			checksum, size_bytes, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		artifact.ID, artifact.OwnerID, artifact.Name, artifact.Kind,
		artifact.Status, artifact.ObjectKey, artifact.ThumbnailKey,
		artifact.Checksum, artifact.SizeBytes, meta,
		artifact.CreatedAt, artifact.UpdatedAt)

	if err != nil {
		return r.handlePostgresError("create artifact", err)
	}

	return nil
}

func (r *Repository) GetArtifact(ctx context.Context, id uuid.UUID) (*mediapipe.MediaArtifact, error) {
	query := `
        SELECT id, owner_id, name, kind, status, object_key, thumbnail_key,
               checksum, size_bytes, metadata, created_at, updated_at, deleted_at
        FROM media_artifact WHERE id = $1`

	artifact, err := scanArtifact(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediapipe.ErrArtifactNotFound
		}
		return nil, err
	}
	if artifact.DeletedAt != nil {
		return nil, mediapipe.ErrArtifactDeleted
	}

	return artifact, nil
}

func (r *Repository) UpdateArtifact(ctx context.Context, artifact *mediapipe.MediaArtifact) error {
	meta, err := marshalMap(artifact.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE media_artifact SET
			name = $2, kind = $3, status = $4, object_key = $5,
			thumbnail_key = $6, checksum = $7, size_bytes = $8,
			metadata = $9, updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query,
		artifact.ID, artifact.Name, artifact.Kind, artifact.Status,
		artifact.ObjectKey, artifact.ThumbnailKey, artifact.Checksum,
		artifact.SizeBytes, meta, artifact.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update artifact", err)
	}
	if tag.RowsAffected() == 0 {
		return mediapipe.ErrArtifactNotFound
	}

	return nil
}

func (r *Repository) DeleteArtifact(ctx context.Context, id uuid.UUID) error {
	// Soft delete: the row stays for audit, reads treat it as gone
	query := `UPDATE media_artifact SET deleted_at = NOW(), updated_at = NOW()
	          WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return r.handlePostgresError("delete artifact", err)
	}
	if tag.RowsAffected() == 0 {
		return mediapipe.ErrArtifactNotFound
	}
	return nil
}

func (r *Repository) ListArtifacts(ctx context.Context, ownerID uuid.UUID) ([]*mediapipe.MediaArtifact, error) {
	query := `
        SELECT id, owner_id, name, kind, status, object_key, thumbnail_key,
               checksum, size_bytes, metadata, created_at, updated_at, deleted_at
        FROM media_artifact WHERE owner_id = $1 AND deleted_at IS NULL
        ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, r.handlePostgresError("list artifacts", err)
	}
	defer rows.Close()

	var artifacts []*mediapipe.MediaArtifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}

	return artifacts, rows.Err()
}

// FinalizeArtifact runs the terminal write in one transaction so the
// status flip and the metadata row commit or roll back together.
func (r *Repository) FinalizeArtifact(ctx context.Context, params mediapipe.FinalizeArtifactParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return r.handlePostgresError("finalize artifact", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanArtifact(tx.QueryRow(ctx, `
        SELECT id, owner_id, name, kind, status, object_key, thumbnail_key,
               checksum, size_bytes, metadata, created_at, updated_at, deleted_at
        FROM media_artifact WHERE id = $1 FOR UPDATE`, params.ArtifactID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mediapipe.ErrArtifactNotFound
		}
		return err
	}
	if current.DeletedAt != nil {
		return mediapipe.ErrArtifactDeleted
	}
	if err := mediapipe.ValidateArtifactTransition(current.Status, params.Status); err != nil {
		return err
	}

	if current.Metadata == nil {
		current.Metadata = make(map[string]any)
	}
	if params.ErrorNote != "" {
		current.Metadata[mediapipe.MetaError] = params.ErrorNote
	}
	if params.ThumbnailErr != "" {
		current.Metadata[mediapipe.MetaThumbnailError] = params.ThumbnailErr
	}
	meta, err := marshalMap(current.Metadata)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE media_artifact SET
			status = $2,
			object_key = COALESCE(NULLIF($3, ''), object_key),
			thumbnail_key = COALESCE(NULLIF($4, ''), thumbnail_key),
			checksum = COALESCE(NULLIF($5, ''), checksum),
			size_bytes = CASE WHEN $6 > 0 THEN $6 ELSE size_bytes END,
			metadata = $7,
			updated_at = NOW()
		WHERE id = $1`,
		params.ArtifactID, params.Status, params.ObjectKey, params.ThumbnailKey,
		params.Checksum, params.SizeBytes, meta)
	if err != nil {
		return r.handlePostgresError("finalize artifact", err)
	}

	if params.Metadata != nil {
		if err := upsertMetadata(ctx, tx, params.Metadata); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Artifact metadata operations

func (r *Repository) SetArtifactMetadata(ctx context.Context, metadata *mediapipe.ArtifactMetadata) error {
	return upsertMetadata(ctx, r.db, metadata)
}

func upsertMetadata(ctx context.Context, db interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
}, metadata *mediapipe.ArtifactMetadata) error {
	info, err := json.Marshal(struct {
		Video *mediapipe.VideoInfo `json:"video,omitempty"`
		Image *mediapipe.ImageInfo `json:"image,omitempty"`
		Audio *mediapipe.AudioInfo `json:"audio,omitempty"`
		Extra map[string]any       `json:"extra,omitempty"`
	}{metadata.Video, metadata.Image, metadata.Audio, metadata.Extra})
	if err != nil {
		return fmt.Errorf("encode artifact metadata: %w", err)
	}

	query := `
		INSERT INTO artifact_metadata (
			artifact_id, file_name, mime_type, size_bytes, checksum,
			info, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (artifact_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			mime_type = EXCLUDED.mime_type,
			size_bytes = EXCLUDED.size_bytes,
			checksum = EXCLUDED.checksum,
			info = EXCLUDED.info,
			updated_at = EXCLUDED.updated_at`

	now := time.Now().UTC()
	_, err = db.Exec(ctx, query,
		metadata.ArtifactID, metadata.FileName, metadata.MimeType,
		metadata.SizeBytes, metadata.Checksum, info, now, now)
	if err != nil {
		return fmt.Errorf("database error in set artifact metadata: %w", err)
	}
	return nil
}

func (r *Repository) GetArtifactMetadata(ctx context.Context, artifactID uuid.UUID) (*mediapipe.ArtifactMetadata, error) {
	query := `
        SELECT artifact_id, file_name, mime_type, size_bytes, checksum,
               info, created_at, updated_at
        FROM artifact_metadata WHERE artifact_id = $1`

	var (
		meta mediapipe.ArtifactMetadata
		info []byte
	)
	err := r.db.QueryRow(ctx, query, artifactID).Scan(
		&meta.ArtifactID, &meta.FileName, &meta.MimeType, &meta.SizeBytes,
		&meta.Checksum, &info, &meta.CreatedAt, &meta.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediapipe.ErrArtifactNotFound
		}
		return nil, err
	}

	if len(info) > 0 {
		var decoded struct {
			Video *mediapipe.VideoInfo `json:"video"`
			Image *mediapipe.ImageInfo `json:"image"`
			Audio *mediapipe.AudioInfo `json:"audio"`
			Extra map[string]any       `json:"extra"`
		}
		if err := json.Unmarshal(info, &decoded); err != nil {
			return nil, fmt.Errorf("decode artifact metadata: %w", err)
		}
		meta.Video = decoded.Video
		meta.Image = decoded.Image
		meta.Audio = decoded.Audio
		meta.Extra = decoded.Extra
	}

	return &meta, nil
}

// Composition operations

func (r *Repository) CreateComposition(ctx context.Context, composition *mediapipe.Composition) error {
	timeline, err := json.Marshal(composition.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	output, err := json.Marshal(composition.Output)
	if err != nil {
		return fmt.Errorf("encode output settings: %w", err)
	}
	meta, err := marshalMap(composition.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO composition (
			id, owner_id, name, status, timeline, output, output_artifact_id,
			progress, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		composition.ID, composition.OwnerID, composition.Name, composition.Status,
		timeline, output, composition.OutputArtifactID, composition.Progress,
		meta, composition.CreatedAt, composition.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create composition", err)
	}

	return nil
}

func (r *Repository) GetComposition(ctx context.Context, id uuid.UUID) (*mediapipe.Composition, error) {
	query := `
        SELECT id, owner_id, name, status, timeline, output, output_artifact_id,
               progress, metadata, created_at, updated_at, deleted_at
        FROM composition WHERE id = $1 AND deleted_at IS NULL`

	comp, err := scanComposition(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mediapipe.ErrCompositionNotFound
		}
		return nil, err
	}

	return comp, nil
}

func (r *Repository) UpdateComposition(ctx context.Context, composition *mediapipe.Composition) error {
	timeline, err := json.Marshal(composition.Timeline)
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	output, err := json.Marshal(composition.Output)
	if err != nil {
		return fmt.Errorf("encode output settings: %w", err)
	}
	meta, err := marshalMap(composition.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE composition SET
			name = $2, status = $3, timeline = $4, output = $5,
			output_artifact_id = $6, progress = $7, metadata = $8, updated_at = $9
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query,
		composition.ID, composition.Name, composition.Status, timeline, output,
		composition.OutputArtifactID, composition.Progress, meta, composition.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update composition", err)
	}
	if tag.RowsAffected() == 0 {
		return mediapipe.ErrCompositionNotFound
	}

	return nil
}

func (r *Repository) DeleteComposition(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE composition SET deleted_at = NOW(), updated_at = NOW()
	          WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return r.handlePostgresError("delete composition", err)
	}
	if tag.RowsAffected() == 0 {
		return mediapipe.ErrCompositionNotFound
	}
	return nil
}

// Generation correlation operations

func (r *Repository) BindCorrelation(ctx context.Context, correlationID string, artifactID uuid.UUID) error {
	query := `
		INSERT INTO generation_correlation (correlation_id, artifact_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (correlation_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, correlationID, artifactID)
	if err != nil {
		return r.handlePostgresError("bind correlation", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.GetCorrelation(ctx, correlationID)
		if err != nil {
			return err
		}
		if existing == artifactID {
			return nil
		}
		return mediapipe.ErrCorrelationExists
	}
	return nil
}

func (r *Repository) GetCorrelation(ctx context.Context, correlationID string) (uuid.UUID, error) {
	var artifactID uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT artifact_id FROM generation_correlation WHERE correlation_id = $1`,
		correlationID).Scan(&artifactID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, mediapipe.ErrCorrelationNotFound
		}
		return uuid.Nil, err
	}
	return artifactID, nil
}

// Reconciliation

func (r *Repository) ListStalledArtifacts(ctx context.Context, olderThan time.Time) ([]*mediapipe.MediaArtifact, error) {
	query := `
        SELECT id, owner_id, name, kind, status, object_key, thumbnail_key,
               checksum, size_bytes, metadata, created_at, updated_at, deleted_at
        FROM media_artifact
        WHERE status IN ('pending', 'uploading') AND updated_at < $1 AND deleted_at IS NULL
        ORDER BY updated_at ASC`

	rows, err := r.db.Query(ctx, query, olderThan)
	if err != nil {
		return nil, r.handlePostgresError("list stalled artifacts", err)
	}
	defer rows.Close()

	var artifacts []*mediapipe.MediaArtifact
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

func (r *Repository) ListStalledCompositions(ctx context.Context, olderThan time.Time) ([]*mediapipe.Composition, error) {
	query := `
        SELECT id, owner_id, name, status, timeline, output, output_artifact_id,
               progress, metadata, created_at, updated_at, deleted_at
        FROM composition
        WHERE status IN ('pending', 'queued', 'processing') AND updated_at < $1 AND deleted_at IS NULL
        ORDER BY updated_at ASC`

	rows, err := r.db.Query(ctx, query, olderThan)
	if err != nil {
		return nil, r.handlePostgresError("list stalled compositions", err)
	}
	defer rows.Close()

	var comps []*mediapipe.Composition
	for rows.Next() {
		comp, err := scanComposition(rows)
		if err != nil {
			return nil, err
		}
		comps = append(comps, comp)
	}
	return comps, rows.Err()
}

// Scan helpers

func scanArtifact(row pgx.Row) (*mediapipe.MediaArtifact, error) {
	var (
		a    mediapipe.MediaArtifact
		meta []byte
	)
	err := row.Scan(
		&a.ID, &a.OwnerID, &a.Name, &a.Kind, &a.Status, &a.ObjectKey,
		&a.ThumbnailKey, &a.Checksum, &a.SizeBytes, &meta,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("decode artifact metadata map: %w", err)
		}
	}
	return &a, nil
}

func scanComposition(row pgx.Row) (*mediapipe.Composition, error) {
	var (
		c        mediapipe.Composition
		timeline []byte
		output   []byte
		meta     []byte
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Status, &timeline, &output,
		&c.OutputArtifactID, &c.Progress, &meta,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return nil, err
	}
	if len(timeline) > 0 {
		if err := json.Unmarshal(timeline, &c.Timeline); err != nil {
			return nil, fmt.Errorf("decode timeline: %w", err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &c.Output); err != nil {
			return nil, fmt.Errorf("decode output settings: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode composition metadata map: %w", err)
		}
	}
	return &c, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata map: %w", err)
	}
	return b, nil
}
