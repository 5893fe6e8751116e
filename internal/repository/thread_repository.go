package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumora/supportdesk/internal/domain"
)

// ThreadFilter captures listing parameters.
type ThreadFilter struct {
	ArtistID *int64
	Status   *domain.ThreadStatus
	Limit    int
	Offset   int
}

// ThreadRepository encapsulates support thread persistence.
type ThreadRepository interface {
	Create(ctx context.Context, thread *domain.Thread) error
	Update(ctx context.Context, thread *domain.Thread) error
	GetByID(ctx context.Context, id int64) (*domain.Thread, error)
	ListByArtist(ctx context.Context, artistID int64) ([]domain.Thread, error)
	// ListSummaries returns list-view projections ordered by last message
	// time, with unread counts relative to the viewer.
	ListSummaries(ctx context.Context, viewerID int64, filter ThreadFilter) ([]domain.ThreadSummary, error)
	// SetRating records a rating exactly once and only on a resolved
	// thread. It reports false when the guard rejected the write.
	SetRating(ctx context.Context, id int64, rating int) (bool, error)
	TouchLastMessage(ctx context.Context, id int64) error
}

type threadRepository struct {
	pool *pgxpool.Pool
}

// NewThreadRepository instantiates repository.
func NewThreadRepository(pool *pgxpool.Pool) ThreadRepository {
	return &threadRepository{pool: pool}
}

const threadColumns = `id, artist_id, subject, status, priority, assigned_to, rating,
        release_id, track_id, COALESCE(release_title,''), COALESCE(release_cover,''), COALESCE(track_title,''),
        created_at, updated_at, last_message_at`

func (r *threadRepository) Create(ctx context.Context, thread *domain.Thread) error {
	const query = `
        INSERT INTO support_threads (artist_id, subject, status, priority, assigned_to,
            release_id, track_id, release_title, release_cover, track_title,
            created_at, updated_at, last_message_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),NULLIF($10,''),NOW(),NOW(),NOW())
        RETURNING id, created_at, updated_at, last_message_at`
	return r.pool.QueryRow(ctx, query,
		thread.ArtistID,
		thread.Subject,
		thread.Status,
		thread.Priority,
		thread.AssigneeID,
		thread.ReleaseID,
		thread.TrackID,
		thread.ReleaseTitle,
		thread.ReleaseCover,
		thread.TrackTitle,
	).Scan(&thread.ID, &thread.CreatedAt, &thread.UpdatedAt, &thread.LastMessageAt)
}

func (r *threadRepository) Update(ctx context.Context, thread *domain.Thread) error {
	const query = `
        UPDATE support_threads SET subject=$1, status=$2, priority=$3, assigned_to=$4,
            release_id=$5, track_id=$6, release_title=NULLIF($7,''), release_cover=NULLIF($8,''),
            track_title=NULLIF($9,''), updated_at=NOW()
        WHERE id=$10`
	cmd, err := r.pool.Exec(ctx, query,
		thread.Subject,
		thread.Status,
		thread.Priority,
		thread.AssigneeID,
		thread.ReleaseID,
		thread.TrackID,
		thread.ReleaseTitle,
		thread.ReleaseCover,
		thread.TrackTitle,
		thread.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *threadRepository) GetByID(ctx context.Context, id int64) (*domain.Thread, error) {
	query := fmt.Sprintf(`SELECT %s FROM support_threads WHERE id=$1`, threadColumns)
	var thread domain.Thread
	if err := r.pool.QueryRow(ctx, query, id).Scan(threadFields(&thread)...); err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *threadRepository) ListByArtist(ctx context.Context, artistID int64) ([]domain.Thread, error) {
	query := fmt.Sprintf(`SELECT %s FROM support_threads WHERE artist_id=$1 ORDER BY last_message_at DESC`, threadColumns)
	rows, err := r.pool.Query(ctx, query, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Thread
	for rows.Next() {
		var thread domain.Thread
		if err := rows.Scan(threadFields(&thread)...); err != nil {
			return nil, err
		}
		result = append(result, thread)
	}
	return result, rows.Err()
}

func (r *threadRepository) ListSummaries(ctx context.Context, viewerID int64, filter ThreadFilter) ([]domain.ThreadSummary, error) {
	// Artist view: internal notes are invisible, keep them out of both the
	// last-message preview and the unread counter.
	noteFilter := ""
	if filter.ArtistID != nil {
		noteFilter = " AND m.is_internal_note = FALSE"
	}
	base := fmt.Sprintf(`
        SELECT st.id, st.artist_id, st.subject, st.status, st.priority, st.assigned_to, st.rating,
               st.release_id, st.track_id, COALESCE(st.release_title,''), COALESCE(st.release_cover,''), COALESCE(st.track_title,''),
               st.created_at, st.updated_at, st.last_message_at,
               COALESCE(u.username,''), COALESCE(u.full_name,''), COALESCE(u.avatar,''),
               COALESCE((SELECT m.message FROM messages m WHERE m.thread_id = st.id%[1]s
                         ORDER BY m.created_at DESC, m.id DESC LIMIT 1), ''),
               (SELECT COUNT(*) FROM messages m WHERE m.thread_id = st.id
                  AND m.is_read = FALSE AND m.sender_id <> $1%[1]s)
        FROM support_threads st
        LEFT JOIN users u ON st.artist_id = u.id`, noteFilter)

	clauses := []string{}
	args := []any{viewerID}
	if filter.ArtistID != nil {
		args = append(args, *filter.ArtistID)
		clauses = append(clauses, fmt.Sprintf("st.artist_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("st.status=$%d", len(args)))
	}

	query := base
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY st.last_message_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ThreadSummary
	for rows.Next() {
		var s domain.ThreadSummary
		fields := threadFields(&s.Thread)
		fields = append(fields, &s.ArtistUsername, &s.ArtistName, &s.ArtistAvatar, &s.LastMessage, &s.UnreadCount)
		if err := rows.Scan(fields...); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *threadRepository) SetRating(ctx context.Context, id int64, rating int) (bool, error) {
	const query = `
        UPDATE support_threads SET rating=$1, updated_at=NOW()
        WHERE id=$2 AND status='resolved' AND rating IS NULL`
	cmd, err := r.pool.Exec(ctx, query, rating, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *threadRepository) TouchLastMessage(ctx context.Context, id int64) error {
	const query = `
        UPDATE support_threads SET last_message_at=NOW(), updated_at=NOW() WHERE id=$1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func threadFields(t *domain.Thread) []any {
	return []any{
		&t.ID,
		&t.ArtistID,
		&t.Subject,
		&t.Status,
		&t.Priority,
		&t.AssigneeID,
		&t.Rating,
		&t.ReleaseID,
		&t.TrackID,
		&t.ReleaseTitle,
		&t.ReleaseCover,
		&t.TrackTitle,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.LastMessageAt,
	}
}
