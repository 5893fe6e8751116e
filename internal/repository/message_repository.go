package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumora/supportdesk/internal/domain"
)

// MessageRepository manages thread message logs.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// ListByThread returns the full log in creation order.
	ListByThread(ctx context.Context, threadID int64) ([]domain.Message, error)
	// MarkRead flips unread messages not sent by reader to read. With
	// skipInternal set, internal notes are left untouched so they stay
	// unread for the staff who can actually see them.
	MarkRead(ctx context.Context, threadID, readerID int64, skipInternal bool) (int64, error)
	CountUnread(ctx context.Context, threadID, viewerID int64) (int, error)
	// TotalUnread sums unread foreign messages across all threads visible
	// to the viewer; artistOnly restricts to threads the viewer owns.
	TotalUnread(ctx context.Context, viewerID int64, artistOnly bool) (int, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (thread_id, sender_id, message, message_type,
            attachment_url, attachment_name, attachment_size, release_id, track_id,
            is_internal_note, is_read, created_at)
        VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),NULLIF($7,0),$8,$9,$10,FALSE,NOW())
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.ThreadID,
		msg.SenderID,
		msg.Body,
		msg.Type,
		msg.AttachmentURL,
		msg.AttachmentName,
		msg.AttachmentSize,
		msg.ReleaseID,
		msg.TrackID,
		msg.InternalNote,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) ListByThread(ctx context.Context, threadID int64) ([]domain.Message, error) {
	const query = `
        SELECT m.id, m.thread_id, m.sender_id, COALESCE(u.full_name,''), COALESCE(u.role,'artist'),
               m.message, m.message_type,
               COALESCE(m.attachment_url,''), COALESCE(m.attachment_name,''), COALESCE(m.attachment_size,0),
               m.release_id, m.track_id, m.is_internal_note, m.is_read, m.created_at
        FROM messages m
        LEFT JOIN users u ON m.sender_id = u.id
        WHERE m.thread_id=$1
        ORDER BY m.created_at ASC, m.id ASC`
	rows, err := r.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ThreadID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderRole,
			&msg.Body,
			&msg.Type,
			&msg.AttachmentURL,
			&msg.AttachmentName,
			&msg.AttachmentSize,
			&msg.ReleaseID,
			&msg.TrackID,
			&msg.InternalNote,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *messageRepository) MarkRead(ctx context.Context, threadID, readerID int64, skipInternal bool) (int64, error) {
	query := `
        UPDATE messages SET is_read=TRUE
        WHERE thread_id=$1 AND sender_id<>$2 AND is_read=FALSE`
	if skipInternal {
		query += ` AND is_internal_note=FALSE`
	}
	cmd, err := r.pool.Exec(ctx, query, threadID, readerID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *messageRepository) CountUnread(ctx context.Context, threadID, viewerID int64) (int, error) {
	const query = `
        SELECT COUNT(*) FROM messages
        WHERE thread_id=$1 AND sender_id<>$2 AND is_read=FALSE`
	var count int
	if err := r.pool.QueryRow(ctx, query, threadID, viewerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *messageRepository) TotalUnread(ctx context.Context, viewerID int64, artistOnly bool) (int, error) {
	query := `
        SELECT COUNT(*) FROM messages m
        JOIN support_threads st ON m.thread_id = st.id
        WHERE m.sender_id<>$1 AND m.is_read=FALSE`
	args := []any{viewerID}
	if artistOnly {
		query += ` AND st.artist_id=$1 AND m.is_internal_note=FALSE`
	}
	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
