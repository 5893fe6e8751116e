package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumora/supportdesk/internal/domain"
)

// ReleaseRepository exposes the catalog entities the attach flow links to.
type ReleaseRepository interface {
	GetRelease(ctx context.Context, id int64) (*domain.Release, error)
	GetTrack(ctx context.Context, id int64) (*domain.Track, error)
	ListByArtist(ctx context.Context, artistID int64) ([]domain.Release, error)
	ListTracksByArtist(ctx context.Context, artistID int64) ([]domain.Track, error)
}

type releaseRepository struct {
	pool *pgxpool.Pool
}

// NewReleaseRepository instantiates repository.
func NewReleaseRepository(pool *pgxpool.Pool) ReleaseRepository {
	return &releaseRepository{pool: pool}
}

func (r *releaseRepository) GetRelease(ctx context.Context, id int64) (*domain.Release, error) {
	const query = `
        SELECT id, artist_id, title, COALESCE(cover_url,''), status
        FROM releases WHERE id=$1`
	var release domain.Release
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&release.ID,
		&release.ArtistID,
		&release.Title,
		&release.CoverURL,
		&release.Status,
	); err != nil {
		return nil, err
	}
	return &release, nil
}

func (r *releaseRepository) GetTrack(ctx context.Context, id int64) (*domain.Track, error) {
	const query = `
        SELECT t.id, t.release_id, r.title, t.title
        FROM tracks t JOIN releases r ON t.release_id = r.id
        WHERE t.id=$1`
	var track domain.Track
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&track.ID,
		&track.ReleaseID,
		&track.ReleaseTitle,
		&track.Title,
	); err != nil {
		return nil, err
	}
	return &track, nil
}

func (r *releaseRepository) ListByArtist(ctx context.Context, artistID int64) ([]domain.Release, error) {
	const query = `
        SELECT id, artist_id, title, COALESCE(cover_url,''), status
        FROM releases WHERE artist_id=$1 ORDER BY id DESC`
	rows, err := r.pool.Query(ctx, query, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Release
	for rows.Next() {
		var release domain.Release
		if err := rows.Scan(
			&release.ID,
			&release.ArtistID,
			&release.Title,
			&release.CoverURL,
			&release.Status,
		); err != nil {
			return nil, err
		}
		result = append(result, release)
	}
	return result, rows.Err()
}

func (r *releaseRepository) ListTracksByArtist(ctx context.Context, artistID int64) ([]domain.Track, error) {
	const query = `
        SELECT t.id, t.release_id, r.title, t.title
        FROM tracks t
        JOIN releases r ON t.release_id = r.id
        WHERE r.artist_id=$1
        ORDER BY t.id DESC`
	rows, err := r.pool.Query(ctx, query, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Track
	for rows.Next() {
		var track domain.Track
		if err := rows.Scan(
			&track.ID,
			&track.ReleaseID,
			&track.ReleaseTitle,
			&track.Title,
		); err != nil {
			return nil, err
		}
		result = append(result, track)
	}
	return result, rows.Err()
}
