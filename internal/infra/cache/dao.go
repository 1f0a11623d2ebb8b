package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when the database is not open.
var ErrClosed = errors.New("library database is not open")

// AlbumArt is one row of the album artwork index.
type AlbumArt struct {
	Album       string
	AlbumArtist string
	ArtPath     string
	Source      string // 'folder', 'embedded', 'manual'
	UpdatedAt   string
}

// DAO provides data access for the album artwork index.
type DAO struct {
	db *DB
	sb sq.StatementBuilderType
}

// NewDAO creates a new DAO instance.
func NewDAO(db *DB) *DAO {
	return &DAO{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// UpsertAlbumArt records the artwork path for an album, replacing any earlier row.
func (dao *DAO) UpsertAlbumArt(art *AlbumArt) error {
	conn, err := dao.db.conn()
	if err != nil {
		return err
	}

	query, args, err := dao.sb.
		Replace("album_art").
		Columns("album", "album_artist", "art_path", "source", "updated_at").
		Values(art.Album, art.AlbumArtist, art.ArtPath, art.Source, sq.Expr("CURRENT_TIMESTAMP")).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := conn.Exec(query, args...); err != nil {
		return fmt.Errorf("upsert album art: %w", err)
	}
	return nil
}

// GetAlbumArt returns the row for an exact album name, or nil when none exists.
func (dao *DAO) GetAlbumArt(album string) (*AlbumArt, error) {
	conn, err := dao.db.conn()
	if err != nil {
		return nil, err
	}

	query, args, err := dao.sb.
		Select("album", "album_artist", "art_path", "source", "updated_at").
		From("album_art").
		Where(sq.Eq{"album": album}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	art := &AlbumArt{}
	var updatedAt sql.NullString
	err = conn.QueryRow(query, args...).Scan(&art.Album, &art.AlbumArtist, &art.ArtPath, &art.Source, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query album art: %w", err)
	}
	art.UpdatedAt = updatedAt.String
	return art, nil
}

// LookupAlbumArt returns the stored artwork path for an exact album name, or
// an empty string.
func (dao *DAO) LookupAlbumArt(album string) (string, error) {
	art, err := dao.GetAlbumArt(album)
	if err != nil || art == nil {
		return "", err
	}
	return art.ArtPath, nil
}

// DeleteAlbumArt removes the row for an album.
func (dao *DAO) DeleteAlbumArt(album string) error {
	conn, err := dao.db.conn()
	if err != nil {
		return err
	}

	query, args, err := dao.sb.Delete("album_art").Where(sq.Eq{"album": album}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := conn.Exec(query, args...); err != nil {
		return fmt.Errorf("delete album art: %w", err)
	}
	return nil
}

// CountAlbumArt returns the number of indexed albums.
func (dao *DAO) CountAlbumArt() (int, error) {
	conn, err := dao.db.conn()
	if err != nil {
		return 0, err
	}

	query, args, err := dao.sb.Select("COUNT(*)").From("album_art").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := conn.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count album art: %w", err)
	}
	return n, nil
}

// PruneMissing deletes rows whose artwork file no longer exists and returns
// how many were removed.
func (dao *DAO) PruneMissing() (int, error) {
	conn, err := dao.db.conn()
	if err != nil {
		return 0, err
	}

	query, args, err := dao.sb.Select("album", "art_path").From("album_art").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	rows, err := conn.Query(query, args...)
	if err != nil {
		return 0, fmt.Errorf("query album art: %w", err)
	}

	var stale []string
	for rows.Next() {
		var album, path string
		if err := rows.Scan(&album, &path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan album art: %w", err)
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			stale = append(stale, album)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate album art: %w", err)
	}
	// Release the single connection before deleting.
	rows.Close()

	for _, album := range stale {
		if err := dao.DeleteAlbumArt(album); err != nil {
			return 0, err
		}
	}

	if len(stale) > 0 {
		log.Info().Int("removed", len(stale)).Msg("Pruned stale album artwork")
	}
	return len(stale), nil
}
