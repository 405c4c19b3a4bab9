package poll

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-roomrelay/internal/db"
)

type Repository struct {
	db *db.Database
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database}
}

func (r *Repository) Insert(ctx context.Context, p Poll) error {
	options, err := json.Marshal(p.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	query := r.db.Rebind(`INSERT INTO polls (id, room_id, creator, question, options, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.Conn.ExecContext(ctx, query,
		p.ID, p.RoomID, p.Creator, p.Question, string(options), p.Version, p.CreatedAt.UnixNano())
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (Poll, error) {
	query := r.db.Rebind(`SELECT id, room_id, creator, question, options, version, created_at
		FROM polls WHERE id = ?`)
	p, err := scanPoll(r.db.Conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Poll{}, ErrNotFound
		}
		return Poll{}, err
	}
	return p, nil
}

// ListByRoom returns every poll of a room ordered by creation time.
func (r *Repository) ListByRoom(ctx context.Context, roomID string) ([]Poll, error) {
	query := r.db.Rebind(`SELECT id, room_id, creator, question, options, version, created_at
		FROM polls WHERE room_id = ? ORDER BY created_at ASC, seq ASC`)
	rows, err := r.db.Conn.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	polls := []Poll{}
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, err
		}
		polls = append(polls, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return polls, nil
}

// Replace overwrites the whole poll document if its stored version still
// equals p.Version, and bumps the version. It returns the stored form.
func (r *Repository) Replace(ctx context.Context, p Poll) (Poll, error) {
	options, err := json.Marshal(p.Options)
	if err != nil {
		return Poll{}, fmt.Errorf("encode options: %w", err)
	}
	query := r.db.Rebind(`UPDATE polls
		SET room_id = ?, creator = ?, question = ?, options = ?, version = version + 1
		WHERE id = ? AND version = ?`)
	res, err := r.db.Conn.ExecContext(ctx, query,
		p.RoomID, p.Creator, p.Question, string(options), p.ID, p.Version)
	if err != nil {
		return Poll{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Poll{}, err
	}
	if affected == 0 {
		return Poll{}, ErrVersionConflict
	}
	p.Version++
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoll(row rowScanner) (Poll, error) {
	var (
		p       Poll
		options string
		created int64
	)
	if err := row.Scan(&p.ID, &p.RoomID, &p.Creator, &p.Question, &options, &p.Version, &created); err != nil {
		return Poll{}, err
	}
	if err := json.Unmarshal([]byte(options), &p.Options); err != nil {
		return Poll{}, fmt.Errorf("decode options of poll %s: %w", p.ID, err)
	}
	for i := range p.Options {
		if p.Options[i].Voters == nil {
			p.Options[i].Voters = []string{}
		}
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	return p, nil
}
