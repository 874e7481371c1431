package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/susu3304/gatebot/internal/admission"
)

// Begin opens the journal of one request. The database transaction itself
// starts on the first statement, so requests that journal nothing cost no
// round trip.
func (db *DB) Begin(ctx context.Context) (admission.Journal, error) {
	return &journal{db: db}, nil
}

// RecentExpulsions lists the latest committed expulsions, newest first.
func (db *DB) RecentExpulsions(ctx context.Context, limit int) ([]admission.Expulsion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT chat_id, user_id, chat_title, reason, until
		FROM expulsions ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return collectExpulsions(rows)
}

type journal struct {
	db *DB
	tx pgx.Tx
}

func (j *journal) begin(ctx context.Context) (pgx.Tx, error) {
	if j.tx != nil {
		return j.tx, nil
	}
	tx, err := j.db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	j.tx = tx
	return tx, nil
}

func (j *journal) RecordExpulsion(ctx context.Context, e admission.Expulsion) error {
	tx, err := j.begin(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO expulsions (chat_id, user_id, chat_title, reason, until)
		VALUES ($1, $2, $3, $4, $5)`,
		e.Chat, e.User, e.ChatTitle, e.Reason, e.Until,
	)
	return err
}

func (j *journal) ActiveExpulsions(ctx context.Context, user int64, now time.Time) ([]admission.Expulsion, error) {
	tx, err := j.begin(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx,
		`SELECT chat_id, user_id, chat_title, reason, until
		FROM expulsions WHERE user_id = $1 AND until > $2 ORDER BY until`,
		user, now,
	)
	if err != nil {
		return nil, err
	}
	return collectExpulsions(rows)
}

func (j *journal) AddStrike(ctx context.Context, user int64) (int, error) {
	tx, err := j.begin(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = tx.QueryRow(ctx,
		`INSERT INTO spam_strikes (user_id, strikes) VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE
		SET strikes = spam_strikes.strikes + 1, updated_at = CURRENT_TIMESTAMP
		RETURNING strikes`,
		user,
	).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (j *journal) ResetStrikes(ctx context.Context, user int64) error {
	tx, err := j.begin(ctx)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `DELETE FROM spam_strikes WHERE user_id = $1`, user)
	return err
}

func (j *journal) Commit(ctx context.Context) error {
	if j.tx == nil {
		return nil
	}
	return j.tx.Commit(ctx)
}

func (j *journal) Rollback(ctx context.Context) error {
	if j.tx == nil {
		return nil
	}
	return j.tx.Rollback(ctx)
}

func collectExpulsions(rows pgx.Rows) ([]admission.Expulsion, error) {
	defer rows.Close()

	var out []admission.Expulsion
	for rows.Next() {
		var e admission.Expulsion
		if err := rows.Scan(&e.Chat, &e.User, &e.ChatTitle, &e.Reason, &e.Until); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
