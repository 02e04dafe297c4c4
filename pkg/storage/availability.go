package storage

import (
	"context"
	"database/sql"
)

// LoadAvailability returns every known card id with its available flag.
func (d *DB) LoadAvailability(ctx context.Context) (map[string]bool, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT card_id, available FROM card_availability")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var (
			id        string
			available int
		)
		if err := rows.Scan(&id, &available); err != nil {
			return nil, err
		}
		out[id] = available == 1
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAvailability replaces the stored availability map with state.
func (d *DB) SaveAvailability(ctx context.Context, state map[string]bool) (err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM card_availability"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO card_availability(card_id, available, updated_at) VALUES(?, ?, CURRENT_TIMESTAMP)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for id, available := range state {
		if _, err = stmt.ExecContext(ctx, id, boolToInt(available)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
