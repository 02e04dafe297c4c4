package storage

import (
	"context"
	"database/sql"
	"errors"
)

// LoadCart returns the persisted cart in insertion order. A missing cart is empty.
func (d *DB) LoadCart(ctx context.Context) (CartRecord, error) {
	var rec CartRecord
	rows, err := d.sql.QueryContext(ctx, "SELECT card_id, name, amount FROM cart_items ORDER BY position")
	if err != nil {
		return rec, err
	}
	defer rows.Close()
	for rows.Next() {
		var it CartItemRecord
		if err := rows.Scan(&it.CardID, &it.Name, &it.Amount); err != nil {
			return rec, err
		}
		rec.Items = append(rec.Items, it)
	}
	if err := rows.Err(); err != nil {
		return rec, err
	}

	err = d.sql.QueryRowContext(ctx, "SELECT voluntary FROM cart_meta WHERE id = 1").Scan(&rec.Voluntary)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	return rec, nil
}

// SaveCart replaces the persisted cart.
func (d *DB) SaveCart(ctx context.Context, rec CartRecord) (err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM cart_items"); err != nil {
		return err
	}
	for i, it := range rec.Items {
		if _, err = tx.ExecContext(ctx, "INSERT INTO cart_items(card_id, position, name, amount) VALUES(?,?,?,?)", it.CardID, i, it.Name, it.Amount); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx, "INSERT INTO cart_meta(id, voluntary) VALUES(1, ?) ON CONFLICT(id) DO UPDATE SET voluntary = excluded.voluntary", rec.Voluntary); err != nil {
		return err
	}
	return tx.Commit()
}

// ClearCart wipes the persisted cart.
func (d *DB) ClearCart(ctx context.Context) (err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, "DELETE FROM cart_items"); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM cart_meta"); err != nil {
		return err
	}
	return tx.Commit()
}
