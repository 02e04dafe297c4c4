package storage

import (
	"context"
	"database/sql"
)

// UpsertCards inserts or refreshes catalog cards by id.
func (d *DB) UpsertCards(ctx context.Context, cards []CardRecord) (err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, c := range cards {
		_, err = tx.ExecContext(ctx, `INSERT INTO cards(card_id, backend_ref, display_name, age_band, category, image_url) VALUES(?,?,?,?,?,?)
ON CONFLICT(card_id) DO UPDATE SET backend_ref = excluded.backend_ref, display_name = excluded.display_name, age_band = excluded.age_band, category = excluded.category, image_url = excluded.image_url`,
			c.ID, nullIfEmpty(c.BackendRef), c.DisplayName, c.AgeBand, nullIfEmpty(c.Category), nullIfEmpty(c.ImageURL))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListCards returns the stored catalog ordered by age band then id.
func (d *DB) ListCards(ctx context.Context) ([]CardRecord, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT card_id, backend_ref, display_name, age_band, category, image_url FROM cards ORDER BY age_band, card_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CardRecord
	for rows.Next() {
		var (
			c                    CardRecord
			ref, category, image sql.NullString
		)
		if err := rows.Scan(&c.ID, &ref, &c.DisplayName, &c.AgeBand, &category, &image); err != nil {
			return nil, err
		}
		c.BackendRef = ref.String
		c.Category = category.String
		c.ImageURL = image.String
		out = append(out, c)
	}
	return out, rows.Err()
}
