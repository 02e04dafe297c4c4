package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// SaveDonationInfo stores the info of a donation waiting for its payment
// result, keyed by its reference. Saving the same reference again replaces it.
func (d *DB) SaveDonationInfo(ctx context.Context, info DonationInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `INSERT INTO pending_donations(reference, info) VALUES(?, ?)
ON CONFLICT(reference) DO UPDATE SET info = excluded.info`, info.Reference, string(b))
	return err
}

// LoadDonationInfo returns the pending donation with the given reference, or
// nil when there is none.
func (d *DB) LoadDonationInfo(ctx context.Context, reference string) (*DonationInfo, error) {
	var raw string
	err := d.sql.QueryRowContext(ctx, "SELECT info FROM pending_donations WHERE reference = ?", reference).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info DonationInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// PendingDonations lists every donation still waiting for a payment result,
// newest first.
func (d *DB) PendingDonations(ctx context.Context) ([]DonationInfo, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT info FROM pending_donations ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DonationInfo
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var info DonationInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// ClearDonationInfo drops the pending donation with the given reference.
func (d *DB) ClearDonationInfo(ctx context.Context, reference string) error {
	_, err := d.sql.ExecContext(ctx, "DELETE FROM pending_donations WHERE reference = ?", reference)
	return err
}
