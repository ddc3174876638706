package database

import (
	"context"

	"zonebot/internal/model"
)

func (db *DB) LoadRecords(ctx context.Context) (map[int64][]model.Record, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, record_id, zone_id, zone_name, record_name, record_type, content
		 FROM owned_records ORDER BY user_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make(map[int64][]model.Record)
	for rows.Next() {
		var r model.Record
		if err := rows.Scan(&r.OwnerID, &r.ID, &r.ZoneID, &r.ZoneName, &r.Name, &r.Type, &r.Content); err != nil {
			return nil, err
		}
		records[r.OwnerID] = append(records[r.OwnerID], r)
	}
	return records, rows.Err()
}

// SaveUserRecords replaces the persisted record list for one user. Writing
// the whole list keeps the insertion order column trivial and lets a store
// that missed a flush catch up on the next mutation.
func (db *DB) SaveUserRecords(ctx context.Context, userID int64, records []model.Record) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM owned_records WHERE user_id = $1", userID); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO owned_records (user_id, record_id, zone_id, zone_name, record_name, record_type, content, position)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, userID, r.ID, r.ZoneID, r.ZoneName, r.Name, r.Type, r.Content, i); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
