package database

import "context"

func (db *DB) LoadApprovals(ctx context.Context) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT user_id FROM approved_users ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) SaveApprovals(ctx context.Context, ids []int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM approved_users"); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "INSERT INTO approved_users (user_id) VALUES ($1)", id); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
