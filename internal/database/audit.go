package database

import (
	"context"
	"database/sql"

	"zonebot/internal/model"
)

func (db *DB) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO audit_log (user_id, action, zone_name, record_name, record_type, detail)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.UserID, entry.Action, entry.ZoneName, entry.RecordName, entry.RecordType, entry.Detail,
	)
	return err
}

func (db *DB) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, action, zone_name, record_name, record_type, detail, created_at
		 FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var zoneName, recordName, recordType, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &zoneName, &recordName, &recordType, &detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ZoneName = zoneName.String
		e.RecordName = recordName.String
		e.RecordType = recordType.String
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
