package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"autolead-telegram-bot/internal/domain"
)

// LeadRepo — альтернативное хранилище заявок с тем же контрактом, что и jsonl.LeadStore.
type LeadRepo struct {
	db *sql.DB
}

func NewLeadRepo(dsn string) (*LeadRepo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// одна запись за раз, чтобы не ловить SQLITE_BUSY на параллельных сессиях
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LeadRepo{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS leads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at TEXT NOT NULL,
    service TEXT NOT NULL,
    name TEXT NOT NULL,
    city TEXT NOT NULL,
    contact TEXT NOT NULL,
    details TEXT NOT NULL,
    tg_id INTEGER,
    username TEXT
);
CREATE INDEX IF NOT EXISTS idx_leads_tg_id ON leads(tg_id);
`)
	return err
}

func (r *LeadRepo) Close() error { return r.db.Close() }

func (r *LeadRepo) Append(ctx context.Context, lead domain.Lead) error {
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = domain.NewTimestamp(time.Now())
	}
	var tgID sql.NullInt64
	if lead.RequesterID != nil {
		tgID = sql.NullInt64{Int64: *lead.RequesterID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leads(created_at, service, name, city, contact, details, tg_id, username) VALUES(?,?,?,?,?,?,?,?)`,
		lead.CreatedAt.String(), lead.Service, lead.Name, lead.City, lead.Contact, lead.Details, tgID, lead.RequesterHandle)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (r *LeadRepo) LastN(ctx context.Context, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		return []domain.Lead{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT created_at, service, name, city, contact, details, tg_id, username FROM leads ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Lead, 0, limit)
	for rows.Next() {
		var (
			lead      domain.Lead
			createdAt string
			tgID      sql.NullInt64
			username  sql.NullString
		)
		if err := rows.Scan(&createdAt, &lead.Service, &lead.Name, &lead.City, &lead.Contact, &lead.Details, &tgID, &username); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		if t, err := time.ParseInLocation(domain.TimestampLayout, createdAt, time.Local); err == nil {
			lead.CreatedAt = domain.Timestamp{Time: t}
		}
		if tgID.Valid {
			id := tgID.Int64
			lead.RequesterID = &id
		}
		lead.RequesterHandle = username.String
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// из базы пришли новые первыми, отдаём в хронологическом порядке
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
