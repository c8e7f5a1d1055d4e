package sqlite

import (
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"autolead-telegram-bot/internal/usecase"
)

type FunnelRepo struct {
	db *sql.DB
}

func NewFunnelRepo(dsn string) (*FunnelRepo, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := migrateFunnel(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &FunnelRepo{db: db}, nil
}

func migrateFunnel(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS funnel_hits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id INTEGER NOT NULL,
    stage TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_funnel_hits_stage ON funnel_hits(stage);
CREATE INDEX IF NOT EXISTS idx_funnel_hits_chat_stage ON funnel_hits(chat_id, stage);
`)
	return err
}

func (r *FunnelRepo) Close() error { return r.db.Close() }

func (r *FunnelRepo) Hit(stage usecase.Stage, chatID int64) error {
	_, err := r.db.Exec(`INSERT INTO funnel_hits(chat_id, stage, created_at) VALUES(?,?,?)`, chatID, string(stage), time.Now())
	return err
}

func (r *FunnelRepo) Counts() map[usecase.Stage]int {
	rows, err := r.db.Query(`SELECT stage, COUNT(DISTINCT chat_id) FROM funnel_hits GROUP BY stage`)
	if err != nil {
		return map[usecase.Stage]int{}
	}
	defer rows.Close()
	out := map[usecase.Stage]int{}
	for rows.Next() {
		var stage string
		var cnt int
		if err := rows.Scan(&stage, &cnt); err == nil {
			out[usecase.Stage(stage)] = cnt
		}
	}
	return out
}
