package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(order_id, instrument, side, requested, filled_qty, filled_price, status, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrderID, t.Instrument, t.Side, t.Requested,
		t.FilledQty, t.FilledPrice, t.Status, t.Time,
	)
	return err
}

func (j *SQLiteJournal) RecordEvent(e EventRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO events (type, source, instrument, detail, time)
		VALUES (?, ?, ?, ?, ?)`,
		e.Type, e.Source, e.Instrument, e.Detail, e.Time,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
