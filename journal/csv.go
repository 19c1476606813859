package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	trades *csv.Writer
	events *csv.Writer
	tf, ef *os.File
}

func NewCSV(tradesPath, eventsPath string) (*CSVJournal, error) {
	tf, err := os.Create(tradesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(eventsPath)
	if err != nil {
		tf.Close()
		return nil, err
	}

	tw := csv.NewWriter(tf)
	ew := csv.NewWriter(ef)

	if err := tw.Write([]string{"order_id", "instrument", "side", "requested", "filled_qty", "filled_price", "status", "time"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"type", "source", "instrument", "detail", "time"}); err != nil {
		return nil, err
	}

	tw.Flush()
	if err := tw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{tw, ew, tf, ef}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	j.trades.Write([]string{
		t.OrderID,
		t.Instrument,
		t.Side,
		f(t.Requested),
		f(t.FilledQty),
		f(t.FilledPrice),
		t.Status,
		t.Time.Format(time.RFC3339),
	})
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSVJournal) RecordEvent(e EventRecord) error {
	err := j.events.Write([]string{
		e.Type,
		e.Source,
		e.Instrument,
		e.Detail,
		e.Time.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	j.events.Flush()
	return j.events.Error()
}

func (j *CSVJournal) Close() error {
	j.trades.Flush()
	if err := j.trades.Error(); err != nil {
		return err
	}
	j.events.Flush()
	if err := j.events.Error(); err != nil {
		return err
	}

	if err := j.tf.Close(); err != nil {
		return err
	}
	return j.ef.Close()
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
