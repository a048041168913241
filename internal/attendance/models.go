package attendance

import "time"

// Record is one listener connection.
type Record struct {
	IP          string
	ConnectedAt time.Time
}

// row is the SQL shape of a Record; timestamps are stored as UTC unix
// milliseconds so the same schema works on SQLite and Postgres.
type row struct {
	IP          string `db:"ip"`
	ConnectedAt int64  `db:"connected_at"`
}

func toRow(rec Record) row {
	return row{IP: rec.IP, ConnectedAt: rec.ConnectedAt.UTC().UnixMilli()}
}
