package domain

import "time"

// JournalEntry is a closed trade recorded together with the replay context it
// happened in.
type JournalEntry struct {
	Seq        uint64      `json:"seq"`
	SessionID  string      `json:"session_id"`
	Symbol     string      `json:"symbol"`
	Timeframe  Timeframe   `json:"timeframe"`
	Trade      ClosedTrade `json:"trade"`
	Equity     string      `json:"equity,omitempty"`
	RecordedAt time.Time   `json:"recorded_at"`
}
