package domain

// LogEntry is one well-formed line of the receipt log.
type LogEntry struct {
	Offset  int64
	Raw     []byte
	Receipt Receipt
}

type LogStats struct {
	Lines     int `json:"lines"`
	Receipts  int `json:"receipts"`
	Malformed int `json:"malformed"`
}
