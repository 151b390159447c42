package protocol

import "sync/atomic"

// Stats is a snapshot of the codec's cumulative counters, reported through
// the status surface alongside engine and pipe-server statistics.
type Stats struct {
	MessagesParsed     int64
	MessagesSerialized int64
	BytesParsed        int64
	ParseErrors        int64
}

var (
	messagesParsed     atomic.Int64
	messagesSerialized atomic.Int64
	bytesParsed        atomic.Int64
	parseErrors        atomic.Int64
)

// SnapshotStats returns the codec counters accumulated since process start.
func SnapshotStats() Stats {
	return Stats{
		MessagesParsed:     messagesParsed.Load(),
		MessagesSerialized: messagesSerialized.Load(),
		BytesParsed:        bytesParsed.Load(),
		ParseErrors:        parseErrors.Load(),
	}
}
