package dcfsim

// log.go sets up the leveled logger shared by a run and, at debug level,
// echoes the PHY and MAC event streams as log lines.

import (
	"github.com/charmbracelet/log"
	"io"
)

// NewLogger returns a logger writing to w.  Verbosity 0 logs warnings and
// errors, 1 adds run summaries, 2 and above adds every channel event.
func NewLogger(w io.Writer, verbose int) *log.Logger {
	level := log.WarnLevel
	switch {
	case verbose >= 2:
		level = log.DebugLevel
	case verbose == 1:
		level = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{Level: level, Prefix: "dcfsim"})
}

// discardLogger is used when the caller supplies none
func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// AttachEventLog logs every event of the streams at debug level.  Nothing is
// attached when the logger would discard the lines.
func AttachEventLog(streams *EventStreams, logger *log.Logger) {
	if logger.GetLevel() > log.DebugLevel {
		return
	}
	streams.PhyTxBegin.Subscribe(func(evt TxEvent) {
		logger.Debug("PHY-TX-START", "t", evt.Time, "node", evt.Station, "frame", evt.Frame)
	})
	streams.PhyTxEnd.Subscribe(func(evt TxEvent) {
		logger.Debug("PHY-TX-END", "t", evt.Time, "node", evt.Station, "frame", evt.Frame)
	})
	streams.PhyRxBegin.Subscribe(func(evt RxEvent) {
		logger.Debug("PHY-RX-START", "t", evt.Time, "node", evt.Station, "frame", evt.Frame)
	})
	streams.PhyRxPayload.Subscribe(func(evt RxEvent) {
		logger.Debug("PHY-RX-PAYLOAD-START", "t", evt.Time, "node", evt.Station, "frame", evt.Frame)
	})
	streams.PhyRxEnd.Subscribe(func(evt RxEvent) {
		logger.Debug("PHY-RX-END", "t", evt.Time, "node", evt.Station, "frame", evt.Frame)
	})
	streams.RxOk.Subscribe(func(evt RxEvent) {
		logger.Debug("PHY-RX-OK", "t", evt.Time, "node", evt.Station, "frame", evt.Frame)
	})
	streams.RxError.Subscribe(func(evt RxEvent) {
		logger.Debug("PHY-RX-ERROR", "t", evt.Time, "node", evt.Station, "frame", evt.Frame)
	})
	streams.RxDrop.Subscribe(func(evt RxDropEvent) {
		logger.Debug("PHY-RX-DROP", "t", evt.Time, "node", evt.Station, "frame", evt.Frame,
			"reason", evt.Reason, "outcome", evt.Outcome)
	})
	streams.Cw.Subscribe(func(evt CwEvent) {
		logger.Debug("CW", "t", evt.Time, "node", evt.Station, "cw", evt.Cw)
	})
	streams.Backoff.Subscribe(func(evt BackoffEvent) {
		logger.Debug("Backoff", "t", evt.Time, "node", evt.Station, "slots", evt.Slots)
	})
	streams.MacTxDrop.Subscribe(func(evt ExchangeEvent) {
		logger.Debug("MAC-TX-DROP", "t", evt.Time, "node", evt.Station, "frame", evt.Frame, "retry", evt.Retry)
	})
	streams.MacQueueDrop.Subscribe(func(evt MacEvent) {
		logger.Debug("MAC-QUEUE-DROP", "t", evt.Time, "node", evt.Station, "seq", evt.Packet.Seq)
	})
}
