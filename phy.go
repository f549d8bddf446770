package dcfsim

// phy.go holds the 802.11b DSSS timing constants and the formulas
// that turn frame sizes into air times.

import (
	"fmt"
	"golang.org/x/exp/slices"
	"math"
	"time"
)

// interframe spaces, slot and PHY overheads
const (
	SIFS              = 10 * time.Microsecond
	Slot              = 20 * time.Microsecond
	DIFS              = SIFS + 2*Slot
	PropagationDelay  = 2 * time.Microsecond
	PhyHeader         = 192 * time.Microsecond
	PreambleDetection = 4 * time.Microsecond
)

// frame sizes, in bytes
const (
	MacHeaderBytes = 62
	AckBytes       = 14
	RtsBytes       = 20
	CtsBytes       = 14
)

// DSSS rates, in bits per second
const (
	DefaultDataRate  = 11e6
	DefaultBasicRate = 1e6
)

// supportedRates lists the 802.11b DSSS/HR-DSSS rates
var supportedRates = []float64{1e6, 2e6, 5.5e6, 11e6}

// PhyParams carries the rates used for data and for control responses
type PhyParams struct {
	DataRate    float64 `json:"datarate" yaml:"datarate"`
	ControlRate float64 `json:"controlrate" yaml:"controlrate"`
}

// DefaultPhyParams returns the 11 Mb/s data, 1 Mb/s control configuration
func DefaultPhyParams() PhyParams {
	return PhyParams{DataRate: DefaultDataRate, ControlRate: DefaultBasicRate}
}

// Validate reports rates the DSSS PHY does not support
func (pp PhyParams) Validate() error {
	errs := []error{}
	if !slices.Contains(supportedRates, pp.DataRate) {
		errs = append(errs, fmt.Errorf("unsupported PHY settings: data rate %g b/s", pp.DataRate))
	}
	if !slices.Contains(supportedRates, pp.ControlRate) {
		errs = append(errs, fmt.Errorf("unsupported PHY settings: control rate %g b/s", pp.ControlRate))
	}
	return ReportErrs(errs)
}

// bitsTime is the time needed to send 'bytes' at 'rate', rounded to the nanosecond
func bitsTime(bytes int, rate float64) time.Duration {
	return time.Duration(math.Round(float64(bytes*8) / rate * 1e9))
}

// roundMicro rounds a duration to the nearest microsecond
func roundMicro(d time.Duration) time.Duration {
	return d.Round(time.Microsecond)
}

// TxDuration is the air time of a PSDU of 'bytes' sent at 'rate'
func TxDuration(bytes int, rate float64) time.Duration {
	return PhyHeader + bitsTime(bytes, rate)
}

// DataDuration is the air time of 'mpdus' data MPDUs of 'payload' bytes each
func (pp PhyParams) DataDuration(payload, mpdus int) time.Duration {
	return TxDuration(mpdus*(MacHeaderBytes+payload), pp.DataRate)
}

// AckDuration is the air time of an ACK at the control rate
func (pp PhyParams) AckDuration() time.Duration {
	return roundMicro(TxDuration(AckBytes, pp.ControlRate))
}

// CtsDuration is the air time of a CTS at the control rate
func (pp PhyParams) CtsDuration() time.Duration {
	return roundMicro(TxDuration(CtsBytes, pp.ControlRate))
}

// RtsDuration is the air time of an RTS at the control rate
func (pp PhyParams) RtsDuration() time.Duration {
	return roundMicro(TxDuration(RtsBytes, pp.ControlRate))
}

// EIFS replaces DIFS after a reception that ended in error
func (pp PhyParams) EIFS() time.Duration {
	return SIFS + pp.AckDuration() + DIFS
}

// ResponseTimeout is how long an initiator waits, from the end of its frame,
// for an ACK (or CTS) of duration 'resp' to be fully received
func (pp PhyParams) ResponseTimeout(resp time.Duration) time.Duration {
	return SIFS + resp + 2*PropagationDelay + Slot
}

// SuccessTime is the duration of one successful basic-access exchange
// carrying 'payload' bytes: DATA, SIFS, ACK, propagation both ways, DIFS.
func (pp PhyParams) SuccessTime(payload int) time.Duration {
	t := PhyHeader + bitsTime(MacHeaderBytes+payload, pp.DataRate) +
		SIFS + pp.AckDuration() + 2*PropagationDelay + DIFS
	return roundMicro(t)
}

// SuccessTime evaluates the exchange duration at the default 11 Mb/s rates
func SuccessTime(payload int) time.Duration {
	return DefaultPhyParams().SuccessTime(payload)
}
