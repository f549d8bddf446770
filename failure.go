package dcfsim

// failure.go holds the taxonomy of reception failures.  Every reason a PHY
// may give for dropping a frame is looked up in a single table saying whether
// the model tolerates it (and which counter records it) or whether it shows
// the model has left its domain of validity.

import (
	"errors"
	"fmt"
	"time"
)

// FailureReason is the reason a receiver dropped a frame
type FailureReason int

const (
	UnknownReason FailureReason = iota
	UnsupportedSettings
	ChannelSwitching
	BusyDecodingPreamble
	Rxing
	Txing
	Sleeping
	PreambleDetectFailure
	ReceptionAbortedByTx
	LSigFailure
	HtSigFailure
	SigAFailure
	SigBFailure
	PreambleDetectionPacketSwitch
	FrameCapturePacketSwitch
	ObssPdCcaReset
)

// FailureAction says what the model does with a failure
type FailureAction int

const (
	Fatal FailureAction = iota
	Counted
)

// RxOutcome classifies one reception at one station
type RxOutcome int

const (
	RxSuccess RxOutcome = iota
	RxCollisionWhileTransmitting
	RxCollisionWhileReceiving
	RxCollisionWhileDecodingPreamble
	RxAbortedByOwnTransmission
	RxCorrupted
)

var rxOutcomeToStr map[RxOutcome]string = map[RxOutcome]string{
	RxSuccess:                        "success",
	RxCollisionWhileTransmitting:     "collision-while-transmitting",
	RxCollisionWhileReceiving:        "collision-while-receiving",
	RxCollisionWhileDecodingPreamble: "collision-while-decoding-preamble",
	RxAbortedByOwnTransmission:       "aborted-by-own-transmission",
	RxCorrupted:                      "corrupted"}

func (ro RxOutcome) String() string {
	str, present := rxOutcomeToStr[ro]
	if !present {
		return fmt.Sprintf("RxOutcome(%d)", int(ro))
	}
	return str
}

type failurePolicy struct {
	name     string
	action   FailureAction
	category Category
	diag     string
}

var failureTbl map[FailureReason]failurePolicy = map[FailureReason]failurePolicy{
	UnknownReason:         {"UNKNOWN", Fatal, noCategory, "unknown drop reason"},
	UnsupportedSettings:   {"UNSUPPORTED_SETTINGS", Fatal, noCategory, "reception with unsupported settings"},
	ChannelSwitching:      {"CHANNEL_SWITCHING", Fatal, noCategory, "channel switching is not modeled"},
	BusyDecodingPreamble:  {"BUSY_DECODING_PREAMBLE", Counted, RxWhileDecodingPreamble, ""},
	Rxing:                 {"RXING", Counted, RxWhileReceiving, ""},
	Txing:                 {"TXING", Counted, RxWhileTransmitting, ""},
	Sleeping:              {"SLEEPING", Fatal, noCategory, "stations never sleep"},
	PreambleDetectFailure: {"PREAMBLE_DETECT_FAILURE", Fatal, noCategory, "preambles are always detected"},
	ReceptionAbortedByTx:  {"RECEPTION_ABORTED_BY_TX", Counted, RxAbortedByTx, ""},
	LSigFailure:           {"L_SIG_FAILURE", Counted, PhyHeaderFailed, ""},
	HtSigFailure:          {"HT_SIG_FAILURE", Fatal, noCategory, "unexpected PHY header failure"},
	SigAFailure:           {"SIG_A_FAILURE", Fatal, noCategory, "unexpected PHY header failure"},
	SigBFailure:           {"SIG_B_FAILURE", Fatal, noCategory, "unexpected PHY header failure"},
	PreambleDetectionPacketSwitch: {"PREAMBLE_DETECTION_PACKET_SWITCH", Fatal, noCategory,
		"all stations send with the same power, no packet switch during preamble detection"},
	FrameCapturePacketSwitch: {"FRAME_CAPTURE_PACKET_SWITCH", Fatal, noCategory, "frame capture is disabled"},
	ObssPdCcaReset:           {"OBSS_PD_CCA_RESET", Fatal, noCategory, "unexpected CCA reset"},
}

func lookupFailure(fr FailureReason) failurePolicy {
	policy, present := failureTbl[fr]
	if !present {
		return failureTbl[UnknownReason]
	}
	return policy
}

func (fr FailureReason) String() string {
	policy, present := failureTbl[fr]
	if !present {
		return fmt.Sprintf("FailureReason(%d)", int(fr))
	}
	return policy.name
}

// Policy returns the action taken for the reason and, for counted
// reasons, the counter category it increments
func (fr FailureReason) Policy() (FailureAction, Category) {
	policy := lookupFailure(fr)
	return policy.action, policy.category
}

// ErrModelViolation is wrapped by every ModelViolation
var ErrModelViolation = errors.New("model assumption violated")

// ModelViolation is the fatal error raised when an observed event shows
// the simulation has left the conditions the model supports
type ModelViolation struct {
	Reason  FailureReason
	Station StationID
	Time    time.Duration
	Detail  string
}

func (mv *ModelViolation) Error() string {
	return fmt.Sprintf("%v at %v, station %d (%s): %s", ErrModelViolation, mv.Time, mv.Station,
		mv.Reason, mv.Detail)
}

func (mv *ModelViolation) Unwrap() error {
	return ErrModelViolation
}

// newModelViolation builds the error for a fatal reason, using the
// table's diagnostic unless a more specific one is given
func newModelViolation(fr FailureReason, id StationID, at time.Duration, detail string) *ModelViolation {
	if detail == "" {
		detail = lookupFailure(fr).diag
	}
	return &ModelViolation{Reason: fr, Station: id, Time: at, Detail: detail}
}
