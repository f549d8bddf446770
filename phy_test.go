package dcfsim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterframeSpaces(t *testing.T) {
	assert.Equal(t, 50*time.Microsecond, DIFS)

	phy := DefaultPhyParams()
	assert.Equal(t, 304*time.Microsecond, phy.AckDuration())
	assert.Equal(t, 304*time.Microsecond, phy.CtsDuration())
	assert.Equal(t, 352*time.Microsecond, phy.RtsDuration())
	assert.Equal(t, 364*time.Microsecond, phy.EIFS())
}

func TestSuccessTime(t *testing.T) {
	// 192 + 8688/11 + 10 + 304 + 4 + 50 us, rounded
	assert.Equal(t, 1350*time.Microsecond, SuccessTime(1024))
	assert.Equal(t, SuccessTime(1024), DefaultPhyParams().SuccessTime(1024))

	slow := PhyParams{DataRate: 1e6, ControlRate: 1e6}
	assert.Equal(t, (192+8688+10+304+4+50)*time.Microsecond, slow.SuccessTime(1024))
}

func TestDataDuration(t *testing.T) {
	phy := DefaultPhyParams()
	single := phy.DataDuration(1024, 1)
	assert.Equal(t, PhyHeader+time.Duration(789818)*time.Nanosecond, single)

	double := phy.DataDuration(1024, 2)
	assert.Equal(t, PhyHeader+2*(single-PhyHeader), double)
}

func TestPhyParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultPhyParams().Validate())
	assert.NoError(t, PhyParams{DataRate: 5.5e6, ControlRate: 2e6}.Validate())

	err := PhyParams{DataRate: 54e6, ControlRate: 6e6}.Validate()
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "data rate")
		assert.Contains(t, err.Error(), "control rate")
	}
}
