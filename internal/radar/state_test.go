package radar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateLiveness(t *testing.T) {
	s := NewState(0)
	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { return clock }

	assert.False(t, s.Snapshot().Connected, "no frame yet")

	s.MarkFrame(AssemblerStats{Frames: 1})
	assert.True(t, s.Snapshot().Connected)

	clock = clock.Add(DefaultLivenessWindow - time.Millisecond)
	assert.True(t, s.Snapshot().Connected)

	clock = clock.Add(time.Millisecond)
	assert.False(t, s.Snapshot().Connected)

	s.MarkFrame(AssemblerStats{Frames: 2})
	snap := s.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, clock, snap.LastFrame)
	assert.Equal(t, uint64(2), snap.Frames.Frames)
}

func TestStateCustomLiveness(t *testing.T) {
	s := NewState(time.Second)
	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { return clock }

	s.MarkFrame(AssemblerStats{})
	clock = clock.Add(1500 * time.Millisecond)
	assert.False(t, s.Snapshot().Connected)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewState(0)
	eng := &EngineeringData{LightLevel: 10}
	s.ApplyEngineering(eng)
	s.ApplyConfiguration(SensorConfiguration{MaxGate: 8, MaxMovingGate: 8})
	s.ApplyFirmware(FirmwareVersion{Major: 2})

	eng.LightLevel = 99
	snap := s.Snapshot()
	require.NotNil(t, snap.Engineering)
	assert.Equal(t, uint8(10), snap.Engineering.LightLevel)

	snap.Engineering.MovingEnergyPerGate[0] = 55
	snap.Configuration.MaxMovingGate = 1
	snap.Firmware.Major = 9

	again := s.Snapshot()
	assert.Equal(t, uint8(0), again.Engineering.MovingEnergyPerGate[0])
	assert.Equal(t, uint8(8), again.Configuration.MaxMovingGate)
	assert.Equal(t, uint8(2), again.Firmware.Major)
}

func TestBasicReportClearsEngineering(t *testing.T) {
	s := NewState(0)
	p := NewPipeline(&streamingTransport{}, s, 0)

	eng := &EngineeringData{MaxMovingGate: 8, MaxStationaryGate: 8}
	p.process(EncodeReport(DetectionReport{State: TargetMoving, MovingDistanceCm: 80}, eng))
	require.NotNil(t, s.Snapshot().Engineering)

	p.process(basicFrame)
	snap := s.Snapshot()
	assert.Nil(t, snap.Engineering)
	assert.Equal(t, TargetBoth, snap.Detection.State)
	assert.False(t, snap.DetectionAt.IsZero())
}

func TestCorruptFrameCountsForLiveness(t *testing.T) {
	s := NewState(0)
	p := NewPipeline(&streamingTransport{}, s, 0)

	bad := append([]byte(nil), basicFrame...)
	bad[7] = 0x00 // inner head marker
	p.process(bad)

	snap := s.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, DetectionReport{}, snap.Detection)
	assert.True(t, snap.DetectionAt.IsZero())
}
