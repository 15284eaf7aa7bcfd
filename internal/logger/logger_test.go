package logger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/radarbridge/internal/radar"
)

func readCSV(t *testing.T, dir string) [][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "radar_*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRecordRespectsInterval(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 500})
	clock := time.Date(2024, 5, 21, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	snap := radar.Snapshot{
		Connected: true,
		Detection: radar.DetectionReport{
			State: radar.TargetMoving, Presence: true,
			MovingDetected: true, MovingDistanceCm: 120, MovingEnergy: 55,
			DetectionDistanceCm: 120,
		},
		Frames: radar.AssemblerStats{Frames: 10, Discarded: 1},
	}
	l.Record(snap)
	clock = clock.Add(100 * time.Millisecond)
	l.Record(snap) // too soon
	clock = clock.Add(400 * time.Millisecond)

	eng := &radar.EngineeringData{LightLevel: 80, OutPin: true}
	eng.MovingEnergyPerGate[1] = 60
	eng.StationaryEnergyPerGate[8] = 7
	snap.Engineering = eng
	l.Record(snap)
	l.Close()

	rows := readCSV(t, dir)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Len(t, rows[0], 13+2*radar.GateCount+2)

	basic := rows[1]
	assert.Equal(t, "2024-05-21T12:00:00Z", basic[0])
	assert.Equal(t, []string{"1", "moving", "1", "1", "120", "55", "0", "0", "0", "120"}, basic[1:11])
	assert.Equal(t, "", basic[11], "no light level without engineering data")
	assert.Equal(t, []string{"10", "1"}, basic[len(basic)-2:])

	full := rows[2]
	assert.Equal(t, "80", full[11])
	assert.Equal(t, "1", full[12])
	assert.Equal(t, "60", full[14])
	assert.Equal(t, "7", full[13+2*radar.GateCount-1])
}

func TestDisabledLoggerWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l := New(Config{Path: dir})
	assert.False(t, l.IsEnabled())
	l.Record(radar.Snapshot{})

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	l.SetEnabled(true)
	l.Record(radar.Snapshot{})
	l.SetEnabled(false)
	assert.Len(t, readCSV(t, dir), 2)
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 100})
	clock := time.Date(2024, 5, 21, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	l.Record(radar.Snapshot{})
	l.rows = maxRowsPerFile
	clock = clock.Add(time.Second)
	l.Record(radar.Snapshot{})
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "radar_*.csv"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}
