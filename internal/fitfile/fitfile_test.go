package fitfile

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tormoder/fit"

	"github.com/thomasboulongne/strava-dashboard-sub001/internal/training"
)

func buildRide(t *testing.T) []byte {
	t.Helper()

	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	require.NoError(t, err)
	activity, err := file.Activity()
	require.NoError(t, err)

	start := time.Date(2024, 6, 3, 22, 30, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		record := fit.NewRecordMsg()
		record.Timestamp = start.Add(time.Duration(i) * time.Second)
		record.HeartRate = uint8(140 + i)
		if i != 2 {
			record.Power = 200
		}
		activity.Records = append(activity.Records, record)
	}

	lap := fit.NewLapMsg()
	lap.Timestamp = start.Add(10 * time.Minute)
	lap.StartTime = start
	lap.TotalElapsedTime = 600000
	lap.TotalTimerTime = 590000
	lap.AvgHeartRate = 150
	activity.Laps = append(activity.Laps, lap)

	session := fit.NewSessionMsg()
	session.Timestamp = start.Add(10 * time.Minute)
	session.StartTime = start
	session.Sport = fit.SportCycling
	session.TotalElapsedTime = 600000
	session.TotalTimerTime = 590000
	session.AvgPower = 210
	activity.Sessions = append(activity.Sessions, session)

	var buf bytes.Buffer
	require.NoError(t, fit.Encode(&buf, file, binary.LittleEndian))
	return buf.Bytes()
}

func TestDecodeRide(t *testing.T) {
	rec, err := Decode(bytes.NewReader(buildRide(t)))
	require.NoError(t, err)

	require.Equal(t, "Ride", rec.Activity.Type)
	require.Equal(t, 600, rec.Activity.ElapsedTime)
	require.Equal(t, 590, rec.Activity.MovingTime)
	require.Equal(t, 210.0, rec.Activity.AverageWatts)
	require.Equal(t, "2024-06-03", training.DateKey(rec.Activity.StartDateLocal))
	// unset on the session, averaged from records
	require.InDelta(t, 141.5, rec.Activity.AverageHeartrate, 0.001)

	require.Len(t, rec.Laps, 1)
	require.Equal(t, 600, rec.Laps[0].DurationSec())
	require.Equal(t, 150.0, rec.Laps[0].AverageHeartrate)
	require.Zero(t, rec.Laps[0].AverageWatts)

	require.Equal(t, []int{0, 1, 2, 3}, rec.Streams.Time)
	require.True(t, rec.Streams.HasHeartrate())
	require.Equal(t, []float64{200, 200, 200, 200}, rec.Streams.Watts)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(strings.NewReader("not a fit file"))
	require.Error(t, err)
}
