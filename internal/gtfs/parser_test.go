package gtfs

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krakflow/krakflow_core/internal/models"
)

func writeFeedZip(t *testing.T, files map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "feed.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return path
}

func minimalFeedFiles() map[string]string {
	return map[string]string{
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"A,Rondo Mogilskie,50.0660,19.9610\n" +
			"B,Teatr Slowackiego,50.0650,19.9430\n" +
			"C,Dworzec Glowny,50.0680,19.9470\n",
		"routes.txt": "route_id,route_type,route_short_name,route_long_name\n" +
			"R1,0,4,Wzgorza Krzeslawickie - Bronowice\n",
		"trips.txt": "route_id,service_id,trip_id\n" +
			"R1,S1,T1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,A,1\n" +
			"T1,08:03:00,08:03:00,B,2\n" +
			"T1,08:05:00,08:05:00,C,3\n",
	}
}

func TestLoadMinimalFeed(t *testing.T) {
	path := writeFeedZip(t, minimalFeedFiles())

	feed, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, feed.Stops, 3)
	assert.Len(t, feed.Routes, 1)
	assert.Len(t, feed.Trips, 1)
	assert.Len(t, feed.StopTimes, 3)
	assert.Empty(t, feed.ServiceDate, "no calendars means no narrowing")

	assert.Equal(t, 8*3600.0, feed.StopTimes[0].ArrivalSeconds)
	assert.Equal(t, "tram", RouteTypeLabel(feed.Routes[0].Type))
}

func TestLoadStripsBOMAndNestedDirs(t *testing.T) {
	files := minimalFeedFiles()
	files["gtfs/stops.txt"] = "\xEF\xBB\xBF" + files["stops.txt"]
	delete(files, "stops.txt")

	feed, err := Load(writeFeedZip(t, files))
	require.NoError(t, err)
	assert.Len(t, feed.Stops, 3)
	assert.Equal(t, "A", feed.Stops[0].ID)
}

func TestLoadMissingRequiredFile(t *testing.T) {
	files := minimalFeedFiles()
	delete(files, "stop_times.txt")

	_, err := Load(writeFeedZip(t, files))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrFeedInvalid)
}

func TestLoadSkipsOutOfRangeStops(t *testing.T) {
	files := minimalFeedFiles()
	files["stops.txt"] += "BAD,Nowhere,123.0,300.0\n"

	feed, err := Load(writeFeedZip(t, files))
	require.NoError(t, err)
	assert.Len(t, feed.Stops, 3)
}

func TestLoadNarrowsToFirstServiceDate(t *testing.T) {
	files := minimalFeedFiles()
	files["trips.txt"] = "route_id,service_id,trip_id\n" +
		"R1,WEEKDAY,T1\n" +
		"R1,WEEKEND,T2\n"
	files["stop_times.txt"] += "T2,09:00:00,09:00:00,A,1\nT2,09:04:00,09:04:00,B,2\n"
	// 20240701 is a Monday, so WEEKDAY's first active date precedes WEEKEND's.
	files["calendar.txt"] = "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"WEEKDAY,1,1,1,1,1,0,0,20240701,20240731\n" +
		"WEEKEND,0,0,0,0,0,1,1,20240701,20240731\n"

	feed, err := Load(writeFeedZip(t, files))
	require.NoError(t, err)

	assert.Equal(t, "20240701", feed.ServiceDate)
	require.Len(t, feed.Trips, 1)
	assert.Equal(t, "T1", feed.Trips[0].ID)
	assert.Len(t, feed.StopTimes, 3)
}

func TestLoadCalendarDateExceptions(t *testing.T) {
	files := minimalFeedFiles()
	files["calendar.txt"] = "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"S1,1,1,1,1,1,1,1,20240701,20240731\n"
	// Removing S1 on the first date leaves nothing, so the full feed is kept.
	files["calendar_dates.txt"] = "service_id,date,exception_type\n" +
		"S1,20240701,2\n"

	feed, err := Load(writeFeedZip(t, files))
	require.NoError(t, err)
	assert.Empty(t, feed.ServiceDate)
	assert.Len(t, feed.StopTimes, 3)
}

func TestParseTimeToSeconds(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
		wantErr  bool
	}{
		{"midnight", "00:00:00", 0, false},
		{"morning", "08:30:15", 8*3600 + 30*60 + 15, false},
		{"past midnight service", "25:10:00", 25*3600 + 10*60, false},
		{"single digit hour", "7:05:00", 7*3600 + 5*60, false},
		{"empty", "", 0, true},
		{"garbage", "soon", 0, true},
		{"minutes overflow", "08:61:00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeToSeconds(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRouteTypeLabel(t *testing.T) {
	assert.Equal(t, "tram", RouteTypeLabel(0))
	assert.Equal(t, "bus", RouteTypeLabel(3))
	assert.Equal(t, "trolleybus", RouteTypeLabel(11))
	assert.Equal(t, "route_type_715", RouteTypeLabel(715))
}
