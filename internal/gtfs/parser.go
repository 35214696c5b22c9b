package gtfs

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/krakflow/krakflow_core/internal/models"
)

// Feed holds the record collections the graph builder consumes. When service
// calendars are present the collections are narrowed to the first available
// service date.
type Feed struct {
	Stops     []Stop
	Routes    []Route
	Trips     []Trip
	StopTimes []StopTime

	// ServiceDate is the date the feed was narrowed to (YYYYMMDD), empty when
	// no narrowing was applied.
	ServiceDate string
}

// Stop is a row of stops.txt after validation.
type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

// Route is a row of routes.txt.
type Route struct {
	ID        string
	Type      int
	ShortName string
	LongName  string
}

// Trip is a row of trips.txt.
type Trip struct {
	ID        string
	RouteID   string
	ServiceID string
}

// StopTime is a row of stop_times.txt with times already converted to seconds
// since service midnight. A negative value means the time was absent or
// unparseable.
type StopTime struct {
	TripID           string
	StopID           string
	StopSequence     int
	ArrivalSeconds   float64
	DepartureSeconds float64
}

type stopCSV struct {
	ID   string  `csv:"stop_id"`
	Name string  `csv:"stop_name"`
	Lat  float64 `csv:"stop_lat"`
	Lon  float64 `csv:"stop_lon"`
}

type routeCSV struct {
	ID        string `csv:"route_id"`
	Type      int    `csv:"route_type"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
}

type tripCSV struct {
	RouteID   string `csv:"route_id"`
	ServiceID string `csv:"service_id"`
	ID        string `csv:"trip_id"`
}

type stopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	StopID        string `csv:"stop_id"`
	StopSequence  int    `csv:"stop_sequence"`
}

type calendarCSV struct {
	ServiceID string `csv:"service_id"`
	Monday    int8   `csv:"monday"`
	Tuesday   int8   `csv:"tuesday"`
	Wednesday int8   `csv:"wednesday"`
	Thursday  int8   `csv:"thursday"`
	Friday    int8   `csv:"friday"`
	Saturday  int8   `csv:"saturday"`
	Sunday    int8   `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

type calendarDateCSV struct {
	ServiceID     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int    `csv:"exception_type"`
}

// Load parses a GTFS zip archive and narrows it to a single service date.
func Load(path string) (*Feed, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening gtfs archive: %w", err)
	}
	defer reader.Close()

	files := map[string]io.ReadCloser{
		"stops.txt":          nil,
		"routes.txt":         nil,
		"trips.txt":          nil,
		"stop_times.txt":     nil,
		"calendar.txt":       nil,
		"calendar_dates.txt": nil,
	}
	defer func() {
		for _, rc := range files {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		parts := strings.Split(f.Name, "/")
		name := parts[len(parts)-1]
		if _, wanted := files[name]; !wanted {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		files[name] = rc
	}

	for _, required := range []string{"stops.txt", "routes.txt", "trips.txt", "stop_times.txt"} {
		if files[required] == nil {
			return nil, fmt.Errorf("%w: missing %s", models.ErrFeedInvalid, required)
		}
	}

	// LazyCSVReader survives sloppy quoting; the BOM reader strips unicode
	// BOMs some agencies prepend.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	feed := &Feed{}
	if feed.Stops, err = parseStops(files["stops.txt"]); err != nil {
		return nil, err
	}
	if feed.Routes, err = parseRoutes(files["routes.txt"]); err != nil {
		return nil, err
	}
	if feed.Trips, err = parseTrips(files["trips.txt"]); err != nil {
		return nil, err
	}
	if feed.StopTimes, err = parseStopTimes(files["stop_times.txt"]); err != nil {
		return nil, err
	}

	services, err := activeServicesOnFirstDate(files["calendar.txt"], files["calendar_dates.txt"])
	if err != nil {
		return nil, err
	}
	if services != nil {
		narrowToServices(feed, services.serviceIDs, services.date)
	}

	if len(feed.Stops) == 0 {
		return nil, fmt.Errorf("%w: no stops after loading", models.ErrFeedInvalid)
	}
	if len(feed.StopTimes) == 0 {
		return nil, fmt.Errorf("%w: no stop times after loading", models.ErrFeedInvalid)
	}

	return feed, nil
}

func parseStops(data io.Reader) ([]Stop, error) {
	rows := []*stopCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling stops.txt: %w", err)
	}

	stops := make([]Stop, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		if row.Lat < -90 || row.Lat > 90 || row.Lon < -180 || row.Lon > 180 {
			log.Printf("Warning: stop %s has out-of-range coordinates, skipping", row.ID)
			continue
		}
		stops = append(stops, Stop{ID: row.ID, Name: row.Name, Lat: row.Lat, Lon: row.Lon})
	}
	return stops, nil
}

func parseRoutes(data io.Reader) ([]Route, error) {
	rows := []*routeCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling routes.txt: %w", err)
	}

	routes := make([]Route, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		routes = append(routes, Route{
			ID:        row.ID,
			Type:      row.Type,
			ShortName: row.ShortName,
			LongName:  row.LongName,
		})
	}
	return routes, nil
}

func parseTrips(data io.Reader) ([]Trip, error) {
	rows := []*tripCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling trips.txt: %w", err)
	}

	trips := make([]Trip, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" || row.RouteID == "" {
			continue
		}
		trips = append(trips, Trip{ID: row.ID, RouteID: row.RouteID, ServiceID: row.ServiceID})
	}
	return trips, nil
}

func parseStopTimes(data io.Reader) ([]StopTime, error) {
	rows := []*stopTimeCSV{}
	if err := gocsv.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling stop_times.txt: %w", err)
	}

	stopTimes := make([]StopTime, 0, len(rows))
	for _, row := range rows {
		if row.TripID == "" || row.StopID == "" {
			continue
		}
		stopTimes = append(stopTimes, StopTime{
			TripID:           row.TripID,
			StopID:           row.StopID,
			StopSequence:     row.StopSequence,
			ArrivalSeconds:   timeToSecondsOrNegative(row.ArrivalTime),
			DepartureSeconds: timeToSecondsOrNegative(row.DepartureTime),
		})
	}
	return stopTimes, nil
}

func timeToSecondsOrNegative(value string) float64 {
	seconds, err := ParseTimeToSeconds(value)
	if err != nil {
		return -1
	}
	return seconds
}

type activeServices struct {
	date       string
	serviceIDs map[string]bool
}

// activeServicesOnFirstDate resolves the earliest service date present in the
// calendars and the set of service ids active on it. It returns nil when the
// feed carries no calendar information at all.
func activeServicesOnFirstDate(calendar, calendarDates io.Reader) (*activeServices, error) {
	var calRows []*calendarCSV
	if calendar != nil {
		if err := gocsv.Unmarshal(calendar, &calRows); err != nil {
			return nil, fmt.Errorf("unmarshaling calendar.txt: %w", err)
		}
	}
	var cdRows []*calendarDateCSV
	if calendarDates != nil {
		if err := gocsv.Unmarshal(calendarDates, &cdRows); err != nil {
			return nil, fmt.Errorf("unmarshaling calendar_dates.txt: %w", err)
		}
	}
	if len(calRows) == 0 && len(cdRows) == 0 {
		return nil, nil
	}

	var candidates []string
	for _, row := range calRows {
		if date, ok := firstActiveDate(row); ok {
			candidates = append(candidates, date)
		}
	}
	for _, row := range cdRows {
		if row.ExceptionType == 1 && row.Date != "" {
			candidates = append(candidates, row.Date)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Strings(candidates)
	first := candidates[0]

	active := map[string]bool{}
	for _, row := range calRows {
		if coversDate(row, first) {
			active[row.ServiceID] = true
		}
	}
	for _, row := range cdRows {
		if row.Date != first {
			continue
		}
		switch row.ExceptionType {
		case 1:
			active[row.ServiceID] = true
		case 2:
			delete(active, row.ServiceID)
		}
	}

	return &activeServices{date: first, serviceIDs: active}, nil
}

// firstActiveDate scans from the calendar row's start date for the first day
// whose weekday is enabled. The scan is bounded to two years of service.
func firstActiveDate(row *calendarCSV) (string, bool) {
	start, err := time.Parse("20060102", row.StartDate)
	if err != nil {
		return "", false
	}
	end, err := time.Parse("20060102", row.EndDate)
	if err != nil {
		return "", false
	}

	for day, steps := start, 0; !day.After(end) && steps < 731; day, steps = day.AddDate(0, 0, 1), steps+1 {
		if weekdayEnabled(row, day.Weekday()) {
			return day.Format("20060102"), true
		}
	}
	return "", false
}

func coversDate(row *calendarCSV, date string) bool {
	day, err := time.Parse("20060102", date)
	if err != nil {
		return false
	}
	if row.StartDate > date || row.EndDate < date {
		return false
	}
	return weekdayEnabled(row, day.Weekday())
}

func weekdayEnabled(row *calendarCSV, weekday time.Weekday) bool {
	switch weekday {
	case time.Monday:
		return row.Monday == 1
	case time.Tuesday:
		return row.Tuesday == 1
	case time.Wednesday:
		return row.Wednesday == 1
	case time.Thursday:
		return row.Thursday == 1
	case time.Friday:
		return row.Friday == 1
	case time.Saturday:
		return row.Saturday == 1
	default:
		return row.Sunday == 1
	}
}

// narrowToServices keeps only the trips (and their stop times) running on the
// chosen date. When narrowing would leave nothing, the unnarrowed collections
// are retained so a sparse calendar does not empty the graph.
func narrowToServices(feed *Feed, services map[string]bool, date string) {
	keptTrips := make([]Trip, 0, len(feed.Trips))
	keptTripIDs := make(map[string]bool)
	for _, trip := range feed.Trips {
		if services[trip.ServiceID] {
			keptTrips = append(keptTrips, trip)
			keptTripIDs[trip.ID] = true
		}
	}

	keptStopTimes := make([]StopTime, 0, len(feed.StopTimes))
	for _, st := range feed.StopTimes {
		if keptTripIDs[st.TripID] {
			keptStopTimes = append(keptStopTimes, st)
		}
	}

	if len(keptStopTimes) == 0 {
		log.Printf("Warning: narrowing to service date %s left no stop times, keeping full feed", date)
		return
	}

	feed.Trips = keptTrips
	feed.StopTimes = keptStopTimes
	feed.ServiceDate = date
}
