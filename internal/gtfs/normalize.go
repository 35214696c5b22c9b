package gtfs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/krakflow/krakflow_core/internal/models"
)

// routeTypeLabels maps GTFS route_type codes to the mode labels used as graph
// names. Unknown codes fall through to a synthetic "route_type_<n>" label so a
// feed with extended types still builds.
var routeTypeLabels = map[int]string{
	0:  "tram",
	1:  "subway",
	2:  "rail",
	3:  "bus",
	4:  "ferry",
	5:  "cable_tram",
	6:  "aerial_lift",
	7:  "funicular",
	11: "trolleybus",
	12: "monorail",
}

// RouteTypeLabel returns the mode label for a GTFS route_type code.
func RouteTypeLabel(routeType int) string {
	if label, ok := routeTypeLabels[routeType]; ok {
		return label
	}
	return fmt.Sprintf("route_type_%d", routeType)
}

// ParseTimeToSeconds converts a GTFS HH:MM:SS time to seconds since service
// midnight. Hours past 24 are valid and represent service running into the
// next calendar day.
func ParseTimeToSeconds(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty time value", models.ErrFeedInvalid)
	}

	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: malformed time %q", models.ErrFeedInvalid, value)
	}

	hours, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("%w: malformed time %q", models.ErrFeedInvalid, value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: malformed time %q", models.ErrFeedInvalid, value)
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("%w: malformed time %q", models.ErrFeedInvalid, value)
	}

	return float64(hours*3600 + minutes*60 + seconds), nil
}
