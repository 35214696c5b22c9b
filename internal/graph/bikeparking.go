package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/krakflow/krakflow_core/internal/models"
)

// LoadBikeParkingFile reads bike parking locations from either a plain JSON
// list of {latitude, longitude, name?} objects or a GeoJSON FeatureCollection
// with Point geometries.
func LoadBikeParkingFile(path string) ([]models.BikeParking, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bike parkings file: %w", err)
	}
	return ParseBikeParkings(data)
}

// ParseBikeParkings decodes either supported bike parking format.
func ParseBikeParkings(data []byte) ([]models.BikeParking, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Type == "FeatureCollection" {
		return parseGeoJSONParkings(data)
	}

	var parkings []models.BikeParking
	if err := json.Unmarshal(data, &parkings); err != nil {
		return nil, fmt.Errorf("parsing bike parkings: %w", err)
	}
	return parkings, nil
}

func parseGeoJSONParkings(data []byte) ([]models.BikeParking, error) {
	var collection struct {
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("parsing bike parkings GeoJSON: %w", err)
	}

	parkings := make([]models.BikeParking, 0, len(collection.Features))
	for _, feature := range collection.Features {
		if feature.Geometry.Type != "Point" || len(feature.Geometry.Coordinates) < 2 {
			continue
		}
		// GeoJSON orders coordinates [lon, lat].
		parkings = append(parkings, models.BikeParking{
			Longitude: feature.Geometry.Coordinates[0],
			Latitude:  feature.Geometry.Coordinates[1],
			Name:      feature.Properties.Name,
		})
	}
	return parkings, nil
}
