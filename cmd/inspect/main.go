// Command inspect loads a GTFS feed, builds the mode graphs and prints their
// stats. Useful for checking a feed before pointing the API server at it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/krakflow/krakflow_core/internal/graph"
	"github.com/krakflow/krakflow_core/internal/gtfs"
	"github.com/krakflow/krakflow_core/internal/models"
)

func main() {
	feedPath := flag.String("gtfs", "gtfs.zip", "path to the GTFS zip archive")
	parkingsPath := flag.String("parkings", "", "optional bike parkings file (JSON or GeoJSON)")
	flag.Parse()

	feed, err := gtfs.Load(*feedPath)
	if err != nil {
		log.Fatalf("Failed to load GTFS feed: %v", err)
	}

	fmt.Printf("Feed: %d stops, %d routes, %d trips, %d stop times\n",
		len(feed.Stops), len(feed.Routes), len(feed.Trips), len(feed.StopTimes))
	if feed.ServiceDate != "" {
		fmt.Printf("Narrowed to service date %s\n", feed.ServiceDate)
	}

	builder := graph.NewBuilder()
	graphs, err := builder.Build(feed)
	if err != nil {
		log.Fatalf("Failed to build graphs: %v", err)
	}
	store := graph.NewStore(graphs, builder)

	if *parkingsPath != "" {
		parkings, err := graph.LoadBikeParkingFile(*parkingsPath)
		if err != nil {
			log.Fatalf("Failed to load bike parkings: %v", err)
		}
		if err := store.LoadBikeParkings(parkings, 0); err != nil {
			log.Fatalf("Failed to apply bike parkings: %v", err)
		}
		fmt.Printf("Applied %d bike parkings\n", len(parkings))
	}

	fmt.Printf("\n%-14s %8s %10s %12s\n", "MODE", "NODES", "EDGES", "COMPONENTS")
	for _, stat := range store.Stats() {
		fmt.Printf("%-14s %8d %10d %12d\n", stat.Mode, stat.Nodes, stat.Edges, stat.Components)
		if stat.Components != 1 {
			fmt.Fprintf(os.Stderr, "warning: %s graph is not weakly connected\n", stat.Mode)
		}
	}

	if _, err := store.ClosestTransitEdge(50.062, 19.938); errors.Is(err, models.ErrNoTransitEdges) {
		fmt.Fprintln(os.Stderr, "warning: feed contains no transit edges")
	}
}
