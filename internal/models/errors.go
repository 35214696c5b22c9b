package models

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors surfaced by the transport engine. Handlers map them onto HTTP
// status codes; the engine itself neither retries nor logs them.
var (
	ErrFeedInvalid    = errors.New("gtfs feed invalid")
	ErrUnknownMode    = errors.New("unknown transport mode")
	ErrUnknownEdge    = errors.New("unknown edge")
	ErrUnknownNode    = errors.New("unknown node")
	ErrInvalidWeight  = errors.New("invalid edge weight")
	ErrNoPath         = errors.New("no path between nodes")
	ErrNoTransitEdges = errors.New("no transit edges available")
)

// UnknownModeError wraps ErrUnknownMode with the offending mode label.
func UnknownModeError(mode string) error {
	return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// UnknownEdgeError wraps ErrUnknownEdge. When parallel edges exist for the
// pair but none matches the requested key, the known keys are listed to help
// callers pick a valid one.
func UnknownEdgeError(mode, source, target, key string, knownKeys []string) error {
	if key != "" && len(knownKeys) > 0 {
		return fmt.Errorf("%w: key %q not found for %s->%s in mode %q (known keys: %s)",
			ErrUnknownEdge, key, source, target, mode, strings.Join(knownKeys, ", "))
	}
	return fmt.Errorf("%w: %s->%s in mode %q", ErrUnknownEdge, source, target, mode)
}
