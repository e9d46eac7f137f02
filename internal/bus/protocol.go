// Package bus implements the producer gateway: the WebSocket endpoint
// emulated vehicles stream position updates to.
package bus

import (
	"encoding/json"
	"fmt"
)

// position is the decoded, validated form of one producer frame.
type position struct {
	BusID string
	Lat   float64
	Lng   float64
	Route string
}

// errSkip means "ignore this frame, keep reading" (missing/empty busId).
var errSkip = fmt.Errorf("skip frame")

// parseFrame decodes one JSON producer frame per spec.md §4.2:
//  1. a JSON parse failure is returned as-is (caller closes the connection);
//  2. a missing/empty busId returns errSkip (caller continues reading);
//  3. a missing or wrong-typed lat/lng/route returns a schema error
//     (caller closes the connection).
func parseFrame(raw []byte) (position, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return position{}, err
	}

	busID, _ := fields["busId"].(string)
	if busID == "" {
		return position{}, errSkip
	}

	lat, ok := asFloat(fields["lat"])
	if !ok {
		return position{}, fmt.Errorf("missing or non-numeric lat")
	}
	lng, ok := asFloat(fields["lng"])
	if !ok {
		return position{}, fmt.Errorf("missing or non-numeric lng")
	}
	route, ok := fields["route"].(string)
	if !ok {
		return position{}, fmt.Errorf("missing or non-string route")
	}

	return position{BusID: busID, Lat: lat, Lng: lng, Route: route}, nil
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
