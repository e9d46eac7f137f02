package viewer

import "encoding/json"

// inboundEnvelope is enough of the frame to dispatch on msgType before
// decoding the rest. Anything that isn't a recognized newBounds frame is
// silently dropped — spec.md's ambiguity note on malformed viewer frames
// (no Errors reply is ever sent).
type inboundEnvelope struct {
	MsgType string `json:"msgType"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type newBoundsFrame struct {
	MsgType string `json:"msgType"`
	Data    struct {
		SouthWest latLng `json:"southWest"`
		NorthEast latLng `json:"northEast"`
	} `json:"data"`
}

// parseBounds decodes a newBounds frame into a Viewport. Returns ok=false
// for anything else, including malformed JSON — the caller just ignores
// the frame and keeps reading.
func parseBounds(raw []byte) (Viewport, bool) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.MsgType != "newBounds" {
		return Viewport{}, false
	}

	var frame newBoundsFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Viewport{}, false
	}

	return Viewport{
		SouthLat: frame.Data.SouthWest.Lat,
		WestLng:  frame.Data.SouthWest.Lng,
		NorthLat: frame.Data.NorthEast.Lat,
		EastLng:  frame.Data.NorthEast.Lng,
		Set:      true,
	}, true
}

// busOut is one vehicle in an outbound snapshot.
type busOut struct {
	BusID string  `json:"busId"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Route string  `json:"route"`
}

// snapshotFrame is the outbound "Buses" message.
type snapshotFrame struct {
	MsgType string   `json:"msgType"`
	Buses   []busOut `json:"buses"`
}

func encodeSnapshot(buses []busOut) ([]byte, error) {
	return json.Marshal(snapshotFrame{MsgType: "Buses", Buses: buses})
}
