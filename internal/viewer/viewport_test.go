package viewer

import "testing"

func TestViewportContainsExactBoundary(t *testing.T) {
	vp := Viewport{SouthLat: 0, NorthLat: 1, WestLng: 0, EastLng: 1, Set: true}
	if !vp.Contains(0, 0) {
		t.Error("south-west corner should be inside (inclusive bounds)")
	}
	if !vp.Contains(1, 1) {
		t.Error("north-east corner should be inside (inclusive bounds)")
	}
	if vp.Contains(1.0001, 0.5) {
		t.Error("just north of the bound should be excluded")
	}
}

func TestViewportCellRangeNegative(t *testing.T) {
	vp := Viewport{SouthLat: -0.25, NorthLat: 0.05, WestLng: -0.15, EastLng: 0.05, Set: true}
	cxLo, cxHi, cyLo, cyHi := vp.CellRange(0.1)

	if cxLo != -3 || cxHi != 0 {
		t.Fatalf("cx range = [%d,%d], want [-3,0]", cxLo, cxHi)
	}
	if cyLo != -2 || cyHi != 0 {
		t.Fatalf("cy range = [%d,%d], want [-2,0]", cyLo, cyHi)
	}
}
