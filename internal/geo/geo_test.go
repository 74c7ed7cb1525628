package geo

import (
	"math"
	"testing"
)

func TestDistanceKnownPoints(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		wantKm                 float64
		tolKm                  float64
	}{
		{"same point", 46.05, 14.51, 46.05, 14.51, 0, 0.001},
		{"ljubljana to maribor", 46.0569, 14.5058, 46.5547, 15.6459, 104, 3},
		{"london to paris", 51.5074, -0.1278, 48.8566, 2.3522, 344, 5},
		{"across the date line", 0, 179.5, 0, -179.5, 111.2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantKm) > tt.tolKm {
				t.Errorf("DistanceKm = %.2f, want %.2f ± %.2f", got, tt.wantKm, tt.tolKm)
			}
		})
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := DistanceKm(46.05, 14.51, 48.85, 2.35)
	b := DistanceKm(48.85, 2.35, 46.05, 14.51)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("distance not symmetric: %v vs %v", a, b)
	}
}

func TestBoundingBoxContainsCircle(t *testing.T) {
	lat, lng, radius := 46.05, 14.51, 50.0
	minLat, maxLat, minLng, maxLng := BoundingBox(lat, lng, radius)

	// Points on the circle in the four cardinal directions must fall
	// inside the box.
	for _, bearing := range []float64{0, 90, 180, 270} {
		rad := bearing * math.Pi / 180
		dLat := radius / EarthRadiusKm * 180 / math.Pi * math.Cos(rad)
		dLng := radius / EarthRadiusKm * 180 / math.Pi * math.Sin(rad) / math.Cos(lat*math.Pi/180)
		pLat, pLng := lat+dLat, lng+dLng
		if pLat < minLat || pLat > maxLat || pLng < minLng || pLng > maxLng {
			t.Errorf("bearing %v: point (%v, %v) outside box [%v %v %v %v]",
				bearing, pLat, pLng, minLat, maxLat, minLng, maxLng)
		}
	}
}

func TestBoundingBoxNearPole(t *testing.T) {
	_, _, minLng, maxLng := BoundingBox(89.9, 10, 50)
	if minLng != -180 || maxLng != 180 {
		t.Errorf("expected full longitude range near pole, got [%v, %v]", minLng, maxLng)
	}
}
