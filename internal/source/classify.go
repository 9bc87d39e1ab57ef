// Package source holds per-instrument knowledge keyed by Helioviewer source
// ID: which model geometry an image is mapped onto and the native resolution
// used to pick a request scale.
package source

import "sort"

// Geometry is the model class an instrument's images are rendered on.
type Geometry int

const (
	// Sphere maps solar-disk imagery onto a hemisphere.
	Sphere Geometry = iota
	// Plane maps coronagraph imagery onto a flat plane.
	Plane
)

func (g Geometry) String() string {
	switch g {
	case Sphere:
		return "sphere"
	case Plane:
		return "plane"
	default:
		return "unknown"
	}
}

// MarshalText renders the geometry name in JSON and logs.
func (g Geometry) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// planeSources are the coronagraph instruments rendered on a plane.
var planeSources = map[int]string{
	4:  "SOHO LASCO C2",
	5:  "SOHO LASCO C3",
	28: "STEREO-A COR1",
	29: "STEREO-A COR2",
	30: "STEREO-B COR1",
	31: "STEREO-B COR2",
	83: "MLSO K-Cor",
}

// Classify returns Plane for known coronagraph sources and Sphere otherwise.
func Classify(id int) Geometry {
	if _, ok := planeSources[id]; ok {
		return Plane
	}
	return Sphere
}

// PlaneSources returns the plane-classified source IDs in ascending order.
func PlaneSources() []int {
	ids := make([]int, 0, len(planeSources))
	for id := range planeSources {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Name returns the instrument name of a plane source, or "" for others.
func Name(id int) string {
	return planeSources[id]
}
