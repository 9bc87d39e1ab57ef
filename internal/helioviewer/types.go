package helioviewer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ImageInfo is the per-image physical description returned with an image.
type ImageInfo struct {
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	SolarCenterX  float64 `json:"solar_center_x"`
	SolarCenterY  float64 `json:"solar_center_y"`
	OffsetX       float64 `json:"offset_x"`
	OffsetY       float64 `json:"offset_y"`
	SolarRotation float64 `json:"solar_rotation"` // degrees
	SolarRadius   float64 `json:"solar_radius"`   // pixels
}

// Image identifies one archived image and its physical info.
type Image struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Info      ImageInfo `json:"info"`
}

// closestImageResponse is the getClosestImage payload. The API reports ids as
// strings and dates without a zone.
type closestImageResponse struct {
	ID        flexInt64 `json:"id"`
	Date      string    `json:"date"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	RefPixelX float64   `json:"refPixelX"`
	RefPixelY float64   `json:"refPixelY"`
	OffsetX   float64   `json:"offsetX"`
	OffsetY   float64   `json:"offsetY"`
	Rotation  float64   `json:"rotation"`
	Rsun      float64   `json:"rsun"`
	Error     string    `json:"error"`
}

// flexInt64 accepts a JSON number or a numeric string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("id: %s is neither number nor string", b)
		}
		n = json.Number(s)
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexInt64(v)
	return nil
}
