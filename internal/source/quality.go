package source

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Quality selects the texture resolution and format requested upstream.
type Quality struct {
	// Resolution in pixels per side; 1024 requests a 1024x1024 image.
	Resolution int `json:"resolution" toml:"resolution"`
	// Format is "png", "jpg" or "webp". png is sharper but larger.
	Format string `json:"format" toml:"format"`
}

// Quality presets.
var (
	Low     = Quality{Resolution: 512, Format: "jpg"}
	Default = Quality{Resolution: 1024, Format: "png"}
	High    = Quality{Resolution: 2048, Format: "png"}
	Maximum = Quality{Resolution: 4096, Format: "png"}
)

// ParseQuality resolves a preset name (case-insensitive).
func ParseQuality(name string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return Low, nil
	case "", "default":
		return Default, nil
	case "high":
		return High, nil
	case "maximum", "max":
		return Maximum, nil
	default:
		return Quality{}, fmt.Errorf("unknown quality %q (want low, default, high or maximum)", name)
	}
}

// breakpoint maps the first source ID of a run to the native resolution of
// every ID up to the next breakpoint.
type breakpoint struct {
	id         int
	resolution int
}

// sourceResolutions is sorted by id.
var sourceResolutions = []breakpoint{
	{0, 1024},  // 0-7: EIT, LASCO, MDI
	{8, 4096},  // 8-19: AIA, HMI
	{20, 2048}, // 20-27: EUVI
	{28, 512},  // 28: COR1-A
	{29, 2048}, // 29: COR2-A
	{30, 512},  // 30: COR1-B
	{31, 2048}, // 31-32: COR2-B, SWAP
	{33, 512},  // 33-74
	{75, 1024}, // 75-76
	{77, 512},  // 77
	{78, 1024}, // 78 and above
}

// BaseResolution returns the native resolution for a source: the entry of
// the nearest breakpoint at or below id. Negative IDs are invalid and map to
// the lowest breakpoint with a warning.
func BaseResolution(id int, logger *slog.Logger) int {
	if id < 0 {
		logger.Warn("invalid source id, using lowest resolution breakpoint",
			"source_id", id,
			"breakpoint", sourceResolutions[0].id,
		)
		return sourceResolutions[0].resolution
	}
	// First breakpoint strictly above id; the one before it is the floor.
	i := sort.Search(len(sourceResolutions), func(i int) bool {
		return sourceResolutions[i].id > id
	})
	return sourceResolutions[i-1].resolution
}

// ResolutionScale returns the image scale to request so the delivered image
// is about resolution pixels wide. Never below 1: asking for more than the
// native resolution would only upscale.
func ResolutionScale(resolution, id int, logger *slog.Logger) float64 {
	base := BaseResolution(id, logger)
	if resolution <= 0 {
		logger.Warn("invalid resolution, requesting native scale", "resolution", resolution, "source_id", id)
		return 1
	}
	scale := float64(base) / float64(resolution)
	if scale < 1 {
		scale = 1
	}
	return scale
}
