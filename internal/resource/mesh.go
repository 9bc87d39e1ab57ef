package resource

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const maxMeshBytes = 32 << 20

// glbMagic is the little-endian "glTF" header of a binary glTF container.
const glbMagic = 0x46546C67

// Mesh is the raw model asset shared by every spherical model. Decoding the
// geometry is left to the renderer.
type Mesh struct {
	Path   string
	Format string // "glb" or "gltf"
	Data   []byte
}

// MeshLoader reads model assets from disk or over HTTP.
type MeshLoader struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewMeshLoader returns a loader using the given HTTP timeout for remote paths.
func NewMeshLoader(timeout time.Duration, logger *slog.Logger) *MeshLoader {
	return &MeshLoader{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Load reads the asset at path (a file path or http(s) URL) and checks that it
// is a glTF 2.0 document.
func (l *MeshLoader) Load(ctx context.Context, path string) (*Mesh, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		data, err = l.fetch(ctx, path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, &LoadError{Key: path, Err: err}
	}

	format, err := validateGLTF(data)
	if err != nil {
		return nil, &LoadError{Key: path, Err: err}
	}

	l.logger.Debug("mesh loaded", "path", path, "format", format, "bytes", len(data))
	return &Mesh{Path: path, Format: format, Data: data}, nil
}

func (l *MeshLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching mesh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMeshBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxMeshBytes {
		return nil, fmt.Errorf("mesh exceeds %d byte limit", maxMeshBytes)
	}
	return body, nil
}

// validateGLTF identifies a binary (.glb) or JSON (.gltf) glTF 2.0 asset.
func validateGLTF(data []byte) (string, error) {
	if len(data) >= 12 && binary.LittleEndian.Uint32(data[0:4]) == glbMagic {
		if v := binary.LittleEndian.Uint32(data[4:8]); v != 2 {
			return "", fmt.Errorf("unsupported glb version %d", v)
		}
		if n := binary.LittleEndian.Uint32(data[8:12]); int(n) != len(data) {
			return "", fmt.Errorf("glb length header %d does not match file size %d", n, len(data))
		}
		return "glb", nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", fmt.Errorf("not a glTF asset")
	}
	var doc struct {
		Asset *struct {
			Version string `json:"version"`
		} `json:"asset"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return "", fmt.Errorf("parsing gltf: %w", err)
	}
	if doc.Asset == nil || !strings.HasPrefix(doc.Asset.Version, "2.") {
		return "", fmt.Errorf("unsupported gltf asset version")
	}
	return "gltf", nil
}

// IsLocalPath reports whether path refers to a file rather than a URL.
func IsLocalPath(path string) bool {
	return path != "" && !strings.Contains(path, "://")
}
