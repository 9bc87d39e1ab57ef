package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/helio/sungo/internal/config"
	"github.com/helio/sungo/internal/frames"
	"github.com/helio/sungo/internal/helioviewer"
	"github.com/helio/sungo/internal/render"
	"github.com/helio/sungo/internal/resource"
)

// services are the process-wide collaborators built from the config.
type services struct {
	client   *helioviewer.Client
	textures *resource.Cache[*resource.Texture]
	meshes   *resource.Cache[*resource.Mesh]
	renderer *render.Headless
}

func newServices(cfg config.Config, logger *slog.Logger) *services {
	textureLoader := resource.NewTextureLoader(cfg.HTTPTimeout, cfg.MaxTextureSize, logger)
	meshLoader := resource.NewMeshLoader(cfg.HTTPTimeout, logger)
	return &services{
		client:   helioviewer.NewClient(cfg.HelioviewerURL, cfg.HTTPTimeout, logger),
		textures: resource.NewCache("textures", textureLoader.Load, logger),
		meshes:   resource.NewCache("meshes", meshLoader.Load, logger),
		renderer: render.NewHeadless(logger),
	}
}

func (s *services) frameDeps(cfg config.Config, logger *slog.Logger) frames.Deps {
	return frames.Deps{
		Fetcher:   s.client,
		Textures:  s.textures,
		Meshes:    s.meshes,
		Renderer:  s.renderer,
		ModelPath: cfg.ModelPath,
		Logger:    logger,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
