package avatar

import (
	"fmt"

	"github.com/normanking/orangeavatar/internal/assets"
	"github.com/normanking/orangeavatar/internal/config"
)

// ResolveManifests builds the per-behavior asset manifests. A behavior
// whose base URL is not configured falls back to the backend's
// per-user, per-project media routing, so asset addressing follows the
// same opaque-prefix scheme the backend serves.
func ResolveManifests(cfg *config.Config) map[Behavior]assets.Manifest {
	manifests := make(map[Behavior]assets.Manifest, 3)

	manifests[BehaviorIdle] = assets.Manifest{
		Behavior:  string(BehaviorIdle),
		BaseURL:   mediaBaseURL(cfg, cfg.Avatar.Idle, ""),
		PoseNames: cfg.Avatar.Idle.PoseNames,
		PoseExt:   cfg.Media.PoseExt,
	}
	manifests[BehaviorThinking] = behaviorManifest(cfg, BehaviorThinking, cfg.Avatar.Thinking)
	manifests[BehaviorTalking] = behaviorManifest(cfg, BehaviorTalking, cfg.Avatar.Talking)

	return manifests
}

func behaviorManifest(cfg *config.Config, b Behavior, bc config.BehaviorConfig) assets.Manifest {
	return assets.Manifest{
		Behavior:   string(b),
		BaseURL:    mediaBaseURL(cfg, bc, string(b)),
		FrameCount: bc.FrameCount,
		FrameExt:   cfg.Media.FrameExt,
		PoseNames:  bc.PoseNames,
		PoseExt:    cfg.Media.PoseExt,
		CueName:    bc.CueName,
	}
}

// mediaBaseURL returns the configured base URL or derives the default
// backend route for the behavior's animation frame directory.
func mediaBaseURL(cfg *config.Config, bc config.BehaviorConfig, behavior string) string {
	if bc.BaseURL != "" {
		return bc.BaseURL
	}
	root := fmt.Sprintf("%s/api/users/%s/%s/media",
		cfg.Backend.ServerURL, cfg.Session.UserID, cfg.Session.ProjectName)
	if behavior == "" {
		return root
	}
	return fmt.Sprintf("%s/videos/talking-orange-%s-animation", root, behavior)
}
