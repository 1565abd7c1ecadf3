// Package assets provides resource addressing, fetching and caching for
// avatar animation frames, static poses and audio cues.
package assets

import (
	"fmt"
)

// Manifest describes the addressable resources of one behavior.
// BaseURL is an opaque prefix supplied by the target-resolution
// collaborator; it may vary per user, project and session.
type Manifest struct {
	Behavior   string
	BaseURL    string
	FrameCount int
	FrameExt   string
	PoseNames  []string
	PoseExt    string
	CueName    string
	CueExt     string
}

// FrameAddress resolves the address of a single animation frame.
// Frames are zero-padded sequential names under the behavior base path.
// An out-of-range index is a contract violation, not a runtime error.
func (m Manifest) FrameAddress(index int) string {
	if index < 0 || index >= m.FrameCount {
		panic(fmt.Sprintf("assets: frame index %d out of range [0,%d) for behavior %q",
			index, m.FrameCount, m.Behavior))
	}
	return fmt.Sprintf("%s/frame_%05d.%s", m.BaseURL, index, m.FrameExt)
}

// PoseAddress resolves the address of a static pose image.
func (m Manifest) PoseAddress(index int) string {
	if index < 0 || index >= len(m.PoseNames) {
		panic(fmt.Sprintf("assets: pose index %d out of range [0,%d) for behavior %q",
			index, len(m.PoseNames), m.Behavior))
	}
	return fmt.Sprintf("%s/%s.%s", m.BaseURL, m.PoseNames[index], m.PoseExt)
}

// CueAddress resolves the address of the behavior's audio cue, or ""
// when the behavior has no cue configured.
func (m Manifest) CueAddress() string {
	if m.CueName == "" {
		return ""
	}
	ext := m.CueExt
	if ext == "" {
		ext = "mp3"
	}
	return fmt.Sprintf("%s/%s.%s", m.BaseURL, m.CueName, ext)
}

// PoseCount returns the number of static poses available as fallback.
func (m Manifest) PoseCount() int {
	return len(m.PoseNames)
}
