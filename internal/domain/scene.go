package domain

import "time"

// Stage enumerates the fixed pipeline steps a scene moves through.
type Stage string

const (
	StageText          Stage = "text"
	StageImagePrompt   Stage = "image_prompt"
	StageImages        Stage = "images"
	StageImageSelected Stage = "image_selected"
	StageVideoPrompt   Stage = "video_prompt"
	StageVideo         Stage = "video"
)

// SceneState is the derived workflow state of a scene.
type SceneState string

const (
	SceneEmpty            SceneState = "empty"
	SceneTextReady        SceneState = "text_ready"
	ScenePromptReady      SceneState = "prompt_ready"
	SceneImagesReady      SceneState = "images_ready"
	SceneImageSelected    SceneState = "image_selected"
	SceneVideoPromptReady SceneState = "video_prompt_ready"
	SceneVideoRequested   SceneState = "video_requested"
	SceneVideoCompleted   SceneState = "video_completed"
	SceneVideoFailed      SceneState = "video_failed"
)

// ExpectedImageCount is the number of candidate images produced per scene.
const ExpectedImageCount = 3

// Scene carries one pipeline unit from synopsis text through to a rendered clip.
type Scene struct {
	ID                 string
	SessionID          string
	UserID             string
	Order              int
	Text               string
	ImagePrompt        string
	Images             []string
	SelectedImageIndex *int
	VideoPrompt        string
	NegativePrompt     string
	VideoEpoch         int
	VideoJob           *VideoJob
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SelectedImage returns the image reference chosen for the video stage.
func (s *Scene) SelectedImage() (string, bool) {
	if s.SelectedImageIndex == nil {
		return "", false
	}
	idx := *s.SelectedImageIndex
	if idx < 0 || idx >= len(s.Images) {
		return "", false
	}
	return s.Images[idx], true
}

// HasArtifact reports whether the artifact for the given stage is present.
func (s *Scene) HasArtifact(stage Stage) bool {
	switch stage {
	case StageText:
		return s.Text != ""
	case StageImagePrompt:
		return s.ImagePrompt != ""
	case StageImages:
		return len(s.Images) > 0
	case StageImageSelected:
		_, ok := s.SelectedImage()
		return ok
	case StageVideoPrompt:
		return s.VideoPrompt != ""
	case StageVideo:
		return s.VideoJob != nil
	default:
		return false
	}
}

// State derives the workflow state from the artifacts present. Artifacts are
// only ever written in forward stage order, so the first missing artifact
// determines the state.
func (s *Scene) State() SceneState {
	if s.Text == "" {
		return SceneEmpty
	}
	if s.ImagePrompt == "" {
		return SceneTextReady
	}
	if len(s.Images) == 0 {
		return ScenePromptReady
	}
	if _, ok := s.SelectedImage(); !ok {
		return SceneImagesReady
	}
	if s.VideoPrompt == "" {
		return SceneImageSelected
	}
	if s.VideoJob == nil {
		return SceneVideoPromptReady
	}
	switch s.VideoJob.Status {
	case VideoJobCompleted:
		return SceneVideoCompleted
	case VideoJobFailed:
		return SceneVideoFailed
	default:
		return SceneVideoRequested
	}
}

// SceneExport is the downloadable shape for a completed scene.
type SceneExport struct {
	SceneID        string `json:"scene_id"`
	SceneText      string `json:"scene_text"`
	ImagePrompt    string `json:"image_prompt"`
	SelectedImage  string `json:"selected_image"`
	VideoPrompt    string `json:"video_prompt"`
	NegativePrompt string `json:"negative_prompt"`
	VideoURL       string `json:"video_url,omitempty"`
}
