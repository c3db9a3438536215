// Package gateway talks to the external generation vendors: a workflow API
// for text synthesis, a prediction API for still images, a webhook for image
// description, and a queue API for video rendering. Callers see one interface
// and a small error taxonomy; which vendor answered is an implementation
// detail.
package gateway

import (
	"context"
)

// SceneDraft is one segmented scene before persistence.
type SceneDraft struct {
	Order int
	Text  string
}

// Segmentation is the result of splitting a synopsis into scenes.
type Segmentation struct {
	Scenes   []SceneDraft
	Fallback bool
}

// ImagePrompt is a synthesized visual prompt for a scene.
type ImagePrompt struct {
	Text     string
	Fallback bool
}

// ImageSet is a batch of candidate image URLs for one scene.
type ImageSet struct {
	URLs     []string
	Fallback bool
}

// ImageDescription carries the motion prompts derived from a selected image.
type ImageDescription struct {
	VideoPrompt    string
	NegativePrompt string
	Fallback       bool
}

// VideoRenderRequest is a video submission for a selected image.
type VideoRenderRequest struct {
	ImageURL       string
	Prompt         string
	NegativePrompt string
}

// RenderState is the vendor-neutral state of a video render.
type RenderState string

const (
	RenderPending   RenderState = "pending"
	RenderCompleted RenderState = "completed"
	RenderFailed    RenderState = "failed"
)

// VideoStatus is one poll observation of a video render.
type VideoStatus struct {
	State        RenderState
	VideoURL     string
	ThumbnailURL string
	Reason       string
}

// Gateway is the outbound surface for all generation calls. Implementations
// report vendor rejections as domain.ErrInvalidInput, vendor outages as
// domain.ErrUpstreamUnavailable, and deadline hits as domain.ErrUpstreamTimeout.
type Gateway interface {
	SegmentScenes(ctx context.Context, synopsis, locale string, sceneCount int) (*Segmentation, error)
	SynthesizeImagePrompt(ctx context.Context, sceneText string) (*ImagePrompt, error)
	SynthesizeImages(ctx context.Context, imagePrompt string) (*ImageSet, error)
	DescribeImage(ctx context.Context, imageURL, sceneText string) (*ImageDescription, error)
	SubmitVideoRender(ctx context.Context, req VideoRenderRequest) (string, error)
	PollVideoRender(ctx context.Context, requestID string) (*VideoStatus, error)
}
