package gateway

import "strings"

// Fallback content keeps a demo deployment moving when an upstream is down.
// Every result is labeled so the UI can tell the user it is a placeholder;
// production runs with GATEWAY_FALLBACK_ENABLED off and never sees these.

func fallbackSegmentation(synopsis string, sceneCount int) *Segmentation {
	sentences := splitSentences(synopsis)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(synopsis)}
	}
	if sceneCount > 0 && len(sentences) > sceneCount {
		sentences = sentences[:sceneCount]
	}
	out := &Segmentation{Fallback: true}
	for i, s := range sentences {
		out.Scenes = append(out.Scenes, SceneDraft{Order: i + 1, Text: s})
	}
	return out
}

func fallbackImagePrompt(sceneText string) *ImagePrompt {
	return &ImagePrompt{
		Text:     "cinematic still, soft natural light, 16:9 -- " + strings.TrimSpace(sceneText),
		Fallback: true,
	}
}

func fallbackImages() *ImageSet {
	return &ImageSet{
		URLs: []string{
			"https://placehold.co/1280x720?text=Preview+1",
			"https://placehold.co/1280x720?text=Preview+2",
			"https://placehold.co/1280x720?text=Preview+3",
		},
		Fallback: true,
	}
}

func fallbackDescription(sceneText string) *ImageDescription {
	return &ImageDescription{
		VideoPrompt:    "slow push-in on the scene, subtle ambient motion: " + strings.TrimSpace(sceneText),
		NegativePrompt: "blur, distortion, flicker, text artifacts",
		Fallback:       true,
	}
}

func splitSentences(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
