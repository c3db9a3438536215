package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
)

// HTTPGateway is the production Gateway. Text synthesis goes through a
// blocking workflow API, images through a prediction API that is polled
// until the batch settles, description through a configured webhook, and
// video through a queue API whose request id the caller polls later.
type HTTPGateway struct {
	cfg    *infra.Config
	client *http.Client
	log    zerolog.Logger

	// Image predictions settle in seconds, so the short poll stays inside
	// the gateway call instead of going through the job poller.
	imagePollInterval time.Duration
	imagePollMax      int
}

// NewHTTPGateway creates a gateway from the loaded configuration.
func NewHTTPGateway(cfg *infra.Config, log zerolog.Logger) *HTTPGateway {
	return &HTTPGateway{
		cfg:               cfg,
		client:            &http.Client{Timeout: cfg.GatewayTimeout},
		log:               log.With().Str("component", "gateway").Logger(),
		imagePollInterval: 2 * time.Second,
		imagePollMax:      15,
	}
}

type workflowRunRequest struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

type workflowRunResponse struct {
	Data struct {
		Status  string `json:"status"`
		Outputs struct {
			Text string `json:"text"`
		} `json:"outputs"`
	} `json:"data"`
}

// SegmentScenes splits a synopsis into the requested number of scene texts.
func (g *HTTPGateway) SegmentScenes(ctx context.Context, synopsis, locale string, sceneCount int) (*Segmentation, error) {
	text, err := g.runWorkflow(ctx, g.cfg.WorkflowSegmentKey, map[string]string{
		"synopsis":    synopsis,
		"language":    locale,
		"scene_count": strconv.Itoa(sceneCount),
	})
	if err != nil {
		if g.fallbackAllowed(err) {
			g.log.Warn().Err(err).Msg("segmentation upstream failed, serving fallback")
			return fallbackSegmentation(synopsis, sceneCount), nil
		}
		return nil, err
	}
	texts, err := parseSceneList(text)
	if err != nil {
		return nil, fmt.Errorf("%w: segmentation output: %v", domain.ErrInvalidInput, err)
	}
	out := &Segmentation{Scenes: make([]SceneDraft, 0, len(texts))}
	for i, t := range texts {
		out.Scenes = append(out.Scenes, SceneDraft{Order: i + 1, Text: t})
	}
	return out, nil
}

// SynthesizeImagePrompt turns a scene text into a visual prompt.
func (g *HTTPGateway) SynthesizeImagePrompt(ctx context.Context, sceneText string) (*ImagePrompt, error) {
	text, err := g.runWorkflow(ctx, g.cfg.WorkflowPromptKey, map[string]string{
		"scene_text": sceneText,
	})
	if err != nil {
		if g.fallbackAllowed(err) {
			g.log.Warn().Err(err).Msg("image prompt upstream failed, serving fallback")
			return fallbackImagePrompt(sceneText), nil
		}
		return nil, err
	}
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return nil, fmt.Errorf("%w: empty image prompt from workflow", domain.ErrInvalidInput)
	}
	return &ImagePrompt{Text: prompt}, nil
}

func (g *HTTPGateway) runWorkflow(ctx context.Context, apiKey string, inputs map[string]string) (string, error) {
	var resp workflowRunResponse
	err := g.do(ctx, http.MethodPost, g.cfg.WorkflowBaseURL+"/workflows/run",
		map[string]string{"Authorization": "Bearer " + apiKey},
		workflowRunRequest{Inputs: inputs, ResponseMode: "blocking", User: "storyreel"},
		&resp)
	if err != nil {
		return "", err
	}
	if resp.Data.Status != "" && resp.Data.Status != "succeeded" {
		return "", fmt.Errorf("%w: workflow status %s", domain.ErrUpstreamUnavailable, resp.Data.Status)
	}
	return resp.Data.Outputs.Text, nil
}

// parseSceneList accepts either {"scenes": [...]} or a bare JSON array of
// strings; workflow authors have shipped both shapes.
func parseSceneList(text string) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	var wrapped struct {
		Scenes []string `json:"scenes"`
	}
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil && len(wrapped.Scenes) > 0 {
		return cleanSceneTexts(wrapped.Scenes)
	}
	var bare []string
	if err := json.Unmarshal([]byte(trimmed), &bare); err == nil {
		return cleanSceneTexts(bare)
	}
	return nil, fmt.Errorf("unrecognized scene list %q", truncate(trimmed, 80))
}

func cleanSceneTexts(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no scenes")
	}
	return out, nil
}

type predictionRequest struct {
	Model string          `json:"model"`
	Input predictionInput `json:"input"`
}

type predictionInput struct {
	Prompt     string `json:"prompt"`
	NumOutputs int    `json:"num_outputs"`
}

type predictionResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output"`
	Error  string   `json:"error"`
}

// SynthesizeImages requests a batch of candidate images and waits for the
// prediction to settle.
func (g *HTTPGateway) SynthesizeImages(ctx context.Context, imagePrompt string) (*ImageSet, error) {
	set, err := g.synthesizeImages(ctx, imagePrompt)
	if err != nil && g.fallbackAllowed(err) {
		g.log.Warn().Err(err).Msg("image upstream failed, serving fallback")
		return fallbackImages(), nil
	}
	return set, err
}

func (g *HTTPGateway) synthesizeImages(ctx context.Context, imagePrompt string) (*ImageSet, error) {
	var created predictionResponse
	err := g.do(ctx, http.MethodPost, g.cfg.ImageBaseURL+"/predictions",
		map[string]string{"Authorization": "Token " + g.cfg.ImageAPIToken},
		predictionRequest{Model: g.cfg.ImageModel, Input: predictionInput{Prompt: imagePrompt, NumOutputs: domain.ExpectedImageCount}},
		&created)
	if err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, fmt.Errorf("%w: prediction created without id", domain.ErrUpstreamUnavailable)
	}

	statusURL := g.cfg.ImageBaseURL + "/predictions/" + created.ID
	current := created
	for i := 0; i < g.imagePollMax; i++ {
		switch current.Status {
		case "succeeded":
			return imageSetFromOutput(current.Output)
		case "failed", "canceled":
			return nil, fmt.Errorf("%w: prediction %s: %s", domain.ErrUpstreamUnavailable, current.Status, current.Error)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: image prediction: %v", domain.ErrUpstreamTimeout, ctx.Err())
		case <-time.After(g.imagePollInterval):
		}
		current = predictionResponse{}
		if err := g.do(ctx, http.MethodGet, statusURL,
			map[string]string{"Authorization": "Token " + g.cfg.ImageAPIToken}, nil, &current); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: prediction %s did not settle", domain.ErrUpstreamTimeout, created.ID)
}

func imageSetFromOutput(output []string) (*ImageSet, error) {
	urls := make([]string, 0, domain.ExpectedImageCount)
	for _, u := range output {
		if u != "" {
			urls = append(urls, u)
		}
		if len(urls) == domain.ExpectedImageCount {
			break
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: prediction succeeded with no output", domain.ErrUpstreamUnavailable)
	}
	return &ImageSet{URLs: urls}, nil
}

type describeRequest struct {
	ImageURL  string `json:"image_url"`
	SceneText string `json:"scene_text"`
}

type describeResponse struct {
	VideoPrompt    string `json:"video_prompt"`
	NegativePrompt string `json:"negative_prompt"`
}

// DescribeImage derives motion prompts from the selected image.
func (g *HTTPGateway) DescribeImage(ctx context.Context, imageURL, sceneText string) (*ImageDescription, error) {
	if g.cfg.DescribeWebhookURL == "" {
		err := fmt.Errorf("%w: describe webhook not configured", domain.ErrUpstreamUnavailable)
		if g.fallbackAllowed(err) {
			return fallbackDescription(sceneText), nil
		}
		return nil, err
	}
	var resp describeResponse
	err := g.do(ctx, http.MethodPost, g.cfg.DescribeWebhookURL, nil,
		describeRequest{ImageURL: imageURL, SceneText: sceneText}, &resp)
	if err != nil {
		if g.fallbackAllowed(err) {
			g.log.Warn().Err(err).Msg("describe upstream failed, serving fallback")
			return fallbackDescription(sceneText), nil
		}
		return nil, err
	}
	if strings.TrimSpace(resp.VideoPrompt) == "" {
		return nil, fmt.Errorf("%w: describe webhook returned no video prompt", domain.ErrInvalidInput)
	}
	return &ImageDescription{
		VideoPrompt:    strings.TrimSpace(resp.VideoPrompt),
		NegativePrompt: strings.TrimSpace(resp.NegativePrompt),
	}, nil
}

type queueSubmitRequest struct {
	Prompt         string `json:"prompt"`
	ImageURL       string `json:"image_url"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

type queueSubmitResponse struct {
	RequestID string `json:"request_id"`
}

type queueStatusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

type queueResultResponse struct {
	Video struct {
		URL string `json:"url"`
	} `json:"video"`
	Thumbnail struct {
		URL string `json:"url"`
	} `json:"thumbnail"`
}

// SubmitVideoRender enqueues a render and returns the vendor request id.
// There is no fallback for video: a queue outage surfaces to the caller.
func (g *HTTPGateway) SubmitVideoRender(ctx context.Context, req VideoRenderRequest) (string, error) {
	var resp queueSubmitResponse
	err := g.do(ctx, http.MethodPost, g.cfg.VideoBaseURL+"/"+g.cfg.VideoModel,
		map[string]string{"Authorization": "Key " + g.cfg.VideoAPIKey},
		queueSubmitRequest{Prompt: req.Prompt, ImageURL: req.ImageURL, NegativePrompt: req.NegativePrompt},
		&resp)
	if err != nil {
		return "", err
	}
	if resp.RequestID == "" {
		return "", fmt.Errorf("%w: queue accepted render without request id", domain.ErrUpstreamUnavailable)
	}
	return resp.RequestID, nil
}

// PollVideoRender reports the current state of a queued render.
func (g *HTTPGateway) PollVideoRender(ctx context.Context, requestID string) (*VideoStatus, error) {
	base := g.cfg.VideoBaseURL + "/" + g.cfg.VideoModel + "/requests/" + requestID
	auth := map[string]string{"Authorization": "Key " + g.cfg.VideoAPIKey}

	var status queueStatusResponse
	if err := g.do(ctx, http.MethodGet, base+"/status", auth, nil, &status); err != nil {
		return nil, err
	}
	switch status.Status {
	case "COMPLETED":
		var result queueResultResponse
		if err := g.do(ctx, http.MethodGet, base, auth, nil, &result); err != nil {
			return nil, err
		}
		if result.Video.URL == "" {
			return nil, fmt.Errorf("%w: completed render has no video url", domain.ErrUpstreamUnavailable)
		}
		return &VideoStatus{State: RenderCompleted, VideoURL: result.Video.URL, ThumbnailURL: result.Thumbnail.URL}, nil
	case "FAILED", "CANCELLED":
		reason := status.Error
		if reason == "" {
			reason = "render " + strings.ToLower(status.Status)
		}
		return &VideoStatus{State: RenderFailed, Reason: reason}, nil
	default:
		// IN_QUEUE, IN_PROGRESS and anything new from the vendor.
		return &VideoStatus{State: RenderPending}, nil
	}
}

// fallbackAllowed limits placeholder content to operator-enabled deployments
// and to upstream trouble; bad input is never papered over.
func (g *HTTPGateway) fallbackAllowed(err error) bool {
	if !g.cfg.FallbackEnabled {
		return false
	}
	return errors.Is(err, domain.ErrUpstreamUnavailable) || errors.Is(err, domain.ErrUpstreamTimeout)
}

// do issues one JSON request and decodes the JSON response into out.
func (g *HTTPGateway) do(ctx context.Context, method, url string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return mapTransportError(err)
	}
	if resp.StatusCode >= 400 {
		g.log.Warn().Int("status", resp.StatusCode).Str("url", url).Msg("upstream error response")
		return mapStatusError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decoding response from %s: %v", domain.ErrUpstreamUnavailable, url, err)
	}
	return nil
}

func mapTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}

func mapStatusError(status int, payload []byte) error {
	detail := truncate(strings.TrimSpace(string(payload)), 200)
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamTimeout, status, detail)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamUnavailable, status, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrInvalidInput, status, detail)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Gateway = (*HTTPGateway)(nil)
