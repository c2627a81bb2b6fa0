// Package remover talks to the remote background-removal model
package remover

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/UnendingLoop/ClearCut/internal/model"
	"google.golang.org/genai"
)

// BackgroundRemover turns a base64-encoded image into a data-URI of the same image without background
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, base64Image, mimeType string) (string, error)
}

const DefaultModel = "gemini-2.5-flash-image"

const backgroundRemovalPrompt = `
Remove the background from this image completely while preserving:
1. Main subject details and edges
2. Fine details like hair, fur, or transparent objects
3. Original image quality and resolution
4. All foreground elements intact

Output requirements:
- Transparent background (PNG format)
- No background artifacts or remnants
- Clean, sharp edges around the subject
- Maintain original image dimensions
- Return ONLY the image, nothing else.
`

const resultPrefix = "data:image/png;base64,"

// contentGenerator - то, что нам нужно от genai.Models
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiRemover struct {
	apiKey     string
	model      string
	httpClient *http.Client

	mu  sync.Mutex
	gen contentGenerator
}

type Option func(*GeminiRemover)

// WithHTTPClient replaces the transport used by the genai client
func WithHTTPClient(c *http.Client) Option {
	return func(r *GeminiRemover) { r.httpClient = c }
}

// NewGeminiRemover does not dial anything: the client is created on the first call,
// so a missing key surfaces per item rather than at startup.
func NewGeminiRemover(apiKey, modelName string, opts ...Option) *GeminiRemover {
	if modelName == "" {
		modelName = DefaultModel
	}
	r := &GeminiRemover{apiKey: strings.TrimSpace(apiKey), model: modelName}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *GeminiRemover) RemoveBackground(ctx context.Context, base64Image, mimeType string) (string, error) {
	gen, err := r.generator(ctx)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(base64Image)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64 payload: %v", model.ErrEmptySource, err)
	}
	if len(data) == 0 {
		return "", model.ErrEmptySource
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(backgroundRemovalPrompt),
			genai.NewPartFromBytes(data, mimeType),
		}, genai.RoleUser),
	}

	resp, err := gen.GenerateContent(ctx, r.model, contents, nil)
	if err != nil {
		return "", classify(err)
	}

	img, err := extractImage(resp)
	if err != nil {
		return "", err
	}

	return resultPrefix + base64.StdEncoding.EncodeToString(img), nil
}

func (r *GeminiRemover) generator(ctx context.Context) (contentGenerator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != nil {
		return r.gen, nil
	}

	// genai сам подхватывает GOOGLE_API_KEY из окружения - не даем ему этого делать
	if r.apiKey == "" {
		return nil, fmt.Errorf("%w: API Key is missing. Please check your environment configuration.", model.ErrConfiguration)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     r.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: r.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrConfiguration, err.Error())
	}

	r.gen = client.Models
	return r.gen, nil
}

// extractImage returns bytes of the first inline-data part of the first candidate
func extractImage(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: No candidates returned from Gemini API", model.ErrRemoteProcessing)
	}

	cand := resp.Candidates[0]
	if cand != nil && cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: No image data found in the response.", model.ErrRemoteProcessing)
}

// classify maps SDK failures onto the three per-item error kinds
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", model.ErrTransport, err.Error())
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", model.ErrConfiguration, apiMessage(apiErr))
		default:
			return fmt.Errorf("%w: %s", model.ErrRemoteProcessing, apiMessage(apiErr))
		}
	}

	return fmt.Errorf("%w: %s", model.ErrTransport, err.Error())
}

func apiMessage(e genai.APIError) string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}
