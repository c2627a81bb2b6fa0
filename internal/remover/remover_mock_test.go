package remover

import (
	"context"

	"google.golang.org/genai"
)

type mockGenerator struct {
	calls      int
	gotModel   string
	gotContent []*genai.Content
	generateFn func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.calls++
	m.gotModel = model
	m.gotContent = contents
	return m.generateFn(ctx, model, contents, config)
}

type mockRemover struct {
	removeFn func(ctx context.Context, base64Image, mimeType string) (string, error)
}

func (m *mockRemover) RemoveBackground(ctx context.Context, base64Image, mimeType string) (string, error) {
	return m.removeFn(ctx, base64Image, mimeType)
}
