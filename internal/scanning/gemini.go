package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/zombor/bill-check/internal/analysis"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	// Low temperature keeps transcription consistent between scans
	model.SetTemperature(0.1)

	return &Gemini{
		client:  client,
		model:   model,
		timeout: 60 * time.Second,
	}, nil
}

// ExtractBill analyzes a bill image and extracts its line items
func (g *Gemini) ExtractBill(ctx context.Context, imageData []byte, contentType string) (*analysis.BillRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	png, err := prepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects the format suffix, not the full MIME type
	parts := []genai.Part{
		genai.Text(systemPrompt),
		genai.ImageData("png", png),
		genai.Text(billExtractionPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("%w: generating content: %v", ErrExtractionFailed, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no response from gemini", ErrExtractionFailed)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	bill, err := parseBillJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing bill data: %w", err)
	}

	return bill, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
