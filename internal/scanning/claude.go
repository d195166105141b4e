package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zombor/bill-check/internal/analysis"
)

// Claude implements the Extractor interface using the Anthropic Messages API
type Claude struct {
	client anthropic.Client
	model  string
}

// NewClaude creates a new Claude Extractor instance.
// Extra request options (base URL, retries) are mostly useful in tests.
func NewClaude(apiKey string, modelName string, opts ...anthropicopt.RequestOption) (*Claude, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if modelName == "" {
		modelName = "claude-sonnet-4-5"
	}

	opts = append([]anthropicopt.RequestOption{anthropicopt.WithAPIKey(apiKey)}, opts...)
	return &Claude{
		client: anthropic.NewClient(opts...),
		model:  modelName,
	}, nil
}

// ExtractBill analyzes a bill image and extracts its line items
func (c *Claude) ExtractBill(ctx context.Context, imageData []byte, contentType string) (*analysis.BillRecord, error) {
	png, err := prepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   4096,
		Temperature: anthropic.Float(0.1),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(pngMimeType, base64.StdEncoding.EncodeToString(png)),
				anthropic.NewTextBlock(billExtractionPrompt),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic API error: %v", ErrExtractionFailed, err)
	}

	var responseText strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText.WriteString(block.Text)
		}
	}
	if responseText.Len() == 0 {
		return nil, fmt.Errorf("%w: no text content in anthropic response", ErrExtractionFailed)
	}

	bill, err := parseBillJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing bill data: %w", err)
	}

	return bill, nil
}

// Close is a no-op; the Anthropic client holds no resources
func (c *Claude) Close() error {
	return nil
}
