package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	openai "github.com/meguminnnnnnnnn/go-openai"

	"aide/internal/errs"
)

// visionPrompt asks for three labeled sections so the response can be parsed
// by marker instead of by position.
const visionPrompt = `Look at this image and respond with exactly three labeled sections:

EXTRACTED_TEXT:
All text visible in the image, transcribed verbatim. Write "no text detected" if there is none.

IMAGE_DESCRIPTION:
A natural-language description of what the image shows.

ANALYSIS:
A short analysis of anything notable (tables, diagrams, handwriting, UI screenshots).`

const (
	markerText        = "EXTRACTED_TEXT:"
	markerDescription = "IMAGE_DESCRIPTION:"
	markerAnalysis    = "ANALYSIS:"
	noTextPhrase      = "no text detected"
)

// ImageExtractor sends an image to a vision-capable completion provider and
// parses the labeled sections out of the reply.
type ImageExtractor struct {
	client *openai.Client
	model  string
}

// NewImageExtractor creates an ImageExtractor against an OpenAI-compatible
// vision endpoint. An empty baseURL uses the SDK default.
func NewImageExtractor(apiKey, model, baseURL string) *ImageExtractor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &ImageExtractor{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (e *ImageExtractor) AcceptedExtensions() []string {
	return []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}
}

func (e *ImageExtractor) AcceptedMimeTypes() []string {
	return []string{"image/png", "image/jpeg", "image/gif", "image/webp"}
}

// Extract runs the vision call and parses the three-section response.
func (e *ImageExtractor) Extract(ctx context.Context, data []byte, filename string) (*Result, error) {
	mime := mimetype.Detect(data).String()
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: visionPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		}},
	})
	if err != nil {
		return nil, &errs.ProviderError{Provider: "vision", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &errs.ProviderError{Provider: "vision", Err: fmt.Errorf("empty vision response")}
	}

	text, description := ParseVisionResponse(resp.Choices[0].Message.Content)
	return &Result{Text: text, Description: description}, nil
}

// ParseVisionResponse splits a vision reply into extracted text and image
// description by locating the section markers. A reply without markers is
// treated entirely as extracted text. The literal "no text detected" phrase
// normalizes to empty.
func ParseVisionResponse(response string) (text, description string) {
	if !strings.Contains(response, markerText) {
		return normalizeNoText(strings.TrimSpace(response)), ""
	}

	text = sectionBetween(response, markerText, markerDescription)
	description = sectionBetween(response, markerDescription, markerAnalysis)
	return normalizeNoText(text), description
}

// sectionBetween returns the trimmed content between startMarker and the
// next marker (or end of string when the next marker is absent).
func sectionBetween(response, startMarker, nextMarker string) string {
	start := strings.Index(response, startMarker)
	if start < 0 {
		return ""
	}
	body := response[start+len(startMarker):]
	if end := strings.Index(body, nextMarker); end >= 0 {
		body = body[:end]
	} else if end := strings.Index(body, markerAnalysis); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func normalizeNoText(text string) string {
	if strings.EqualFold(strings.TrimSpace(strings.Trim(text, `."'`)), noTextPhrase) {
		return ""
	}
	return text
}

var _ Extractor = (*ImageExtractor)(nil)
