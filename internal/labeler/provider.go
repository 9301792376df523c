// Package labeler defines the contract for the labeling and text-extraction
// stage. Labeling is an external capability from the pipeline's point of
// view; the pipeline runs fine with no provider configured.
package labeler

import (
	"context"
	"encoding/json"
	"fmt"
)

// Label is an object or scene tag with a confidence score.
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"` // 0-1
}

// Provider analyzes image content. Implementations must tolerate being
// called once per item, sequentially, and must not retain imageData.
type Provider interface {
	Name() string
	// LabelImage returns object/scene labels for the image.
	LabelImage(ctx context.Context, imageData []byte) ([]Label, error)
	// ExtractText returns text visible in the image, empty when none.
	ExtractText(ctx context.Context, imageData []byte) (string, error)
}

// labelResponse is the JSON shape both cloud providers are prompted to return.
type labelResponse struct {
	Labels []Label `json:"labels"`
}

// textResponse is the JSON shape for text extraction.
type textResponse struct {
	Text string `json:"text"`
}

// maxParseRetries bounds how often a malformed JSON reply is sent back to
// the model for correction.
const maxParseRetries = 5

// completionFunc issues one model round trip. On retries prevContent carries
// the model's previous reply and feedback the parse error to correct.
type completionFunc func(prevContent, feedback string) (string, error)

// completeJSON runs send until the reply unmarshals into out, feeding parse
// errors back into the conversation so the model can fix its own JSON.
func completeJSON(send completionFunc, out any) error {
	var lastErr error
	var prev, feedback string

	for range maxParseRetries {
		content, err := send(prev, feedback)
		if err != nil {
			return err
		}

		if err := json.Unmarshal([]byte(content), out); err != nil {
			lastErr = err
			prev = content
			feedback = fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Remember to escape quotes inside strings with backslash.", err)
			continue
		}
		return nil
	}

	return fmt.Errorf("failed to parse response JSON after %d attempts: %w", maxParseRetries, lastErr)
}
