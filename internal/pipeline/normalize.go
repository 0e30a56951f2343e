package pipeline

import (
	"fmt"

	"github.com/tjfontaine/appointment-gateway/internal/domain"
)

// alternateTextFields are consulted, in order, when a body carries no usable
// input_text.
var alternateTextFields = []string{"text", "query"}

// NormalizeText reshapes a text-pipeline body into the canonical request.
//
// A body with a non-empty input_text string is forwarded unchanged. Otherwise
// input_text is taken from the first of text or query that is present, or is
// the empty string. NormalizeText never fails; an empty input_text is left
// for the extract stage to reject.
func NormalizeText(body map[string]any) domain.PipelineRequest {
	if s, ok := body["input_text"].(string); ok && s != "" {
		return domain.PipelineRequest{Kind: domain.KindText, Fields: body}
	}

	text := ""
	for _, field := range alternateTextFields {
		if v, ok := body[field]; ok && v != nil {
			text = stringify(v)
			break
		}
	}

	return domain.PipelineRequest{
		Kind:   domain.KindText,
		Fields: map[string]any{"input_text": text},
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
