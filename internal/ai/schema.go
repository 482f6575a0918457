package ai

import "google.golang.org/genai"

// SchemaFeedback names the structured output schema for resume analysis.
const SchemaFeedback = "feedback"

// buildFeedbackSchema describes the resume feedback JSON structure for
// structured model output: an overall score plus five scored categories,
// each carrying typed tips.
func buildFeedbackSchema() *genai.Schema {
	tipSchema := &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"type":        {Type: genai.TypeString, Enum: []string{"good", "improve"}},
				"tip":         {Type: genai.TypeString},
				"explanation": {Type: genai.TypeString},
			},
			Required: []string{"type", "tip"},
		},
	}

	categorySchema := func() *genai.Schema {
		return &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"score": {Type: genai.TypeInteger},
				"tips":  tipSchema,
			},
			Required: []string{"score", "tips"},
		}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"overallScore": {Type: genai.TypeInteger},
			"ATS":          categorySchema(),
			"toneAndStyle": categorySchema(),
			"content":      categorySchema(),
			"structure":    categorySchema(),
			"skills":       categorySchema(),
		},
		Required: []string{"overallScore", "ATS", "toneAndStyle", "content", "structure", "skills"},
	}
}
