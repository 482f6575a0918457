package formatters

import (
	"encoding/json"
	"fmt"
	"strings"

	"resumind/internal/types"
)

// Formatter interface for different output formats
type Formatter interface {
	Format(data any) (string, error)
	SupportedType() string
}

// FormatterRegistry manages all available formatters
type FormatterRegistry struct {
	formatters map[string]map[string]Formatter // format -> type -> formatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[string]map[string]Formatter),
	}

	registry.RegisterFormatter("json", "any", &JSONFormatter{})
	registry.RegisterFormatter("text", "Feedback", &FeedbackTextFormatter{})
	registry.RegisterFormatter("markdown", "Feedback", &FeedbackMarkdownFormatter{})
	registry.RegisterFormatter("text", "ResumeRecord", &RecordTextFormatter{})
	registry.RegisterFormatter("markdown", "ResumeRecord", &RecordMarkdownFormatter{})

	return registry
}

// RegisterFormatter registers a new formatter for a specific format and data type
func (fr *FormatterRegistry) RegisterFormatter(format, dataType string, formatter Formatter) {
	if fr.formatters[format] == nil {
		fr.formatters[format] = make(map[string]Formatter)
	}
	fr.formatters[format][dataType] = formatter
}

// Format formats data using the appropriate formatter
func (fr *FormatterRegistry) Format(data any, format string) (string, error) {
	dataType := getDataType(data)

	if formatters, exists := fr.formatters[format]; exists {
		if formatter, exists := formatters[dataType]; exists {
			return formatter.Format(data)
		}
		if formatter, exists := formatters["any"]; exists {
			return formatter.Format(data)
		}
	}

	return "", fmt.Errorf("no formatter found for format '%s' and type '%s'", format, dataType)
}

// GetSupportedFormats returns all supported formats
func (fr *FormatterRegistry) GetSupportedFormats() []string {
	formats := make([]string, 0, len(fr.formatters))
	for format := range fr.formatters {
		formats = append(formats, format)
	}
	return formats
}

func getDataType(data any) string {
	switch data.(type) {
	case types.Feedback:
		return "Feedback"
	case types.ResumeRecord:
		return "ResumeRecord"
	default:
		return "any"
	}
}

// JSONFormatter handles JSON formatting for any data type
type JSONFormatter struct{}

func (jf *JSONFormatter) Format(data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func (jf *JSONFormatter) SupportedType() string {
	return "any"
}

func writeCategoryText(out *strings.Builder, name string, cat types.FeedbackCategory) {
	out.WriteString(fmt.Sprintf("%s: %d/100\n", name, cat.Score))
	for _, tip := range cat.Tips {
		marker := "+"
		if tip.Type == types.TipImprove {
			marker = "-"
		}
		out.WriteString(fmt.Sprintf("  %s %s\n", marker, tip.Tip))
		if tip.Explanation != "" {
			out.WriteString(fmt.Sprintf("    %s\n", tip.Explanation))
		}
	}
	out.WriteString("\n")
}

// FeedbackTextFormatter handles text formatting for analysis feedback
type FeedbackTextFormatter struct{}

func (ftf *FeedbackTextFormatter) Format(data any) (string, error) {
	result, ok := data.(types.Feedback)
	if !ok {
		return "", fmt.Errorf("expected Feedback, got %T", data)
	}

	var output strings.Builder

	output.WriteString("=== RESUME ANALYSIS ===\n\n")
	output.WriteString(fmt.Sprintf("Overall Score: %d/100\n\n", result.OverallScore))

	writeCategoryText(&output, "ATS", result.ATS)
	writeCategoryText(&output, "Tone & Style", result.ToneAndStyle)
	writeCategoryText(&output, "Content", result.Content)
	writeCategoryText(&output, "Structure", result.Structure)
	writeCategoryText(&output, "Skills", result.Skills)

	return output.String(), nil
}

func (ftf *FeedbackTextFormatter) SupportedType() string {
	return "Feedback"
}

func writeCategoryMarkdown(out *strings.Builder, name string, cat types.FeedbackCategory) {
	out.WriteString(fmt.Sprintf("## %s\n\n**Score:** %d/100\n\n", name, cat.Score))
	for _, tip := range cat.Tips {
		label := "Good"
		if tip.Type == types.TipImprove {
			label = "Improve"
		}
		out.WriteString(fmt.Sprintf("- **%s:** %s", label, tip.Tip))
		if tip.Explanation != "" {
			out.WriteString(": " + tip.Explanation)
		}
		out.WriteString("\n")
	}
	out.WriteString("\n")
}

// FeedbackMarkdownFormatter handles markdown formatting for analysis feedback
type FeedbackMarkdownFormatter struct{}

func (fmf *FeedbackMarkdownFormatter) Format(data any) (string, error) {
	result, ok := data.(types.Feedback)
	if !ok {
		return "", fmt.Errorf("expected Feedback, got %T", data)
	}

	var output strings.Builder

	output.WriteString("# Resume Analysis\n\n")
	output.WriteString(fmt.Sprintf("**Overall Score:** %d/100\n\n", result.OverallScore))

	writeCategoryMarkdown(&output, "ATS", result.ATS)
	writeCategoryMarkdown(&output, "Tone & Style", result.ToneAndStyle)
	writeCategoryMarkdown(&output, "Content", result.Content)
	writeCategoryMarkdown(&output, "Structure", result.Structure)
	writeCategoryMarkdown(&output, "Skills", result.Skills)

	return output.String(), nil
}

func (fmf *FeedbackMarkdownFormatter) SupportedType() string {
	return "Feedback"
}

// RecordTextFormatter handles text formatting for stored resume records
type RecordTextFormatter struct{}

func (rtf *RecordTextFormatter) Format(data any) (string, error) {
	record, ok := data.(types.ResumeRecord)
	if !ok {
		return "", fmt.Errorf("expected ResumeRecord, got %T", data)
	}

	var output strings.Builder

	output.WriteString("=== RESUME RECORD ===\n\n")
	output.WriteString(fmt.Sprintf("ID:          %s\n", record.ID))
	output.WriteString(fmt.Sprintf("Company:     %s\n", record.CompanyName))
	output.WriteString(fmt.Sprintf("Job Title:   %s\n", record.JobTitle))
	output.WriteString(fmt.Sprintf("Resume:      %s\n", record.ResumePath))
	output.WriteString(fmt.Sprintf("Preview:     %s\n", record.ImagePath))
	output.WriteString("\n")

	if record.Feedback == nil {
		output.WriteString("Feedback: pending\n")
		return output.String(), nil
	}

	feedback, err := (&FeedbackTextFormatter{}).Format(*record.Feedback)
	if err != nil {
		return "", err
	}
	output.WriteString(feedback)

	return output.String(), nil
}

func (rtf *RecordTextFormatter) SupportedType() string {
	return "ResumeRecord"
}

// RecordMarkdownFormatter handles markdown formatting for stored resume records
type RecordMarkdownFormatter struct{}

func (rmf *RecordMarkdownFormatter) Format(data any) (string, error) {
	record, ok := data.(types.ResumeRecord)
	if !ok {
		return "", fmt.Errorf("expected ResumeRecord, got %T", data)
	}

	var output strings.Builder

	output.WriteString("# Resume Record\n\n")
	output.WriteString(fmt.Sprintf("- **ID:** %s\n", record.ID))
	output.WriteString(fmt.Sprintf("- **Company:** %s\n", record.CompanyName))
	output.WriteString(fmt.Sprintf("- **Job Title:** %s\n", record.JobTitle))
	output.WriteString(fmt.Sprintf("- **Resume:** %s\n", record.ResumePath))
	output.WriteString(fmt.Sprintf("- **Preview:** %s\n\n", record.ImagePath))

	if record.Feedback == nil {
		output.WriteString("## Feedback\n\nPending analysis.\n")
		return output.String(), nil
	}

	feedback, err := (&FeedbackMarkdownFormatter{}).Format(*record.Feedback)
	if err != nil {
		return "", err
	}
	output.WriteString(feedback)

	return output.String(), nil
}

func (rmf *RecordMarkdownFormatter) SupportedType() string {
	return "ResumeRecord"
}

// GlobalRegistry is the process-wide formatter registry.
var GlobalRegistry = NewFormatterRegistry()
