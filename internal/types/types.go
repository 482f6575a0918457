package types

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Tip types used in feedback categories
const (
	TipGood    = "good"
	TipImprove = "improve"
)

// FeedbackTip is a single piece of advice within a feedback category
type FeedbackTip struct {
	Type        string `json:"type"` // "good" or "improve"
	Tip         string `json:"tip"`
	Explanation string `json:"explanation,omitempty"`
}

// FeedbackCategory holds a 0-100 score and an ordered list of tips
type FeedbackCategory struct {
	Score int           `json:"score"`
	Tips  []FeedbackTip `json:"tips"`
}

// Feedback is the structured AI analysis result attached to a resume record
type Feedback struct {
	OverallScore int              `json:"overallScore"`
	ATS          FeedbackCategory `json:"ATS"`
	ToneAndStyle FeedbackCategory `json:"toneAndStyle"`
	Content      FeedbackCategory `json:"content"`
	Structure    FeedbackCategory `json:"structure"`
	Skills       FeedbackCategory `json:"skills"`
}

// Validate checks that the overall score and every category score is within
// [0,100]. Out-of-range values are rejected, never clamped.
func (f *Feedback) Validate() error {
	scores := map[string]int{
		"overallScore": f.OverallScore,
		"ATS":          f.ATS.Score,
		"toneAndStyle": f.ToneAndStyle.Score,
		"content":      f.Content.Score,
		"structure":    f.Structure.Score,
		"skills":       f.Skills.Score,
	}
	for name, score := range scores {
		if score < 0 || score > 100 {
			return fmt.Errorf("feedback score %q out of range: %d", name, score)
		}
	}
	return nil
}

// ResumeRecord is the persisted metadata unit, keyed by "resume:<id>" in the
// key-value store. Feedback is nil until analysis completes.
type ResumeRecord struct {
	ID             string    `json:"id"`
	ResumePath     string    `json:"resumePath"`
	ImagePath      string    `json:"imagePath"`
	CompanyName    string    `json:"companyName"`
	JobTitle       string    `json:"jobTitle"`
	JobDescription string    `json:"jobDescription"`
	Feedback       *Feedback `json:"feedback"`
}

// RecordKeyPrefix namespaces resume records in the key-value store
const RecordKeyPrefix = "resume:"

// RecordKey returns the key-value store key for a record id
func RecordKey(id string) string {
	return RecordKeyPrefix + id
}

// File is a file-like object exposing a read-all operation. Bytes reads the
// entire content; implementations may perform I/O.
type File interface {
	Name() string
	Bytes(ctx context.Context) ([]byte, error)
}

// FileBlob is an in-memory File with a known media type
type FileBlob struct {
	FileName string
	MIME     string
	Data     []byte
}

func (b *FileBlob) Name() string { return b.FileName }

func (b *FileBlob) Bytes(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.Data, nil
}

// Reader returns a fresh reader over the blob content
func (b *FileBlob) Reader() io.Reader { return bytes.NewReader(b.Data) }

// Size returns the content length in bytes
func (b *FileBlob) Size() int64 { return int64(len(b.Data)) }

// FileDescriptor identifies a stored object in the file system capability
type FileDescriptor struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// BlobURL is a dereferenceable handle to raw bytes, as produced by fsRead
type BlobURL struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
}

// KVEntry is a key-value pair returned by kvList. Value is empty when the
// listing was requested keys-only.
type KVEntry struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// UserIdentity describes the signed-in user reported by the auth capability
type UserIdentity struct {
	Username string `json:"username"`
}

// ChatOptions tunes a single AI chat request
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	// ResponseSchema names a provider-registered structured output schema,
	// e.g. "feedback". Empty means free-form text.
	ResponseSchema string `json:"responseSchema,omitempty"`
}

// AIMessagePart is one part of an outgoing chat message: free text, or a
// file referenced by its stored path with the resolved bytes attached for
// providers that need inline content.
type AIMessagePart struct {
	Text string    `json:"text,omitempty"`
	Path string    `json:"path,omitempty"`
	File *FileBlob `json:"-"`
}

// AIMessage is a single chat message
type AIMessage struct {
	Role  string          `json:"role"`
	Parts []AIMessagePart `json:"parts"`
}

// AIResponse is the response consumed from the AI capability
type AIResponse struct {
	Message ResponseMessage `json:"message"`
}

// ResponseMessage carries the response payload
type ResponseMessage struct {
	Role    string          `json:"role,omitempty"`
	Content ResponseContent `json:"content"`
}

// ResponsePart is one element of an array-shaped response content
type ResponsePart struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// ResponseContent is either a plain string or a list of content parts on the
// wire. Text returns the string, or the first part's text for the list form.
type ResponseContent struct {
	text  string
	parts []ResponsePart
	isStr bool
}

// TextContent builds a plain-string response content
func TextContent(s string) ResponseContent {
	return ResponseContent{text: s, isStr: true}
}

// PartsContent builds an array-shaped response content
func PartsContent(parts ...ResponsePart) ResponseContent {
	return ResponseContent{parts: parts}
}

// Text returns the textual payload: the string itself, or the first part's
// text when the content is a list. Empty when the list has no parts.
func (c ResponseContent) Text() string {
	if c.isStr {
		return c.text
	}
	if len(c.parts) > 0 {
		return c.parts[0].Text
	}
	return ""
}

func (c ResponseContent) MarshalJSON() ([]byte, error) {
	if c.isStr {
		return json.Marshal(c.text)
	}
	return json.Marshal(c.parts)
}

func (c *ResponseContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		c.isStr = true
		c.parts = nil
		return json.Unmarshal(trimmed, &c.text)
	}
	c.isStr = false
	c.text = ""
	return json.Unmarshal(trimmed, &c.parts)
}
