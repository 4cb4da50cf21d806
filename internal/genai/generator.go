// Package genai generates study guides from sermon transcripts via the
// OpenAI chat completions API.
//
// Generation is an opaque remote job: the generator submits the corrected
// transcript, decodes the model's structured JSON into a
// [studyguide.StudyGuide], and normalizes it (stable ids, deduplicated
// suggestions). The model's reasoning is its own business; only the contract
// on its output is enforced here.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/calebmoss/berea/pkg/fingerprint"
	"github.com/calebmoss/berea/pkg/studyguide"
)

const systemPrompt = `You are a sermon study assistant. Given a sermon transcript,
produce a JSON object with these fields:
  "summary": 2-3 sentence summary.
  "key_themes": up to 5 short theme strings.
  "outline": sections with "title", "summary" and "anchor_text" (a verbatim
    8-25 word quote from the transcript marking where the section begins).
  "quotes": notable quotations, each with "text" (verbatim from the transcript).
  "mentioned_references": Bible references the preacher cites, each {"raw": "..."}.
  "suggested_references": related Bible references worth studying, each {"raw": "..."}.
  "insights": takeaways with "title", "body" and "supporting_quote" (verbatim).
Respond with the JSON object only.`

// Generator produces study guides for transcripts.
type Generator struct {
	client oai.Client
	model  string
}

// Option is a functional option for [New].
type Option func(*[]option.RequestOption)

// WithBaseURL overrides the API base URL, e.g. for a compatible local server.
func WithBaseURL(url string) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(url))
	}
}

// New creates a Generator using the given API key and model.
func New(apiKey, model string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("genai: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("genai: model must not be empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Generator{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Generate produces the study guide for one sermon's transcript text. The
// returned guide is normalized: every quote and insight carries a
// fingerprint-derived id and suggested references are deduplicated.
func (g *Generator) Generate(ctx context.Context, sermonID, transcriptText string) (*studyguide.StudyGuide, error) {
	if strings.TrimSpace(transcriptText) == "" {
		return nil, errors.New("genai: empty transcript")
	}

	resp, err := g.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(transcriptText),
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("genai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("genai: empty choices in response")
	}

	return DecodeGuide(sermonID, []byte(resp.Choices[0].Message.Content))
}

// DecodeGuide parses the model's JSON output into a normalized study guide.
// Split out from [Generator.Generate] so the output contract is testable
// without the remote service.
func DecodeGuide(sermonID string, raw []byte) (*studyguide.StudyGuide, error) {
	var guide studyguide.StudyGuide
	if err := json.Unmarshal(raw, &guide); err != nil {
		return nil, fmt.Errorf("genai: decode model output: %w", err)
	}
	guide.SermonID = sermonID
	guide.SchemaVersion = studyguide.CurrentSchemaVersion

	for i := range guide.Quotes {
		guide.Quotes[i].ID = fingerprint.New(sermonID, "quote", guide.Quotes[i].Text)
	}
	for i := range guide.Insights {
		ins := &guide.Insights[i]
		ins.ID = fingerprint.New(sermonID, "insight", ins.Title, ins.Body)
	}
	for i := range guide.MentionedReferences {
		guide.MentionedReferences[i].IsMentioned = true
	}
	guide.DedupSuggested()
	return &guide, nil
}
