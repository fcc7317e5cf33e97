package tutor

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"training-ledger-service/internal/domain"
)

// instructionTemplate is the fixed contract sent with every question. The
// model is asked for three labeled sections that parseReply splits apart.
const instructionTemplate = `You are a compliance-training tutor. Answer the learner's question using exactly three sections, each starting on its own line:
SUMMARY: a short plain-language answer.
RECOMMENDATION: what the learner should review or do next.
REFERENCES: course material or policy documents to consult.`

// Service answers free-text learner questions. Implementations degrade to
// domain.ErrTutorUnavailable instead of failing the session; the grading
// and ledger paths never depend on it.
type Service interface {
	Ask(ctx context.Context, question string) (domain.TutorReply, error)
}

// OpenAI talks to an OpenAI-compatible chat completion API.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, baseURL, model string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tutor API key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (t *OpenAI) Ask(ctx context.Context, question string) (domain.TutorReply, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructionTemplate},
			{Role: openai.ChatMessageRoleUser, Content: question},
		},
	})
	if err != nil {
		return domain.TutorReply{}, fmt.Errorf("%w: %v", domain.ErrTutorUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return domain.TutorReply{}, fmt.Errorf("%w: empty completion", domain.ErrTutorUnavailable)
	}
	return parseReply(resp.Choices[0].Message.Content), nil
}

// parseReply splits the completion into the three contract fields. Text
// before the first label, or a missing label, lands in Summary so the
// learner always sees something.
func parseReply(content string) domain.TutorReply {
	var reply domain.TutorReply
	current := "SUMMARY"
	var summary, recommendation, references []string

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "SUMMARY:"):
			current = "SUMMARY"
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "SUMMARY:"))
		case strings.HasPrefix(trimmed, "RECOMMENDATION:"):
			current = "RECOMMENDATION"
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "RECOMMENDATION:"))
		case strings.HasPrefix(trimmed, "REFERENCES:"):
			current = "REFERENCES"
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "REFERENCES:"))
		}
		if trimmed == "" {
			continue
		}
		switch current {
		case "SUMMARY":
			summary = append(summary, trimmed)
		case "RECOMMENDATION":
			recommendation = append(recommendation, trimmed)
		case "REFERENCES":
			references = append(references, trimmed)
		}
	}

	reply.Summary = strings.Join(summary, " ")
	reply.Recommendation = strings.Join(recommendation, " ")
	reply.References = strings.Join(references, " ")
	return reply
}

// Disabled is the stand-in when no tutor is configured.
type Disabled struct{}

func (Disabled) Ask(context.Context, string) (domain.TutorReply, error) {
	return domain.TutorReply{}, domain.ErrTutorUnavailable
}
