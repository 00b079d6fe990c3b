// Package openai asks a chat-completion model for rename and placement
// proposals. Calls are rate limited, retried through the shared resilience
// executor and validated before anything reaches the pipeline.
package openai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
	"github.com/mhduong/docsorter/internal/infrastructure/resilience"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	RatePerMin int
}

type Client struct {
	api      *openai.Client
	model    string
	limiter  *rate.Limiter
	executor *resilience.Executor
}

var _ ports.ProposalProvider = (*Client)(nil)

func New(cfg Config, executor *resilience.Executor) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = 30
	}
	return &Client{
		api:      openai.NewClientWithConfig(apiCfg),
		model:    cfg.Model,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin),
		executor: executor,
	}
}

// Propose asks the model for a placement proposal. An answer that cannot be
// parsed into a usable proposal surfaces as domain.ErrBadClassification.
func (c *Client) Propose(ctx context.Context, req ports.ProposalRequest) (domain.Proposal, domain.LLMInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Proposal{}, domain.LLMInfo{}, err
	}

	started := time.Now()
	var content string
	call := func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: 0.1,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildProposalPrompt(req)},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return domain.WrapError(domain.ErrBadClassification, "openai.propose",
				errEmptyAnswer)
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai.propose", call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.Proposal{}, domain.LLMInfo{}, wrapTemporaryIfNeeded("openai.propose", err)
	}

	info := domain.LLMInfo{Model: c.model, LatencyMS: time.Since(started).Milliseconds()}

	var proposal domain.Proposal
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &proposal); err != nil {
		return domain.Proposal{}, info, domain.WrapError(domain.ErrBadClassification, "openai.parse", err)
	}
	proposal = applyTermGuard(proposal, req.Settings)
	if strings.TrimSpace(proposal.NewFilename) == "" || strings.TrimSpace(proposal.TargetFolder) == "" {
		return domain.Proposal{}, info, domain.WrapError(domain.ErrBadClassification, "openai.parse",
			errIncompleteAnswer)
	}
	return proposal, info, nil
}

// applyTermGuard strips configured disallowed terms out of the proposed
// filename so profile-level redactions hold even when the model ignores the
// instruction.
func applyTermGuard(p domain.Proposal, settings domain.SortSettings) domain.Proposal {
	for _, term := range settings.DisallowedTerms {
		if term == "" {
			continue
		}
		p.NewFilename = removeFold(p.NewFilename, term)
	}
	p.NewFilename = strings.TrimSpace(p.NewFilename)
	return p
}

func removeFold(s, term string) string {
	lower := strings.ToLower(s)
	needle := strings.ToLower(term)
	for {
		i := strings.Index(lower, needle)
		if i < 0 {
			return s
		}
		s = s[:i] + s[i+len(needle):]
		lower = lower[:i] + lower[i+len(needle):]
	}
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
