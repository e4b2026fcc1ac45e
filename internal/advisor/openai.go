package advisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/driftlabs/driftbot/internal/domain"
)

// OpenAIConfig holds connection parameters for an OpenAI-compatible
// chat-completions endpoint. Works against OpenAI, local llama.cpp servers,
// and any other provider speaking the same API.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// OpenAIAdvisor implements Advisor over an OpenAI-compatible HTTP API.
type OpenAIAdvisor struct {
	client *resty.Client
	cfg    OpenAIConfig
}

// NewOpenAIAdvisor creates an advisor client. The per-call deadline comes
// from the gate's context; the client itself carries a generous transport
// timeout as a backstop.
func NewOpenAIAdvisor(cfg OpenAIConfig) *OpenAIAdvisor {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(60 * time.Second)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &OpenAIAdvisor{client: client, cfg: cfg}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = `You are a perpetual futures trading analyst. Given market features and a candidate trade, reply with exactly:
direction: long|short|flat
confidence: <0-100>
regime: bull|bear|chop|crash|high_vol
Then up to three short lines of reasoning.`

// Consult sends the candidate decision and feature vector to the model and
// parses the structured reply.
func (a *OpenAIAdvisor) Consult(ctx context.Context, d domain.TradingDecision) (domain.Advice, error) {
	body := chatRequest{
		Model:       a.cfg.Model,
		Temperature: a.cfg.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: formatPrompt(d)},
		},
	}

	var out chatResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		if ctx.Err() != nil {
			return domain.Advice{}, fmt.Errorf("openai: %w: %w", domain.ErrAdvisorTimeout, err)
		}
		return domain.Advice{}, fmt.Errorf("openai: request: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil {
			msg = out.Error.Message
		}
		return domain.Advice{}, fmt.Errorf("openai: api error: %s", msg)
	}
	if len(out.Choices) == 0 {
		return domain.Advice{}, fmt.Errorf("openai: empty response: %w", domain.ErrAdvisorParse)
	}

	return ParseAdvice(out.Choices[0].Message.Content)
}

// formatPrompt renders the feature vector and the rule engine's candidate as
// the user message.
func formatPrompt(d domain.TradingDecision) string {
	f := d.Features
	var b strings.Builder
	fmt.Fprintf(&b, "Market: %s\n", f.Market)
	fmt.Fprintf(&b, "Price: %.4f  Volume: %.2f\n", f.Price, f.Volume)
	fmt.Fprintf(&b, "Body/ATR: %.2f  VolumeZ: %.2f  RealizedVol: %.2f%%\n", f.BodyOverATR, f.VolumeZ, f.RealizedVol)
	fmt.Fprintf(&b, "Premium: %.4f%%  Funding: %.5f  OI: %.0f\n", f.PremiumPct, f.FundingRate, f.OpenInterest)
	fmt.Fprintf(&b, "Spread: %.1f bps  BookImbalance: %.2f\n", f.SpreadBps, f.OBImbalance)
	fmt.Fprintf(&b, "Rule engine proposes: %s (confidence %.2f, strategy %s)\n", d.Direction, d.Confidence, d.Strategy)
	if len(d.Reasons) > 0 {
		fmt.Fprintf(&b, "Rule reasons: %s\n", strings.Join(d.Reasons, "; "))
	}
	b.WriteString("Confirm or override the direction.")
	return b.String()
}
