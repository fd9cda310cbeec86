package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricelist-cli/internal/cost"
	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/resilience"
	"github.com/sells-group/pricelist-cli/pkg/anthropic"
)

const systemPrompt = `You identify snowmobile and powersports base models from dealer price-list codes.
Reply with a single JSON object and nothing else:
{"model_name": string, "category": one of "crossover","mountain","trail","touring","utility",
 "specifications": {"engine": {...}, "dimensions": {...}, "suspension": {...}, "track": {...}, "features": {"list": [string]}}}
Use numbers for numeric values. Omit fields you do not know.`

// AnthropicConfig configures the Claude-backed enricher.
type AnthropicConfig struct {
	Model     string
	MaxTokens int64
}

// AnthropicEnricher enriches lines with a Claude message call.
type AnthropicEnricher struct {
	client  anthropic.Client
	cfg     AnthropicConfig
	budget  *TokenBudget
	calc    *cost.Calculator
	policy  resilience.Policy
	breaker *resilience.Breaker
}

// NewAnthropicEnricher wires the client with budget, cost and retry policy.
func NewAnthropicEnricher(client anthropic.Client, cfg AnthropicConfig, budget *TokenBudget, calc *cost.Calculator, policy resilience.Policy, breaker *resilience.Breaker) *AnthropicEnricher {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if budget == nil {
		budget = NewTokenBudget(0)
	}
	if breaker == nil {
		breaker = resilience.NewBreaker("anthropic", 0, 0)
	}
	return &AnthropicEnricher{client: client, cfg: cfg, budget: budget, calc: calc, policy: policy, breaker: breaker}
}

// Enrich implements Enricher.
func (e *AnthropicEnricher) Enrich(ctx context.Context, req Request) (*Result, error) {
	prompt := userPrompt(req)
	// Rough estimate: four characters per token plus the reply allowance.
	estimate := (len(systemPrompt)+len(prompt))/4 + int(e.cfg.MaxTokens)
	if err := e.budget.Acquire(ctx, estimate); err != nil {
		return nil, eris.Wrapf(err, "enrich: acquire %d tokens", estimate)
	}

	var usage model.ExternalUsage
	resp, err := resilience.Retry(ctx, e.policy, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.Call(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			usage.Calls++
			resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     e.cfg.Model,
				MaxTokens: e.cfg.MaxTokens,
				System:    systemPrompt,
				Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
			})
			if err != nil {
				if code := anthropic.StatusCode(err); resilience.TransientStatus(code) {
					return nil, resilience.NewTransientError(err, code)
				}
				return nil, err
			}
			return resp, nil
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: %s", req.ModelCode)
	}

	usage.InputTokens = resp.Usage.InputTokens
	usage.OutputTokens = resp.Usage.OutputTokens
	if e.calc != nil {
		usage.CostUSD = e.calc.Claude(e.cfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}

	res, err := parseResult(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "enrich: %s", req.ModelCode)
	}
	res.Usage = usage

	zap.L().Info("enrich: synthetic base model",
		zap.String("model_code", req.ModelCode),
		zap.String("model_name", res.ModelName),
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
		zap.Float64("cost_usd", usage.CostUSD),
	)
	return res, nil
}

func userPrompt(req Request) string {
	return fmt.Sprintf("Brand: %s\nModel year: %d\nModel code: %s\nDealer price: %.2f",
		req.Brand, req.ModelYear, req.ModelCode, req.Price)
}

// parseResult extracts the JSON object from a reply, tolerating code fences
// and surrounding prose.
func parseResult(text string) (*Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, eris.New("enrich: no JSON object in reply")
	}
	var res Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &res); err != nil {
		return nil, eris.Wrap(err, "enrich: decode reply")
	}
	if strings.TrimSpace(res.ModelName) == "" {
		return nil, eris.New("enrich: reply has no model_name")
	}
	if res.Specifications == nil {
		res.Specifications = model.SpecMap{}
	}
	return &res, nil
}
