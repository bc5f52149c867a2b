package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ordena/internal"
	"ordena/internal/config"
	"ordena/internal/pipeline"
)

// Client is the AI-based extraction path, used only when the rule
// parser yields nothing. It satisfies pipeline.Parser.
type Client struct {
	api     sdk.Client
	cfg     config.Config
	policy  config.Policy
	limiter *rate.Limiter
	timeout time.Duration
}

func New(cfg config.Config, policy config.Policy) *Client {
	rps := cfg.FallbackRateLimitRPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		api:     sdk.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		cfg:     cfg,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		timeout: time.Duration(cfg.FallbackTimeoutSec) * time.Second,
	}
}

// Parse sends the size-capped normalized email text and the client's
// catalog subset to the extraction tool and accepts its structured
// output as a ParsedOrder. The call fails closed on timeout and is not
// retried here.
func (c *Client) Parse(ctx context.Context, input internal.EmailInput) (internal.ParsedOrder, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return internal.ParsedOrder{}, eris.Wrap(err, "fallback: rate limiter")
	}

	body := input.EmailBody
	if input.EmailHTML != "" {
		body = input.EmailHTML
	}
	text := pipeline.TruncateForFallback(pipeline.StripHTML(body), c.cfg.FallbackMaxBytes)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.api.Messages.New(callCtx, sdk.MessageNewParams{
		Model:     sdk.Model(c.cfg.FallbackModel),
		MaxTokens: 4096,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(buildPrompt(text, input.Catalog))),
		},
		Tools: []sdk.ToolUnionParam{{
			OfTool: &sdk.ToolParam{
				Name:        toolName,
				Description: sdk.String("Record the structured purchase order extracted from the email."),
				InputSchema: sdk.ToolInputSchemaParam{Properties: toolSchema()},
			},
		}},
		ToolChoice: sdk.ToolChoiceUnionParam{
			OfTool: &sdk.ToolChoiceToolParam{Name: toolName},
		},
	})
	if err != nil {
		return internal.ParsedOrder{}, classify(err)
	}

	var wire *wireOrder
	for _, block := range msg.Content {
		tu, ok := block.AsAny().(sdk.ToolUseBlock)
		if !ok || tu.Name != toolName {
			continue
		}
		var decoded wireOrder
		if err := json.Unmarshal([]byte(tu.JSON.Input.Raw()), &decoded); err != nil {
			return internal.ParsedOrder{}, eris.Wrap(err, "fallback: decode tool output")
		}
		wire = &decoded
		break
	}
	if wire == nil {
		return internal.ParsedOrder{}, eris.New("fallback: response carried no tool output")
	}

	zap.L().Info("fallback extraction accepted",
		zap.String("email_id", input.EmailID),
		zap.Int("branches", len(wire.Branches)),
		zap.Float64("confidence", wire.Confidence),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)

	return c.toParsedOrder(*wire, input), nil
}

// toParsedOrder converts the tool output. Lines without a trusted
// catalog id still pass through the regular catalog matcher before use.
func (c *Client) toParsedOrder(wire wireOrder, input internal.EmailInput) internal.ParsedOrder {
	matcher := pipeline.NewMatcher(c.cfg, c.policy, input.Catalog)
	byID := make(map[int]internal.CatalogProduct, len(input.Catalog))
	for _, p := range input.Catalog {
		byID[p.ID] = p
	}

	out := internal.ParsedOrder{
		SourceEmailID: input.EmailID,
		Confidence:    clamp01(wire.Confidence),
		GeneralNotes:  wire.GeneralNotes,
	}

	for _, wb := range wire.Branches {
		branch := internal.ParsedBranch{
			NameAsWritten:   wb.BranchName,
			MatchedBranchID: pipeline.MatchBranch(wb.BranchName, input.Branches),
		}
		if wb.DeliveryDate != "" {
			date := wb.DeliveryDate
			branch.DeliveryDate = &date
		}

		for _, wl := range wb.Lines {
			if wl.Quantity <= 0 || wl.ProductText == "" {
				continue
			}
			cand := pipeline.Candidate{
				ProductText: wl.ProductText,
				Quantity:    wl.Quantity,
				QuantityRaw: formatQty(wl.Quantity),
				UnitHint:    wl.Unit,
			}

			var line internal.ParsedLine
			if product, ok := byID[wl.CatalogID]; ok {
				line = matcher.ResolvedLine(cand, product, internal.SourceAIFallback)
			} else {
				line = matcher.Line(cand, internal.SourceAIFallback)
			}
			if line.UnitPrice == nil && wl.SuggestedPrice > 0 {
				price := decimal.NewFromFloat(wl.SuggestedPrice)
				line.UnitPrice = &price
				line.Subtotal = price.Mul(decimal.NewFromFloat(line.Quantity)).Round(2)
			}
			if wl.Notes != "" {
				notes := wl.Notes
				line.Notes = &notes
			}
			branch.Lines = append(branch.Lines, line)
		}

		if len(branch.Lines) > 0 {
			out.Branches = append(out.Branches, branch)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func formatQty(v float64) string {
	return fmt.Sprintf("%g", v)
}
