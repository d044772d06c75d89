// Package notify posts batch run summaries to operators.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/moltpump/feeshare/feeshare/pkg/chain"
	"github.com/moltpump/feeshare/feeshare/pkg/scheduler"
	"github.com/slack-go/slack"
)

// maxListedFailures bounds the per-asset lines in one message.
const maxListedFailures = 10

type SlackConfig struct {
	Logger     *slog.Logger
	WebhookURL string
}

func (cfg *SlackConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.WebhookURL == "" {
		return errors.New("webhook url is required")
	}
	return nil
}

// Slack posts summaries to an incoming webhook.
type Slack struct {
	log *slog.Logger
	cfg SlackConfig
}

func NewSlack(cfg SlackConfig) (*Slack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Slack{log: cfg.Logger, cfg: cfg}, nil
}

// NotifyBatch posts res when the run distributed or failed anything. Quiet
// runs are not posted.
func (s *Slack) NotifyBatch(ctx context.Context, res *scheduler.BatchResult) error {
	if res == nil || (res.TokensDistributed == 0 && res.Failures() == 0) {
		return nil
	}
	msg := BatchMessage(res)
	if err := slack.PostWebhookContext(ctx, s.cfg.WebhookURL, msg); err != nil {
		return fmt.Errorf("failed to post batch summary: %w", err)
	}
	s.log.Debug("notify: posted batch summary", "distributed", res.TokensDistributed, "failures", res.Failures())
	return nil
}

// BatchMessage renders res as a webhook message with a plain text fallback.
func BatchMessage(res *scheduler.BatchResult) *slack.WebhookMessage {
	summary := fmt.Sprintf("Fee distribution (%s): %d checked, %d distributed, %.4f SOL, %d buybacks, %d failures",
		res.Trigger,
		res.TokensChecked,
		res.TokensDistributed,
		chain.LamportsToSOL(res.TotalDistributedLamports),
		res.BuybacksExecuted,
		res.Failures())

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Fee distribution run", false, false)),
		slack.NewSectionBlock(nil, []*slack.TextBlockObject{
			field("Checked", fmt.Sprintf("%d", res.TokensChecked)),
			field("Distributed", fmt.Sprintf("%d (%.4f SOL)", res.TokensDistributed, chain.LamportsToSOL(res.TotalDistributedLamports))),
			field("Buybacks", fmt.Sprintf("%d (%.4f SOL)", res.BuybacksExecuted, chain.LamportsToSOL(res.TotalBuybackLamports))),
			field("Tokens burned", fmt.Sprintf("%d", res.TotalTokensBurned)),
		}, nil),
	}

	if lines := failureLines(res); len(lines) > 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "*Failures*\n"+strings.Join(lines, "\n"), false, false),
			nil, nil))
	}

	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("trigger `%s` · took %s", res.Trigger, res.Duration.Round(time.Millisecond)), false, false)))

	return &slack.WebhookMessage{
		Text:   summary,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func field(name, value string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*%s*\n%s", name, value), false, false)
}

func failureLines(res *scheduler.BatchResult) []string {
	var lines []string
	var omitted int
	for _, ar := range res.Results {
		switch ar.Status {
		case scheduler.AssetStatusDistributionFailed, scheduler.AssetStatusBuybackFailed, scheduler.AssetStatusError:
		default:
			continue
		}
		if len(lines) == maxListedFailures {
			omitted++
			continue
		}
		label := ar.Symbol
		if label == "" {
			label = ar.Mint
		}
		lines = append(lines, fmt.Sprintf("• `%s` %s: %s", label, ar.Status, ar.Error))
	}
	if omitted > 0 {
		lines = append(lines, fmt.Sprintf("… and %d more", omitted))
	}
	return lines
}

// Noop discards summaries when no webhook is configured.
type Noop struct{}

func (Noop) NotifyBatch(context.Context, *scheduler.BatchResult) error { return nil }
