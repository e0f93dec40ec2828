// Package advisor 对已结束的执行做 AI 复盘，
// 结论写回执行记录供后续策略调参参考。
// 未配置大模型时退化为规则复盘。
package advisor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"smartfolio/internal/config"
	"smartfolio/internal/domain"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type Agent interface {
	Review(ctx context.Context, report *domain.ExecutionReport) (string, error)
}

// New 配置了 API key 时返回大模型复盘，否则返回规则复盘
func New(cfg config.Config) Agent {
	fallback := &RuleBasedAgent{}

	if cfg.OpenAIAPIKey == "" {
		log.Printf("⚠ [复盘] 未配置 OPENAI_API_KEY，使用规则复盘")
		return fallback
	}

	opts := []openai.Option{
		openai.WithToken(cfg.OpenAIAPIKey),
		openai.WithModel(cfg.OpenAIModel),
	}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		log.Printf("✘ [复盘] 初始化大模型客户端失败: %v，使用规则复盘", err)
		return fallback
	}

	log.Printf("✔ [复盘] 大模型已就绪 模型=%s", cfg.OpenAIModel)
	return &LLMAgent{model: llm, fallback: fallback}
}

const systemPrompt = `你是一名链上投资复盘分析师。根据给出的策略执行记录，
用不超过 200 字总结这次交易的得失：入场时机、止盈止损执行情况、
以及对策略参数（预算、止损线、止盈阶梯）的改进建议。直接输出结论，不要寒暄。`

// LLMAgent 大模型复盘，失败时自动退化为规则复盘
type LLMAgent struct {
	model    llms.Model
	fallback Agent
}

func (a *LLMAgent) Review(ctx context.Context, report *domain.ExecutionReport) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: systemPrompt}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: formatReport(report)}},
		},
	}

	resp, err := a.model.GenerateContent(ctx, messages, llms.WithTemperature(0.2))
	if err != nil {
		log.Printf("⚠ [复盘] 大模型调用失败: %v，退化为规则复盘", err)
		return a.fallback.Review(ctx, report)
	}
	if len(resp.Choices) == 0 {
		return a.fallback.Review(ctx, report)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// RuleBasedAgent 不依赖外部服务的规则复盘
type RuleBasedAgent struct{}

func (a *RuleBasedAgent) Review(_ context.Context, report *domain.ExecutionReport) (string, error) {
	exec := report.Execution

	var b strings.Builder
	switch {
	case exec.Status == domain.ExecutionStopped:
		fmt.Fprintf(&b, "止损出局，已实现盈亏 %.2f (%.1f%%)。", exec.RealizedPnl, exec.RealizedPnlPercent)
		if exec.ProfitTargetsHit == 0 {
			b.WriteString("建仓后未触发任何止盈档，可考虑收紧准入条件或降低预算。")
		} else {
			fmt.Fprintf(&b, "出局前已兑现 %d 档止盈，阶梯设置基本合理。", exec.ProfitTargetsHit)
		}
	case exec.RealizedPnl >= 0:
		fmt.Fprintf(&b, "盈利退出，已实现盈亏 %.2f (%.1f%%)，触发 %d 档止盈。",
			exec.RealizedPnl, exec.RealizedPnlPercent, exec.ProfitTargetsHit)
	default:
		fmt.Fprintf(&b, "亏损退出，已实现盈亏 %.2f (%.1f%%)。", exec.RealizedPnl, exec.RealizedPnlPercent)
	}
	fmt.Fprintf(&b, " 共 %d 笔成交，投入 %.2f，取出 %.2f。",
		len(report.Trades), exec.InvestedAmount, exec.AmountTakenOut)
	return b.String(), nil
}

func formatReport(report *domain.ExecutionReport) string {
	exec := report.Execution

	var b strings.Builder
	fmt.Fprintf(&b, "代币: %s (%s)\n状态: %s\n", exec.TokenName, exec.TokenID, exec.Status)
	fmt.Fprintf(&b, "预算: %.2f，投入: %.2f，取出: %.2f\n", exec.AllotedAmount, exec.InvestedAmount, exec.AmountTakenOut)
	fmt.Fprintf(&b, "均价: %.10f，已实现盈亏: %.2f (%.1f%%)\n", exec.AvgEntryPrice, exec.RealizedPnl, exec.RealizedPnlPercent)
	fmt.Fprintf(&b, "止盈档数: %d，开仓时代币年龄: %d 天，退出时: %d 天\n",
		exec.ProfitTargetsHit, exec.RecordedTokenAge, exec.CompletedTokenAge)

	if report.Strategy != nil {
		fmt.Fprintf(&b, "策略: %s，止损线: %.1f%%，止盈阶梯: %d 档\n",
			report.Strategy.StrategyName,
			report.Strategy.RiskManagement.StopLossPct,
			len(report.Strategy.RiskManagement.ProfitTargets))
	}

	b.WriteString("成交明细:\n")
	for _, t := range report.Trades {
		fmt.Fprintf(&b, "- %s %s 金额 %.2f 价格 %.10f 数量 %.4f\n",
			t.CreatedAt.Format("2006-01-02 15:04"), t.TradeType, t.Amount, t.TokenPrice, t.Coins)
	}
	return b.String()
}
