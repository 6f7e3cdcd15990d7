package notifier

import (
	"fmt"
	"strings"
	"time"

	"tlbot/internal/monitor"
	"tlbot/internal/pipeline"
)

const maxStructuredMessageLen = 3800

// MessageSection 表示通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 描述统一格式的 Telegram 推送。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown 生成 Markdown 文本，自动裁剪长度。
func (m StructuredMessage) RenderMarkdown() string {
	var b strings.Builder
	header := strings.TrimSpace(m.Icon + " " + m.Title)
	if header != "" {
		b.WriteString(header + "\n\n")
	}
	if block := renderSections(m.Sections); block != "" {
		b.WriteString(block)
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString(sanitize(footer))
		b.WriteString("\n")
	}
	if !m.Timestamp.IsZero() {
		b.WriteString("时间：" + m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxStructuredMessageLen {
		body = body[:maxStructuredMessageLen] + "..."
	}
	return body
}

// OutcomeMessage 把信号终态渲染成推送。
func OutcomeMessage(o pipeline.Outcome) StructuredMessage {
	icon := "✅"
	switch o.State {
	case pipeline.StateRejected:
		icon = "⛔"
	case pipeline.StateFailed:
		icon = "🚨"
	}
	lines := []string{
		fmt.Sprintf("品种: %s %s", o.Instrument, o.Side),
		fmt.Sprintf("终态: %s", o.State),
	}
	if o.Quantity != "" && o.Quantity != "0" {
		lines = append(lines, fmt.Sprintf("数量: %s", o.Quantity))
	}
	if o.OrderID != "" {
		lines = append(lines, fmt.Sprintf("订单: %s", o.OrderID))
	}
	if o.Reason != "" {
		lines = append(lines, fmt.Sprintf("原因: %s", o.Reason))
	}
	return StructuredMessage{
		Icon:      icon,
		Title:     "信号执行结果",
		Sections:  []MessageSection{{Lines: lines}, {Title: "警告", Lines: o.Warnings}},
		Footer:    "trace: " + o.TraceID,
		Timestamp: o.FinishedAt,
	}
}

// ClosureMessage 把平仓事件渲染成推送。
func ClosureMessage(ev monitor.ClosureEvent) StructuredMessage {
	icon := "📈"
	if ev.FinalPnL.IsNegative() {
		icon = "📉"
	}
	return StructuredMessage{
		Icon:  icon,
		Title: "持仓已平",
		Sections: []MessageSection{{Lines: []string{
			fmt.Sprintf("持仓: %s", ev.PositionID),
			fmt.Sprintf("品种: %s", ev.Instrument),
			fmt.Sprintf("最终盈亏: %s", ev.FinalPnL),
		}}},
		Timestamp: ev.CloseTime,
	}
}

func renderSections(secs []MessageSection) string {
	hasContent := false
	for _, sec := range secs {
		if len(sanitizeLines(sec.Lines)) > 0 {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return ""
	}
	var b strings.Builder
	b.WriteString("```\n")
	for idx, sec := range secs {
		lines := sanitizeLines(sec.Lines)
		if len(lines) == 0 {
			continue
		}
		title := strings.TrimSpace(sec.Title)
		if title != "" {
			b.WriteString(sanitize(title))
			b.WriteString("\n")
		}
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(sanitize(line))
			b.WriteString("\n")
		}
		if idx != len(secs)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("```\n\n")
	return b.String()
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "```", "'''")
	return s
}
