package replay

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Pricing is the price per million tokens of a model.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Cost returns the price of u.
func (p Pricing) Cost(u TokenUsage) float64 {
	return float64(u.Input)/1e6*p.InputPer1M + float64(u.Output)/1e6*p.OutputPer1M
}

// PriceTable maps model names to prices. The "*" entry applies to models
// without their own.
type PriceTable map[string]Pricing

func (t PriceTable) lookup(model string) (Pricing, bool) {
	if p, ok := t[model]; ok {
		return p, true
	}
	p, ok := t["*"]
	return p, ok
}

// ParseCostSpec parses "model:input,output" with prices per million tokens.
func ParseCostSpec(spec string) (string, Pricing, error) {
	model, prices, ok := strings.Cut(spec, ":")
	if !ok {
		return "", Pricing{}, fmt.Errorf("expected model:input,output format")
	}
	if model == "" {
		return "", Pricing{}, fmt.Errorf("model name cannot be empty")
	}
	in, out, ok := strings.Cut(prices, ",")
	if !ok {
		return "", Pricing{}, fmt.Errorf("expected input,output prices")
	}
	inPrice, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
	if err != nil {
		return "", Pricing{}, fmt.Errorf("invalid input price: %w", err)
	}
	outPrice, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return "", Pricing{}, fmt.Errorf("invalid output price: %w", err)
	}
	return model, Pricing{InputPer1M: inPrice, OutputPer1M: outPrice}, nil
}

// PrintTokenUsage prints tokens per model and, when prices are known, the
// cost.
func PrintTokenUsage(w io.Writer, stats *Stats, prices PriceTable) {
	if len(stats.Tokens) == 0 {
		return
	}
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("15"))

	fmt.Fprintln(w, headerStyle.Render("Token Usage:"))
	var total float64
	priced := false
	for _, model := range sortedKeys(stats.Tokens) {
		u := stats.Tokens[model]
		cost := ""
		if p, ok := prices.lookup(model); ok {
			c := p.Cost(*u)
			total += c
			priced = true
			cost = fmt.Sprintf("  $%.4f", c)
		}
		fmt.Fprintf(w, "  %s %s%s\n",
			labelStyle.Render(model+":"),
			valueStyle.Render(fmt.Sprintf("%d calls, %d in / %d out", u.Calls, u.Input, u.Output)),
			valueStyle.Render(cost))
	}
	if priced {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("Total cost:"), valueStyle.Render(fmt.Sprintf("$%.4f", total)))
	}
	fmt.Fprintln(w)
}
