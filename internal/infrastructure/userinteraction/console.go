package userinteraction

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"query-assistant/internal/application/port/output"
)

var _ output.ProgressPort = (*Console)(nil)

// Console is the terminal front end of the chat REPL.
type Console struct {
	reader  *bufio.Reader
	out     io.Writer
	verbose bool
}

func NewConsole(in io.Reader, out io.Writer, verbose bool) *Console {
	return &Console{
		reader:  bufio.NewReader(in),
		out:     out,
		verbose: verbose,
	}
}

// ReadLine prompts and returns the trimmed line. io.EOF ends the session.
func (c *Console) ReadLine(prompt string) (string, error) {
	color.New(color.FgHiWhite, color.Bold).Fprint(c.out, prompt)

	line, err := c.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *Console) ShowAnswer(answer string) {
	color.New(color.FgGreen, color.Bold).Fprint(c.out, "\nAssistant: ")
	fmt.Fprintln(c.out, answer)
	fmt.Fprintln(c.out)
}

func (c *Console) ShowError(err error) {
	color.New(color.FgRed).Fprintf(c.out, "Error: %v\n", err)
}

func (c *Console) Info(format string, args ...any) {
	color.New(color.Faint).Fprintf(c.out, format+"\n", args...)
}

func (c *Console) ShowRound(_ context.Context, round, maxRounds int) {
	if !c.verbose {
		return
	}
	color.New(color.FgCyan, color.Bold).Fprintf(c.out, "\n━━━ Round %d/%d ━━━\n", round, maxRounds)
}

func (c *Console) ShowThinking(_ context.Context, content string) {
	if content == "" {
		return
	}
	color.New(color.FgBlue).Fprint(c.out, "\n💭 ")
	color.New(color.Faint).Fprintln(c.out, truncate(content, 500))
}

func (c *Console) ShowToolStart(_ context.Context, toolName, arguments string) {
	icon, name := toolDisplay(toolName)
	color.New(color.FgYellow, color.Bold).Fprintf(c.out, "\n%s %s\n", icon, name)

	if summary := formatToolArguments(toolName, arguments); summary != "" {
		color.New(color.Faint).Fprintf(c.out, "   %s\n", summary)
	}
}

func (c *Console) ShowToolResult(_ context.Context, toolName, result string, isError bool) {
	if isError {
		color.New(color.FgRed).Fprint(c.out, "❌ ")
		color.New(color.Faint).Fprintln(c.out, truncate(strings.TrimPrefix(result, "Error: "), 300))
		return
	}
	color.New(color.FgGreen).Fprintf(c.out, "✓ %s\n", formatToolResult(toolName, result))
}

func toolDisplay(toolName string) (string, string) {
	displays := map[string][2]string{
		"get_address_details":            {"💰", "Address details"},
		"get_transactions_for_address":   {"📜", "Address transactions"},
		"get_single_transaction_details": {"🔗", "Transaction details"},
		"search_cardano_knowledge":       {"📚", "Cardano knowledge"},
		"get_cardano_faq":                {"❓", "Cardano FAQ"},
		"search_civil_law_knowledge":     {"⚖️", "Civil law"},
		"search_corporate_law_knowledge": {"🏢", "Corporate law"},
		"search_property_law_knowledge":  {"🏠", "Property law"},
	}

	if display, ok := displays[toolName]; ok {
		return display[0], display[1]
	}
	return "🔧", toolName
}

func formatToolArguments(toolName, arguments string) string {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ""
	}

	switch toolName {
	case "get_address_details":
		if addr, ok := args["address"].(string); ok {
			return "Address: " + shorten(addr)
		}

	case "get_transactions_for_address":
		if addr, ok := args["address"].(string); ok {
			summary := "Address: " + shorten(addr)
			if n, ok := args["count"].(float64); ok {
				summary += fmt.Sprintf(" (count: %d)", int(n))
			}
			if order, ok := args["order"].(string); ok && order != "" {
				summary += " " + order
			}
			return summary
		}

	case "get_single_transaction_details":
		if hash, ok := args["tx_hash"].(string); ok {
			return "Tx: " + shorten(hash)
		}

	case "get_cardano_faq":
		if topic, ok := args["topic"].(string); ok {
			return "Topic: " + truncate(topic, 80)
		}
	}

	if query, ok := args["query"].(string); ok {
		return "Query: " + truncate(query, 80)
	}
	return ""
}

func formatToolResult(toolName, result string) string {
	switch {
	case strings.HasPrefix(result, "No relevant passages"):
		return result
	case strings.HasPrefix(result, "[1] "):
		return fmt.Sprintf("%d passages", strings.Count(result, "\n\n[")+1)
	case strings.HasPrefix(toolName, "get_"):
		return fmt.Sprintf("%d bytes of chain data", len(result))
	}
	return truncate(result, 100)
}

// shorten keeps the head and tail of long identifiers.
func shorten(s string) string {
	if len(s) <= 24 {
		return s
	}
	return s[:14] + "…" + s[len(s)-8:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
