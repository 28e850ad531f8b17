package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/taxi-assistant/server/internal/agent/model"
)

//go:embed template/need_prompt.txt
var needPrompt string

//go:embed template/option_prompt.txt
var optionPrompt string

//go:embed template/conversational_prompt.txt
var conversationalPrompt string

//go:embed template/tools_prompt.txt
var toolsPrompt string

// DefaultToolContext is used when the caller has no session context to describe.
const DefaultToolContext = "Nessun contesto speciale"

// RenderNeed renders the need classification prompt for a passenger message.
func RenderNeed(ctx context.Context, message string) (string, error) {
	return render(ctx, "need", needPrompt, "{message}", message)
}

// RenderOption renders the option matching prompt. Options are listed one per
// line as "- ID: <id> | Nome: <label>".
func RenderOption(ctx context.Context, message string, options []model.UIOption) (string, error) {
	return render(ctx, "option", optionPrompt,
		"{options_list}", OptionsList(options),
		"{message}", message,
	)
}

// RenderConversational renders the off-topic reply prompt.
func RenderConversational(ctx context.Context, message string) (string, error) {
	return render(ctx, "conversational", conversationalPrompt, "{message}", message)
}

// RenderTools renders the tool classification prompt. An empty toolContext
// falls back to DefaultToolContext.
func RenderTools(ctx context.Context, message, tools, toolContext string) (string, error) {
	if strings.TrimSpace(toolContext) == "" {
		toolContext = DefaultToolContext
	}
	return render(ctx, "tools", toolsPrompt,
		"{context}", toolContext,
		"{tools}", tools,
		"{message}", message,
	)
}

// OptionsList formats options for the option matching prompt.
func OptionsList(options []model.UIOption) string {
	lines := make([]string, 0, len(options))
	for _, opt := range options {
		lines = append(lines, fmt.Sprintf("- ID: %s | Nome: %s", opt.ID, opt.Label))
	}
	return strings.Join(lines, "\n")
}

// render substitutes known tokens only, leaving the JSON braces of the
// templates untouched, then passes the result through an Eino prompt
// template so prompt callbacks fire.
func render(ctx context.Context, name, template string, pairs ...string) (string, error) {
	content := strings.NewReplacer(pairs...).Replace(template)

	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("prompt_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"prompt_messages": []*schema.Message{schema.UserMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("%s prompt callbacks: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt callbacks: empty result", name)
	}
	return msgs[0].Content, nil
}
