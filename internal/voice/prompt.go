package voice

import (
	"sort"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/p-blackswan/joinery-agent/internal/llm"
	"github.com/p-blackswan/joinery-agent/internal/session"
)

// contextPlaceholder is replaced with the serialized session context.
const contextPlaceholder = "{{context}}"

// DefaultSystemPrompt instructs the model to answer with one JSON intent.
const DefaultSystemPrompt = `You are a voice assistant for a custom joinery business project manager.

You can help with:
- Creating new projects
- Getting project information
- Adding tasks to projects
- Updating material order status
- Getting project status
- Listing projects

You have conversation memory and can refer to earlier parts of this call.
Current context: {{context}}

CONTEXT RULES:
- Always put client names, project names and project numbers you hear into updateContext.
- "ABC Construction" means {"client": "ABC Construction"}.
- "Kitchen Renovation" means {"project_name": "Kitchen Renovation"}.
- "project 2024-001" means {"project_number": "2024-001"}.
- Use the current context to fill parameters the caller leaves out.
- "add a task" or "what's the status" with a project in context refers to that project.

Reply with a single JSON object and nothing else:
{
  "action": "create_project" | "get_project" | "add_task" | "update_material" | "get_status" | "list_projects" | "unknown",
  "parameters": { the arguments for the action, filled from context where missing },
  "response": "what to say back to the caller",
  "updateContext": { "client": "...", "project_name": "...", "project_number": "..." }
}

Parameter names: client, project_name, project_number, project_address, budget,
task_description, material_name, order_status ("ordered" or "not_ordered"),
order_number, status, limit.

Be helpful and conversational. Ask for clarification when you need it.`

// systemPrompt renders the prompt template with the session context.
func systemPrompt(template string, ctx map[string]string) string {
	if template == "" {
		template = DefaultSystemPrompt
	}
	blob := "{}"
	if len(ctx) > 0 {
		if b, err := sonic.ConfigStd.Marshal(ctx); err == nil {
			blob = string(b)
		}
	}
	if strings.Contains(template, contextPlaceholder) {
		return strings.ReplaceAll(template, contextPlaceholder, blob)
	}
	return template + "\n\nCurrent context: " + blob
}

// historyMessages converts the bounded transcript to provider messages.
func historyMessages(history []session.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case session.RoleAssistant:
			msgs = append(msgs, llm.AssistantMessage(t.Text))
		default:
			msgs = append(msgs, llm.UserMessage(t.Text))
		}
	}
	return msgs
}

// contextKeys lists keys in stable order for logging.
func contextKeys(ctx map[string]string) []string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
