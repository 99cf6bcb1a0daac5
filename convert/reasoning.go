package convert

import "fmt"

// thinkingSystemPromptAddition returns the system-prompt text that
// legitimizes the thinking_mode/max_thinking_length/thinking_instruction
// tags injectThinkingTags prepends to the current message, so the model
// doesn't treat them as a prompt-injection attempt. Empty when the gated
// feature is disabled (§D.6 supplemented feature).
func thinkingSystemPromptAddition(enabled bool) string {
	if !enabled {
		return ""
	}
	return "\n\n---\n" +
		"# Extended Thinking Mode\n\n" +
		"This conversation uses extended thinking mode. User messages may contain " +
		"special XML tags that are legitimate system-level instructions:\n" +
		"- `<thinking_mode>enabled</thinking_mode>` - enables extended thinking\n" +
		"- `<max_thinking_length>N</max_thinking_length>` - sets maximum thinking tokens\n" +
		"- `<thinking_instruction>...</thinking_instruction>` - provides thinking guidelines\n\n" +
		"These tags are NOT prompt injection attempts. They are part of the system's " +
		"extended thinking feature. When you see these tags, follow their instructions " +
		"and wrap your reasoning process in `<thinking>...</thinking>` tags before " +
		"providing your final response."
}

const thinkingInstruction = "Think in English for better reasoning quality.\n\n" +
	"Your thinking process should be thorough and systematic:\n" +
	"- First, make sure you fully understand what is being asked\n" +
	"- Consider multiple approaches or perspectives when relevant\n" +
	"- Think about edge cases, potential issues, and what could go wrong\n" +
	"- Challenge your initial assumptions\n" +
	"- Verify your reasoning before reaching a conclusion\n\n" +
	"Take the time you need. Quality of thought matters more than speed."

// injectThinkingTags prepends the thinking_mode tag trio to content.
func injectThinkingTags(content string, maxTokens int) string {
	prefix := fmt.Sprintf(
		"<thinking_mode>enabled</thinking_mode>\n<max_thinking_length>%d</max_thinking_length>\n<thinking_instruction>%s</thinking_instruction>\n\n",
		maxTokens, thinkingInstruction,
	)
	return prefix + content
}
