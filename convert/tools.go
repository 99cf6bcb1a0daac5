package convert

import (
	"fmt"
	"strings"

	"kiro-gateway/types"
)

// referenceSentinel is the literal replacement description the Reference
// Pattern substitutes for an oversized tool description (§4.5 step 4).
func referenceSentinel(name string) string {
	return fmt.Sprintf("[Full documentation in system prompt under '## Tool: %s']", name)
}

// processToolsWithLongDescriptions implements the Reference Pattern: any
// tool whose description exceeds maxLen has its description replaced by
// the reference sentinel, and the original text is collected (in
// encounter order) for rendering into the system prompt.
func processToolsWithLongDescriptions(tools []types.Tool, maxLen int) ([]types.Tool, []string, map[string]string) {
	if len(tools) == 0 {
		return nil, nil, nil
	}
	if maxLen <= 0 {
		return tools, nil, nil
	}

	var names []string
	docs := make(map[string]string)
	out := make([]types.Tool, len(tools))

	for i, tool := range tools {
		out[i] = tool
		if tool.Type != "function" {
			continue
		}

		description := tool.Function.Description
		if strings.TrimSpace(description) == "" {
			// Kiro requires a non-empty description; this precedes and is
			// independent of the oversize rewrite (§D.3 supplemented feature).
			out[i].Function.Description = fmt.Sprintf("Tool: %s", tool.Function.Name)
			continue
		}

		if len(description) <= maxLen {
			continue
		}

		names = append(names, tool.Function.Name)
		docs[tool.Function.Name] = description
		out[i].Function.Description = referenceSentinel(tool.Function.Name)
	}

	return out, names, docs
}

// renderExtraDocs composes the system-prompt addition for every tool
// whose description was relocated, in the exact literal format the
// tool-description-rewrite property (§8 property 10, scenario S4) checks:
// one "## Tool: {name}\n{description}" section per tool, joined by a
// blank line.
func renderExtraDocs(names []string, docs map[string]string) string {
	if len(names) == 0 {
		return ""
	}
	sections := make([]string, 0, len(names))
	for _, name := range names {
		sections = append(sections, fmt.Sprintf("## Tool: %s\n%s", name, docs[name]))
	}
	return strings.Join(sections, "\n\n")
}

// sanitizeJSONSchema recursively strips fields Kiro's upstream rejects:
// an empty "required" array, and "additionalProperties" at any nesting
// level (§D.2 supplemented feature).
func sanitizeJSONSchema(schema map[string]interface{}) map[string]interface{} {
	if len(schema) == 0 {
		return map[string]interface{}{}
	}

	out := make(map[string]interface{}, len(schema))
	for key, value := range schema {
		switch key {
		case "required":
			if list, ok := value.([]interface{}); ok && len(list) == 0 {
				continue
			}
			out[key] = value
		case "additionalProperties":
			continue
		case "properties":
			if props, ok := value.(map[string]interface{}); ok {
				sanitizedProps := make(map[string]interface{}, len(props))
				for name, propVal := range props {
					if propMap, ok := propVal.(map[string]interface{}); ok {
						sanitizedProps[name] = sanitizeJSONSchema(propMap)
					} else {
						sanitizedProps[name] = propVal
					}
				}
				out[key] = sanitizedProps
			} else {
				out[key] = value
			}
		default:
			switch v := value.(type) {
			case map[string]interface{}:
				out[key] = sanitizeJSONSchema(v)
			case []interface{}:
				items := make([]interface{}, len(v))
				for i, item := range v {
					if m, ok := item.(map[string]interface{}); ok {
						items[i] = sanitizeJSONSchema(m)
					} else {
						items[i] = item
					}
				}
				out[key] = items
			default:
				out[key] = value
			}
		}
	}
	return out
}

func buildToolSpecEntries(tools []types.Tool) []ToolSpecEntry {
	if len(tools) == 0 {
		return nil
	}
	entries := make([]ToolSpecEntry, 0, len(tools))
	for _, tool := range tools {
		if tool.Type != "function" {
			continue
		}
		description := tool.Function.Description
		if strings.TrimSpace(description) == "" {
			description = fmt.Sprintf("Tool: %s", tool.Function.Name)
		}
		entries = append(entries, ToolSpecEntry{
			ToolSpecification: ToolSpecification{
				Name:        tool.Function.Name,
				Description: description,
				InputSchema: InputSchema{JSON: sanitizeJSONSchema(tool.Function.Parameters)},
			},
		})
	}
	return entries
}
