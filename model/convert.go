package model

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentgate/core"
)

// ResponseText renders a function response as the text handed back to a
// provider. Failed calls are rendered as "Error: <message>".
func ResponseText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		return "Error: " + fr.Error
	}
	switch v := fr.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ToolDefinitions builds function tool definitions in the given order.
func ToolDefinitions(defs ...FunctionDefinition) []ToolDefinition {
	out := make([]ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolDefinition{Type: "function", Function: d})
	}
	return out
}
