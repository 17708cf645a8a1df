package signal

import (
	"fmt"
	"strings"
)

// ToolFallback produces the verbal equivalent of a visual element that
// failed to render on the client, so the session can continue voice-only.
// component is the tool or card name; params carries whatever arguments the
// failed call had.
func ToolFallback(component string, params map[string]any) string {
	// Tool names arrive as "show_timer", "show_plan" and the like.
	name := strings.TrimPrefix(strings.ToLower(component), "show_")
	switch name {
	case "timer", "countdown":
		if d, ok := asInt(params["seconds"]); ok {
			return fmt.Sprintf("I couldn't show the timer, so I'll keep time out loud. %d seconds, starting now.", d)
		}
		return "I couldn't show the timer, so I'll keep time out loud."
	case "exercise_card", "card":
		if name, ok := params["name"].(string); ok {
			return fmt.Sprintf("I couldn't bring up the card for %s, but here's the gist: %s", name, summarizeCard(params))
		}
		return "I couldn't bring up the exercise card, but I'll talk you through it instead."
	case "list", "plan_list", "exercise_list", "plan":
		if items, ok := params["items"].([]string); ok && len(items) > 0 {
			return "I couldn't show the list, so here are your options: " + strings.Join(items, ", ") + "."
		}
		return "I couldn't show the list, so I'll read your options out loud."
	case "progress", "progress_bar":
		if done, ok := asInt(params["completed"]); ok {
			if total, ok2 := asInt(params["total"]); ok2 {
				return fmt.Sprintf("The progress display isn't available, but you've finished %d of %d.", done, total)
			}
		}
		return "The progress display isn't available, but I'll keep you posted as we go."
	}
	return fmt.Sprintf("I couldn't display %s, so we'll do this by voice instead.", component)
}

func summarizeCard(params map[string]any) string {
	var parts []string
	if reps, ok := asInt(params["reps"]); ok {
		parts = append(parts, fmt.Sprintf("%d reps", reps))
	}
	if secs, ok := asInt(params["seconds"]); ok {
		parts = append(parts, fmt.Sprintf("%d seconds", secs))
	}
	if len(parts) == 0 {
		return "follow my count and you'll be fine."
	}
	return strings.Join(parts, ", ") + "."
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
