package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Account:* <%s|%s> (%d)", event.ProfileURL, event.Username, event.UserID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Status:* %s", event.Status)},
	}
	if len(event.Disqualifying) > 0 {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": "*Disqualifying:*\n" + bullets(event.Disqualifying)})
	}
	if len(event.Review) > 0 {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": "*Review:*\n" + bullets(event.Review)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("vetter: %s %s", event.Username, event.Status),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("vetter %s: %s", event.Status, event.Username),
			"severity": severityFor(event.Status),
			"source":   "vetter",
			"custom_details": map[string]any{
				"user_id":       event.UserID,
				"username":      event.Username,
				"rules":         event.Rules,
				"disqualifying": event.Disqualifying,
				"review":        event.Review,
				"profile_url":   event.ProfileURL,
				"ref_hash":      event.RefHash,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(status string) string {
	switch status {
	case "DISMISSED":
		return "error"
	case "FLAGGED":
		return "warning"
	default:
		return "info"
	}
}

func bullets(lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(l)
	}
	return b.String()
}
