package alarm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// payloadFunc renders an alarm as the JSON body one webhook kind expects.
type payloadFunc func(a *Alarm) any

var payloads = map[string]payloadFunc{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  eventPayload,
}

// deliver sends a to every configured webhook. Failures are logged only.
func (n *Notifier) deliver(a *Alarm) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		build, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alarm: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		body, err := json.Marshal(build(a))
		if err == nil {
			err = n.post(url, body)
		}
		if err != nil {
			slog.Error("alarm: webhook delivery failed", "type", wh.Type, "key", a.Key, "err", err)
		} else {
			slog.Debug("alarm: webhook delivered", "type", wh.Type, "key", a.Key, "state", a.State)
		}
	}
}

// nodeEvent is the flat body posted to generic http webhooks.
type nodeEvent struct {
	Event      string     `json:"event"`
	Key        string     `json:"key"`
	Engine     string     `json:"engine"`
	Cluster    string     `json:"cluster"`
	Node       string     `json:"node"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	OutageSecs float64    `json:"outage_seconds,omitempty"`
}

func eventPayload(a *Alarm) any {
	ev := nodeEvent{
		Event:      eventName(a),
		Key:        a.Key,
		Engine:     a.Engine,
		Cluster:    a.Cluster,
		Node:       a.Node,
		Severity:   a.Severity,
		Message:    a.Message,
		FiredAt:    a.FiredAt,
		ResolvedAt: a.ResolvedAt,
	}
	if d, ok := outage(a); ok {
		ev.OutageSecs = d.Seconds()
	}
	return ev
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color    string       `json:"color"`
	Fallback string       `json:"fallback"`
	Title    string       `json:"title"`
	Text     string       `json:"text"`
	Fields   []slackField `json:"fields"`
	Ts       int64        `json:"ts"`
}

func slackPayload(a *Alarm) any {
	fields := []slackField{
		{Title: "Engine", Value: a.Engine, Short: true},
		{Title: "Cluster", Value: a.Cluster, Short: true},
		{Title: "Node", Value: a.Node, Short: true},
		{Title: "Severity", Value: a.Severity, Short: true},
	}
	if d, ok := outage(a); ok {
		fields = append(fields, slackField{Title: "Outage", Value: d.String(), Short: true})
	}
	title := fmt.Sprintf("%s %s node %s", label(a), a.Engine, a.Key)
	return map[string]any{
		"text": title,
		"attachments": []slackAttachment{{
			Color:    "#" + color(a),
			Fallback: title + ": " + a.Message,
			Title:    title,
			Text:     a.Message,
			Fields:   fields,
			Ts:       a.FiredAt.Unix(),
		}},
	}
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsSection struct {
	ActivityTitle    string      `json:"activityTitle"`
	ActivitySubtitle string      `json:"activitySubtitle"`
	Facts            []teamsFact `json:"facts"`
	Markdown         bool        `json:"markdown"`
}

func teamsPayload(a *Alarm) any {
	facts := []teamsFact{
		{Name: "Engine", Value: a.Engine},
		{Name: "Cluster", Value: a.Cluster},
		{Name: "Node", Value: a.Node},
		{Name: "Severity", Value: a.Severity},
		{Name: "Fired", Value: a.FiredAt.UTC().Format(time.RFC3339)},
	}
	if a.ResolvedAt != nil {
		facts = append(facts, teamsFact{Name: "Resolved", Value: a.ResolvedAt.UTC().Format(time.RFC3339)})
	}
	if d, ok := outage(a); ok {
		facts = append(facts, teamsFact{Name: "Outage", Value: d.String()})
	}
	return map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color(a),
		"summary":    a.Key,
		"title":      fmt.Sprintf("dbfleet %s: %s cluster %s", label(a), a.Engine, a.Cluster),
		"sections": []teamsSection{{
			ActivityTitle:    a.Node,
			ActivitySubtitle: a.Message,
			Facts:            facts,
			Markdown:         true,
		}},
	}
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// eventName is node.degraded while firing and node.recovered once resolved.
func eventName(a *Alarm) string {
	if a.State == StateResolved {
		return "node.recovered"
	}
	return "node.degraded"
}

// outage is how long a resolved alarm's node stayed unhealthy.
func outage(a *Alarm) (time.Duration, bool) {
	if a.ResolvedAt == nil {
		return 0, false
	}
	return a.ResolvedAt.Sub(a.FiredAt).Round(time.Second), true
}

func label(a *Alarm) string {
	if a.State == StateResolved {
		return "[RECOVERED]"
	}
	switch a.Severity {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[UNKNOWN]"
	}
}

func color(a *Alarm) string {
	if a.State == StateResolved {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "8A8A8A"
	}
}
