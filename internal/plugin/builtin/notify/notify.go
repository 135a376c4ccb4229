// Package notify is a builtin plugin that publishes build results to a
// NATS subject, so dashboards or deploy automation can react to finished
// builds without polling the output directory.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitewright/internal/plugin/builtin"
	"git.home.luguber.info/inful/sitewright/pkg/plugin"
)

const defaultSubject = "sitewright.builds"

// buildEvent is the published message body.
type buildEvent struct {
	BuildID    string    `json:"build_id"`
	Status     string    `json:"status"`
	Pages      int       `json:"pages,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// Plugin implements the notify builtin.
type Plugin struct {
	plugin.Base

	conn   *nats.Conn
	failed bool
}

func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Manifest() plugin.Manifest {
	return plugin.Manifest{
		Name:        "notify",
		Version:     "1.0.0",
		Description: "Publishes build results to a NATS subject",
		Author:      "sitewright",
		Provides:    []string{"notifications"},
		Config: map[string]any{
			"url":     "",
			"subject": defaultSubject,
		},
	}
}

func (p *Plugin) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		plugin.HookBuildEnd:   p.onBuildEnd,
		plugin.HookBuildError: p.onBuildError,
	}
}

func (p *Plugin) onBuildEnd(_ context.Context, pc *plugin.Context, value any, _ ...any) (any, error) {
	ev := buildEvent{BuildID: pc.BuildID, Status: "success", At: time.Now()}
	if stats, ok := value.(*plugin.BuildStats); ok {
		ev.BuildID = stats.BuildID
		ev.Pages = stats.Pages
		ev.DurationMS = stats.Duration.Milliseconds()
	}
	p.publish(pc, ev)
	return value, nil
}

func (p *Plugin) onBuildError(_ context.Context, pc *plugin.Context, value any, _ ...any) (any, error) {
	ev := buildEvent{BuildID: pc.BuildID, Status: "failed", At: time.Now()}
	switch v := value.(type) {
	case error:
		ev.Error = v.Error()
	case string:
		ev.Error = v
	default:
		ev.Error = fmt.Sprint(value)
	}
	p.publish(pc, ev)
	return value, nil
}

func (p *Plugin) publish(pc *plugin.Context, ev buildEvent) {
	conn, err := p.connect(pc)
	if err != nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		pc.Logger.Warn("could not encode build event", "error", err.Error())
		return
	}

	subject := pc.ConfigString("subject")
	if subject == "" {
		subject = defaultSubject
	}
	if err := conn.Publish(subject, data); err != nil {
		pc.Logger.Warn("could not publish build event", "subject", subject, "error", err.Error())
		return
	}
	if err := conn.Flush(); err != nil {
		pc.Logger.Warn("could not flush build event", "error", err.Error())
		return
	}

	pc.Logger.Debug("published build event", "subject", subject, "status", ev.Status)
}

// connect dials NATS on first use. A failed dial disables the plugin for
// the rest of the process; builds must not stall retrying a dead broker.
func (p *Plugin) connect(pc *plugin.Context) (*nats.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}
	if p.failed {
		return nil, fmt.Errorf("notifications disabled after failed connect")
	}

	url := pc.ConfigString("url")
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("sitewright"))
	if err != nil {
		p.failed = true
		pc.Logger.Warn("could not connect to NATS, notifications disabled", "url", url, "error", err.Error())
		return nil, err
	}

	p.conn = conn
	return conn, nil
}

// Cleanup drains the NATS connection so queued events reach the broker.
func (p *Plugin) Cleanup(_ context.Context, _ *plugin.Context) error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Drain()
	p.conn = nil
	return err
}

func init() {
	builtin.Register("notify", func() plugin.Plugin { return New() })
}
