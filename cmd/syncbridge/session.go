package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/syncbridge/bridge"
	"github.com/wippyai/syncbridge/registry"
)

// session is a bridge with its registration entry points called.
type session struct {
	b     *bridge.Bridge
	env   *bridge.Env
	infos map[registry.Owner]*bridge.PluginInfo
}

func newSession(ctx context.Context, b *bridge.Bridge, out *printer) (*session, error) {
	s := &session{b: b, env: bridge.NewEnv(), infos: make(map[registry.Owner]*bridge.PluginInfo)}
	for _, step := range []struct {
		name string
		fn   func(context.Context, *bridge.Env) (bool, error)
	}{
		{"get_sync_info", b.GetSyncInfo},
		{"get_format_info", b.GetFormatInfo},
		{"get_conversion_info", b.GetConversionInfo},
	} {
		ok, err := step.fn(ctx, s.env)
		if err != nil {
			return nil, err
		}
		out.step(step.name, fmt.Sprint(ok), nil)
	}
	return s, nil
}

// initialize runs every plugin's initialize callback.
func (s *session) initialize(ctx context.Context, config string, out *printer) error {
	for _, p := range s.env.Plugins() {
		info := bridge.NewPluginInfo(config)
		ref, err := s.b.Plugin(p.Owner).Initialize(ctx, info)
		out.step(p.Name+": initialize", fmt.Sprintf("data=%d sinks=%d", ref, len(info.Sinks())), err)
		if err != nil {
			return err
		}
		s.infos[p.Owner] = info
	}
	return nil
}

// close finalizes initialized plugins and stops the worker.
func (s *session) close(ctx context.Context, out *printer) error {
	for _, p := range s.env.Plugins() {
		if _, ok := s.infos[p.Owner]; !ok {
			continue
		}
		err := s.b.Plugin(p.Owner).Finalize(ctx)
		out.step(p.Name+": finalize", "", err)
	}
	return s.b.Shutdown(ctx)
}

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	labelStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

// printer serializes step output from concurrent sinks. Styling is used
// only on a terminal.
type printer struct {
	w      io.Writer
	mu     sync.Mutex
	styled bool
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	if f, ok := w.(*os.File); ok {
		p.styled = term.IsTerminal(int(f.Fd()))
	}
	return p
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) step(label, detail string, err error) {
	status := p.render(okStyle, "ok")
	if err != nil {
		status = p.render(failStyle, "failed")
		detail = err.Error()
	}
	line := p.render(labelStyle, label) + " " + status
	if detail != "" {
		line += " " + p.render(dimStyle, detail)
	}
	p.mu.Lock()
	fmt.Fprintln(p.w, line)
	p.mu.Unlock()
}
