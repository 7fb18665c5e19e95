package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/wippyai/syncbridge/bridge"
	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/registry"
	"github.com/wippyai/syncbridge/signature"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	slotStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newTUICmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Pick registered callbacks and call them interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("tui needs a terminal; use run or inspect instead")
			}
			return runInteractive(cmd.Context(), s)
		},
	}
}

// tuiAction is one registered callback of one owner.
type tuiAction struct {
	info   *bridge.PluginInfo
	owner  registry.Owner
	name   string
	params []paramInfo
	slot   callback.Slot
}

// paramInfo is an argument typed in by the user.
type paramInfo struct {
	name    string
	typeStr string
	index   int
	kind    signature.Kind
}

type modelState int

const (
	stateSelect modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	err      error
	sess     *session
	settings settings
	result   string
	actions  []tuiAction
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type loadedMsg struct {
	err     error
	sess    *session
	actions []tuiAction
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(ctx context.Context, s settings) *interactiveModel {
	return &interactiveModel{ctx: ctx, settings: s, state: stateSelect}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	log, err := newLogger(m.settings.Verbose)
	if err != nil {
		return loadedMsg{err: err}
	}
	b, err := openBridge(m.settings, log)
	if err != nil {
		return loadedMsg{err: err}
	}
	quiet := newPrinter(io.Discard)
	sess, err := newSession(m.ctx, b, quiet)
	if err != nil {
		_ = b.Shutdown(m.ctx)
		return loadedMsg{err: err}
	}
	if err := sess.initialize(m.ctx, m.settings.Config, quiet); err != nil {
		_ = sess.close(m.ctx, quiet)
		return loadedMsg{err: err}
	}
	return loadedMsg{sess: sess, actions: collectActions(sess)}
}

// collectActions lists every callback registered by the loaded owners.
func collectActions(sess *session) []tuiAction {
	var actions []tuiAction
	reg := sess.b.Registry()
	add := func(r bridge.Registered, info *bridge.PluginInfo) {
		for _, slot := range callback.Slots(r.Kind) {
			if _, ok := reg.Lookup(r.Owner, slot.Key()); !ok {
				continue
			}
			actions = append(actions, tuiAction{
				info:   info,
				owner:  r.Owner,
				name:   r.Name + " " + slot.String(),
				params: userParams(slot.Signature()),
				slot:   slot,
			})
		}
	}
	for _, p := range sess.env.Plugins() {
		info := sess.infos[p.Owner]
		add(p, info)
		for _, sink := range info.Sinks() {
			add(sink, info)
		}
	}
	for _, f := range sess.env.Formats() {
		add(f, nil)
	}
	for _, c := range sess.env.Converters() {
		add(c, nil)
	}
	return actions
}

// userParams returns the inputs of t the user supplies; owners, contexts
// and user data are filled in by the model.
func userParams(t *signature.Table) []paramInfo {
	var params []paramInfo
	for i, s := range t.In {
		p := paramInfo{name: s.Name, index: i, kind: s.Kind}
		switch s.Kind {
		case signature.KindBuffer, signature.KindString:
			p.typeStr = "string"
		case signature.KindBool:
			p.typeStr = "bool"
		case signature.KindInt:
			p.typeStr = "int"
		case signature.KindHandle:
			if s.Type != "OSyncChange*" {
				continue
			}
			p.typeStr = "change data"
		default:
			continue
		}
		params = append(params, p)
	}
	return params
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			if m.sess != nil {
				_ = m.sess.close(m.ctx, newPrinter(io.Discard))
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.actions)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelect:
				if len(m.actions) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.call
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.call

			case stateShowResult:
				m.state = stateSelect
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelect
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelect
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sess = msg.sess
		m.actions = msg.actions

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	a := m.actions[m.selected]
	m.inputs = make([]textinput.Model, len(a.params))
	for i, p := range a.params {
		ti := textinput.New()
		ti.Placeholder = p.typeStr
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// call runs the selected callback. It runs on a bubbletea goroutine; the
// bridge confines the guest call to its worker.
func (m *interactiveModel) call() tea.Msg {
	a := m.actions[m.selected]
	typed := make(map[int]string, len(m.inputs))
	for i, input := range m.inputs {
		typed[a.params[i].index] = input.Value()
	}

	sc := bridge.NewContext()
	var ch *bridge.Change
	in := a.slot.Signature().In
	args := make([]any, len(in))
	for i, s := range in {
		value := typed[i]
		switch s.Kind {
		case signature.KindHandle:
			switch strings.TrimSuffix(s.Type, "*") {
			case "OSyncPluginInfo":
				args[i] = a.info
			case "OSyncContext":
				args[i] = sc
			case "OSyncChange":
				ch = bridge.NewChange("tui-1", []byte(value))
				args[i] = ch
			case "OSyncMarshal":
				args[i] = &bridge.Marshal{}
			default:
				args[i] = a.owner
			}
		case signature.KindUserData:
			args[i] = m.sess.b.Registry().Get(a.owner, callback.DataKey)
		case signature.KindBuffer:
			args[i] = []byte(value)
		case signature.KindString:
			args[i] = value
		case signature.KindBool:
			args[i] = value == "true" || value == "1"
		case signature.KindInt:
			n, _ := strconv.ParseInt(value, 10, 64)
			args[i] = n
		}
	}

	v, err := m.sess.b.Dispatch(m.ctx, a.owner, a.slot, args...)
	if err != nil {
		return callResultMsg{err: err}
	}

	var b strings.Builder
	b.WriteString(formatResult(v))
	for _, r := range sc.Reports() {
		fmt.Fprintf(&b, "\nreport %d: %s", r.Code, r.Message)
	}
	if ch != nil {
		if committed, ok := ch.Field("committed"); ok {
			fmt.Fprintf(&b, "\ncommitted: %q", committed)
		}
	}
	return callResultMsg{result: b.String()}
}

func formatResult(v any) string {
	switch r := v.(type) {
	case nil:
		return "(no result)"
	case []byte:
		return strconv.Quote(string(r))
	case callback.Duplicate:
		return fmt.Sprintf("newuid=%q output=%q dirty=%t", r.NewUID, r.Output, r.Dirty)
	default:
		return fmt.Sprintf("%v", r)
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.sess == nil {
		return "Loading plugin..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("OpenSync Bridge"))
	b.WriteString(" ")
	b.WriteString(m.sess.b.Guest().Name())
	b.WriteString("\n\n")

	switch m.state {
	case stateSelect:
		if len(m.actions) == 0 {
			b.WriteString("The plugin registered no callbacks.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a callback to call:\n\n")
		for i, a := range m.actions {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatAction(a)))
			} else {
				b.WriteString("  " + m.formatAction(a))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		a := m.actions[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", slotStyle.Render(a.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(a.params[i].typeStr))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		a := m.actions[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", slotStyle.Render(a.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}
	return b.String()
}

func (m *interactiveModel) formatAction(a tuiAction) string {
	var params []string
	for _, p := range a.params {
		params = append(params, p.name+": "+typeStyle.Render(p.typeStr))
	}
	result := ""
	if r := a.slot.Result(); r != callback.ResultVoid {
		result = " -> " + typeStyle.Render(r.String())
	}
	return slotStyle.Render(a.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(ctx context.Context, s settings) error {
	p := tea.NewProgram(newInteractiveModel(ctx, s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
