// Package terminal is the stealth terminal: a bubbletea front end that
// drives the same vault, gate and lockdown controllers as the web
// dashboard.
package terminal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/gate"
	"github.com/mtzanidakis/ghostgate/internal/lockdown"
	"github.com/mtzanidakis/ghostgate/internal/vault"
)

const (
	prompt       = "ghost@terminal:~$ "
	readyMessage = "> Stealth-Terminal bereit. Tippe /help für verfügbare Befehle."
	refreshEvery = 250 * time.Millisecond
	maxLines     = 500
)

// Controllers are the components the terminal drives.
type Controllers struct {
	Session    *vault.Session
	Scratchpad *vault.Scratchpad
	Gate       *gate.Gate
	Lockdown   *lockdown.Controller
	Mixer      *feedback.Mixer
}

type lineKind int

const (
	lineInfo lineKind = iota
	lineEcho
	lineSuccess
	lineWarn
	lineError
)

type line struct {
	kind lineKind
	text string
}

func info(s string) line    { return line{lineInfo, s} }
func success(s string) line { return line{lineSuccess, s} }
func warn(s string) line    { return line{lineWarn, s} }
func failure(s string) line { return line{lineError, s} }

func infoLines(ss ...string) []line {
	out := make([]line, len(ss))
	for i, s := range ss {
		out[i] = info(s)
	}
	return out
}

var (
	neon       = lipgloss.Color("#39ff88")
	dim        = lipgloss.Color("#8b95a3")
	amber      = lipgloss.Color("#ffb020")
	danger     = lipgloss.Color("#ff4d5e")
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(neon)
	stateStyle = lipgloss.NewStyle().Foreground(dim)
	lineStyles = map[lineKind]lipgloss.Style{
		lineInfo:    lipgloss.NewStyle().Foreground(dim),
		lineEcho:    lipgloss.NewStyle().Foreground(lipgloss.Color("#e6e9ee")),
		lineSuccess: lipgloss.NewStyle().Foreground(neon),
		lineWarn:    lipgloss.NewStyle().Foreground(amber),
		lineError:   lipgloss.NewStyle().Foreground(danger),
	}
	zeroStyle = lipgloss.NewStyle().Bold(true).Foreground(danger).Padding(1, 4).
			Border(lipgloss.DoubleBorder()).BorderForeground(danger)
)

type tickMsg time.Time

// Model is the bubbletea model.
type Model struct {
	c         Controllers
	keys      KeyMap
	input     textinput.Model
	lines     []line
	exportDir string

	width, height int

	// Last observed controller state, used to announce transitions that
	// happen on timers.
	vaultState vault.State
	zero       lockdown.ZeroState
	remaining  int
	scratch    vault.ScratchpadState
}

// New returns a terminal over c. Exports are written to exportDir.
func New(c Controllers, exportDir string) Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = "/scan, /vault, /wipe, /status, /clear"
	in.CharLimit = 4096
	in.Focus()

	m := Model{c: c, keys: DefaultKeyMap, input: in, exportDir: exportDir}
	m.observe()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = max(10, msg.Width-len(prompt)-1)
		return m, nil

	case tickMsg:
		m.append(m.observe()...)
		return m, tick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Panic):
			m.c.Lockdown.Panic()
			return m, nil
		case key.Matches(msg, m.keys.Restore):
			m.c.Lockdown.Reset()
			return m, nil
		}

		if m.c.Lockdown.Panicked() {
			// The decoy ignores typing.
			return m, nil
		}
		// Any keystroke counts as interaction with an unlocked vault.
		_ = m.c.Session.Touch()

		if key.Matches(msg, m.keys.Submit) {
			value := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if value == "" {
				return m, nil
			}
			m.append(line{lineEcho, prompt + value})
			m.append(m.Execute(value)...)
			m.observe()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// observe records controller state and returns lines announcing
// changes since the last call.
func (m *Model) observe() []line {
	var out []line

	st := m.c.Session.State()
	if st != m.vaultState {
		switch {
		case st == vault.StateUnlocked:
			out = append(out, success("access granted"))
		case st == vault.StateLocked && m.vaultState == vault.StateUnlocked:
			out = append(out, info("vault locked"))
		}
		m.vaultState = st
	}

	ls := m.c.Lockdown.Status()
	if ls.ProtocolZero == lockdown.ZeroDone && m.zero != lockdown.ZeroDone {
		out = append(out, failure("PROTOCOL ZERO complete. All local data destroyed."))
	}
	m.zero, m.remaining = ls.ProtocolZero, ls.Remaining

	sp := m.c.Scratchpad.State()
	if sp.Output == vault.Deleted && m.scratch.Output != vault.Deleted {
		out = append(out, warn(vault.Deleted))
	}
	m.scratch = sp

	return out
}

func (m *Model) append(ls ...line) {
	m.lines = append(m.lines, ls...)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
}

func (m Model) View() string {
	if m.c.Lockdown.Panicked() {
		return decoyView()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("STEALTH TERMINAL"))
	b.WriteString("  ")
	b.WriteString(stateStyle.Render(m.header()))
	b.WriteString("\n\n")

	if m.zero == lockdown.ZeroCountingDown {
		b.WriteString(zeroStyle.Render(fmt.Sprintf("PROTOCOL ZERO  %d", m.remaining)))
		b.WriteString("\n\n")
	}

	body := m.visibleLines()
	if len(body) == 0 {
		b.WriteString(lineStyles[lineInfo].Render(readyMessage))
		b.WriteString("\n")
	}
	for _, l := range body {
		b.WriteString(lineStyles[l.kind].Render(l.text))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m Model) header() string {
	parts := []string{"vault " + m.vaultState.String()}
	if m.scratch.Countdown > 0 {
		parts = append(parts, fmt.Sprintf("burn in %ds", m.scratch.Countdown))
	}
	if m.c.Mixer.Muted() {
		parts = append(parts, "muted")
	}
	return strings.Join(parts, " · ")
}

// visibleLines trims the scrollback to the terminal height, leaving
// room for the header and prompt.
func (m Model) visibleLines() []line {
	if m.height <= 0 {
		return m.lines
	}
	room := m.height - 5
	if m.zero == lockdown.ZeroCountingDown {
		room -= 6
	}
	if room < 1 {
		room = 1
	}
	if len(m.lines) > room {
		return m.lines[len(m.lines)-room:]
	}
	return m.lines
}

func decoyView() string {
	results := []struct{ title, url, desc string }{
		{"Wirtschaftswachstum 2026: Prognose und Analyse", "bundesregierung.de", "Offizielle Schätzung des BIP-Wachstums für 2026 ..."},
		{"Wirtschaftswachstum Deutschland 2026 – Statistisches Bundesamt", "destatis.de", "Aktuelle Daten und Indikatoren zum Bruttoinlandsprodukt ..."},
		{"OECD-Prognose: Wirtschaftswachstum 2026 weltweit", "oecd.org", "Wachstumsprognosen für die G20-Staaten ..."},
		{"Wirtschaftswachstum 2026: Was Experten erwarten", "handelsblatt.com", "Konjunkturprognosen und Szenarien für das Jahr 2026 ..."},
	}

	blue := lipgloss.NewStyle().Foreground(lipgloss.Color("#1d4ed8"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("#15803d"))
	grey := lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	var b strings.Builder
	b.WriteString("Google  [ Wirtschaftswachstum 2026 ]\n\n")
	b.WriteString(grey.Render("Ungefähr 127.000.000 Ergebnisse (0,42 Sekunden)"))
	b.WriteString("\n\n")
	for _, r := range results {
		b.WriteString(blue.Render(r.title) + "\n")
		b.WriteString(green.Render(r.url+" › ...") + "\n")
		b.WriteString(grey.Render(r.desc) + "\n\n")
	}
	return b.String()
}

// Run starts the terminal on the current tty and blocks until it exits.
func Run(c Controllers, exportDir string) error {
	p := tea.NewProgram(New(c, exportDir), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
