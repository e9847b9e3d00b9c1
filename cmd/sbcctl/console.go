package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive dashboard: live object model plus a code input line",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(newConsoleModel())
		_, err := p.Run()
		return err
	},
}

type consoleLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type consoleModel struct {
	input textinput.Model

	snapshot   string
	log        []consoleLogEntry
	sub        chan tea.Msg
	width      int
	height     int
	quitting   bool
	connected  bool
}

type watchDocMsg json.RawMessage
type watchEndedMsg struct{ err error }
type codeResultMsg struct {
	reply string
	err   error
}

func newConsoleModel() consoleModel {
	ti := textinput.New()
	ti.Placeholder = "G28"
	ti.Focus()
	ti.CharLimit = 200
	ti.Width = 60

	return consoleModel{
		input: ti,
		log:   make([]consoleLogEntry, 0),
		sub:   make(chan tea.Msg, 8),
		width: 100,
		height: 30,
	}
}

func (m consoleModel) Init() tea.Cmd {
	go runConsoleWatch(m.sub)
	return waitForConsole(m.sub)
}

// runConsoleWatch feeds m.sub for as long as the Subscribe connection
// lives, retrying after a short backoff if sbcd isn't reachable yet.
func runConsoleWatch(sub chan tea.Msg) {
	for {
		err := runWatch(false, nil, func(doc json.RawMessage) {
			sub <- watchDocMsg(doc)
		})
		sub <- watchEndedMsg{err: err}
		time.Sleep(2 * time.Second)
	}
}

func waitForConsole(sub chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-sub }
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			code := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if code == "" {
				return m, nil
			}
			return m, submitConsoleCode(code)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case watchDocMsg:
		m.connected = true
		m.snapshot = summarizeDocument(json.RawMessage(msg))
		return m, waitForConsole(m.sub)

	case watchEndedMsg:
		m.connected = false
		if msg.err != nil {
			m.addLog(fmt.Sprintf("watch connection ended: %v", msg.err), true)
		}
		return m, waitForConsole(m.sub)

	case codeResultMsg:
		if msg.err != nil {
			m.addLog(fmt.Sprintf("error: %v", msg.err), true)
		} else {
			m.addLog(msg.reply, false)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *consoleModel) addLog(message string, isError bool) {
	m.log = append(m.log, consoleLogEntry{timestamp: time.Now(), message: message, isError: isError})
	const maxEntries = 50
	if len(m.log) > maxEntries {
		m.log = m.log[len(m.log)-maxEntries:]
	}
}

func submitConsoleCode(code string) tea.Cmd {
	return func() tea.Msg {
		reply, err := sendConsoleCode(code)
		return codeResultMsg{reply: reply, err: err}
	}
}

func sendConsoleCode(code string) (string, error) {
	c, err := dialCommand()
	if err != nil {
		return "", err
	}
	defer c.Close()

	if err := c.writeFrame(struct {
		Command string `json:"Command"`
		Code    string `json:"Code"`
		Channel int    `json:"Channel"`
	}{Command: "Code", Code: code, Channel: 8}); err != nil {
		return "", err
	}

	raw, err := c.readFrame()
	if err != nil {
		return "", err
	}
	var probe struct{ Success bool }
	json.Unmarshal(raw, &probe)
	if !probe.Success {
		var e errorReply
		json.Unmarshal(raw, &e)
		return "", fmt.Errorf("%s: %s", e.Error.Type, e.Error.Message)
	}
	var ok successReply
	json.Unmarshal(raw, &ok)
	return string(ok.Result), nil
}

func summarizeDocument(doc json.RawMessage) string {
	var tree map[string]json.RawMessage
	if err := json.Unmarshal(doc, &tree); err != nil {
		return string(doc)
	}
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	out, _ := json.MarshalIndent(keys, "", "  ")
	return string(out)
}

func (m consoleModel) View() string {
	if m.quitting {
		return "bye\n"
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	boxStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	status := okStyle.Render("connected")
	if !m.connected {
		status = errorStyle.Render("disconnected")
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("SBCCTL CONSOLE"))
	s.WriteString(" " + status)
	s.WriteString("\n\n")

	modelBox := boxStyle.Width(m.width - 4).Render("OBJECT MODEL MODULES\n" + m.snapshot)
	s.WriteString(modelBox)
	s.WriteString("\n\n")

	var logBody strings.Builder
	start := 0
	if len(m.log) > 10 {
		start = len(m.log) - 10
	}
	for _, entry := range m.log[start:] {
		style := dimStyle
		if entry.isError {
			style = errorStyle
		}
		logBody.WriteString(fmt.Sprintf("%s %s\n", dimStyle.Render(entry.timestamp.Format("15:04:05")), style.Render(entry.message)))
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render("LOG\n" + logBody.String()))
	s.WriteString("\n\n")

	s.WriteString("> " + m.input.View())
	s.WriteString(dimStyle.Render("  (enter=submit, esc=quit)"))
	return s.String()
}
