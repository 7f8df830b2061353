package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	modeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [hex]",
	Short: "Interactively decode and encode wire buffers",
	Long: `Open an interactive view with a type field and a value field.

In decode mode the value is hex and the decoded JSON updates as you type.
In encode mode the value is JSON and the encoded hex is shown instead.
When stdout is not a terminal, inspect behaves like decode.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, ok := cmd.OutOrStdout().(*os.File)
		if !ok || !term.IsTerminal(int(out.Fd())) {
			return decodeCmd.RunE(cmd, args)
		}
		initial := ""
		if len(args) == 1 {
			initial = args[0]
		}
		p := tea.NewProgram(newInspectModel(typeExpr, initial), tea.WithAltScreen(), tea.WithOutput(out))
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

type inspectMode int

const (
	modeDecode inspectMode = iota
	modeEncode
)

func (m inspectMode) String() string {
	if m == modeEncode {
		return "encode"
	}
	return "decode"
}

type inspectModel struct {
	err      error
	result   string
	inputs   []textinput.Model
	focusIdx int
	mode     inspectMode
}

const (
	fieldType = iota
	fieldValue
)

func newInspectModel(expr, value string) *inspectModel {
	typeInput := textinput.New()
	typeInput.Prompt = "type:  "
	typeInput.Placeholder = "record<id: u64, name: string>"
	typeInput.SetValue(expr)
	typeInput.Width = 60
	typeInput.Focus()

	valueInput := textinput.New()
	valueInput.Prompt = "value: "
	valueInput.Placeholder = "hex bytes"
	valueInput.SetValue(value)
	valueInput.Width = 60

	m := &inspectModel{inputs: []textinput.Model{typeInput, valueInput}}
	m.evaluate()
	return m
}

func (m *inspectModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "shift+tab", "up", "down":
			m.inputs[m.focusIdx].Blur()
			m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
			return m, m.inputs[m.focusIdx].Focus()
		case "ctrl+e":
			m.toggleMode()
			m.evaluate()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
	m.evaluate()
	return m, cmd
}

func (m *inspectModel) toggleMode() {
	if m.mode == modeDecode {
		m.mode = modeEncode
		m.inputs[fieldValue].Placeholder = "json value"
	} else {
		m.mode = modeDecode
		m.inputs[fieldValue].Placeholder = "hex bytes"
	}
}

// evaluate recomputes the result from the current field values.
func (m *inspectModel) evaluate() {
	m.err, m.result = nil, ""
	expr := strings.TrimSpace(m.inputs[fieldType].Value())
	value := strings.TrimSpace(m.inputs[fieldValue].Value())
	if expr == "" || value == "" {
		return
	}
	if m.mode == modeEncode {
		m.result, m.err = encodeJSON(expr, value)
	} else {
		m.result, m.err = decodeHex(expr, value)
	}
}

func (m *inspectModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wirecat"))
	b.WriteString(" ")
	b.WriteString(modeStyle.Render(m.mode.String()))
	b.WriteString("\n\n")

	for _, input := range m.inputs {
		b.WriteString(input.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.result != "":
		b.WriteString(typeStyle.Render(m.inputs[fieldType].Value()))
		b.WriteString("\n")
		b.WriteString(resultStyle.Render(m.result))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("tab switch field • ctrl+e toggle mode • esc quit"))

	return b.String()
}
