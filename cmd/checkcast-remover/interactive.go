package main

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/rewrite"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#666666")).
			Padding(0, 1)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateReview modelState = iota
	stateWriting
	stateWritten
	stateDiscarded
)

type reviewModel struct {
	err      error
	report   *rewrite.Report
	filename string
	data     []byte
	perm     fs.FileMode
	view     viewport.Model
	selected int
	state    modelState
	ready    bool
}

type writtenMsg struct {
	err error
}

func newReviewModel(filename string, data []byte, perm fs.FileMode, report *rewrite.Report) *reviewModel {
	return &reviewModel{
		filename: filename,
		data:     data,
		perm:     perm,
		report:   report,
		state:    stateReview,
	}
}

func (m *reviewModel) Init() tea.Cmd {
	return nil
}

func (m *reviewModel) write() tea.Msg {
	return writtenMsg{err: rewrite.WriteFile(m.filename, m.data, m.perm)}
}

func (m *reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state != stateReview {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.state = stateDiscarded
			return m, tea.Quit

		case "w":
			m.state = stateWriting
			return m, m.write

		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.refresh()
			}
			return m, nil

		case "down", "j":
			if m.selected < len(m.report.Methods)-1 {
				m.selected++
				m.refresh()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		height := msg.Height - len(m.report.Methods) - 6
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.view = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.view.Width, m.view.Height = msg.Width, height
		}
		m.refresh()
		return m, nil

	case writtenMsg:
		m.err = msg.err
		m.state = stateWritten
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

// refresh renders the selected method's bytecode before and after.
func (m *reviewModel) refresh() {
	if !m.ready || len(m.report.Methods) == 0 {
		return
	}
	method := m.report.Methods[m.selected]
	before := disassemble(method.Before, m.report.Pool)
	after := disassemble(method.After, m.report.Pool)
	m.view.SetContent(lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Render("before\n\n"+before),
		paneStyle.Render("after\n\n"+after)))
	m.view.GotoTop()
}

func disassemble(code []byte, pool *classfile.ConstantPool) string {
	s, err := classfile.Disassemble(code, pool)
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	return strings.TrimRight(s, "\n")
}

func (m *reviewModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("CHECKCAST review"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateWriting:
		b.WriteString("Writing...")
		return b.String()
	case stateWritten:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render("Written."))
		}
		b.WriteString("\n")
		return b.String()
	case stateDiscarded:
		b.WriteString("Discarded.\n")
		return b.String()
	}

	if len(m.report.Methods) == 0 {
		b.WriteString("No duplicated CHECKCAST instructions.\n\n")
		b.WriteString(helpStyle.Render("w write • q quit"))
		return b.String()
	}

	for i, method := range m.report.Methods {
		line := fmt.Sprintf("%s%s (%d removed)", method.Name, method.Descriptor, method.Removed)
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if m.ready {
		b.WriteString(m.view.View())
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("↑/↓ select • pgup/pgdn scroll • w write • q discard"))
	return b.String()
}

// review rewrites path in memory and lets the user decide whether to write
// the result. A discarded review returns a nil report.
func review(path string, opts []rewrite.Option) (*rewrite.Report, error) {
	data, perm, err := rewrite.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, report, err := rewrite.Bytes(data, opts...)
	if err != nil {
		return nil, err
	}

	p := tea.NewProgram(newReviewModel(path, out, perm, report), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m := final.(*reviewModel)
	if m.state != stateWritten {
		return nil, nil
	}
	if m.err != nil {
		return nil, m.err
	}
	return report, nil
}
