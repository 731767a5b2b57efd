// Package picker is the terminal chooser behind "juno pick".
package picker

import (
	"errors"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"pkt.systems/juno/schema"
)

// ErrCancelled reports that the user left the picker without a choice.
var ErrCancelled = errors.New("selection cancelled")

type row struct {
	source string
	rank   int
	score  int
}

type model struct {
	all       []row
	visible   []row
	query     textinput.Model
	table     table.Model
	selected  string
	cancelled bool
	width     int
	height    int
}

func newModel(sources []string) model {
	input := textinput.New()
	input.Placeholder = "filter, or type a path or URL"
	input.Prompt = "open> "
	input.Focus()

	tbl := table.New(
		table.WithColumns([]table.Column{
			{Title: "SOURCE", Width: 60},
			{Title: "KIND", Width: 8},
		}),
		table.WithRows(nil),
		table.WithFocused(true),
		table.WithHeight(16),
	)

	m := model{
		query: input,
		table: tbl,
		all:   make([]row, 0, len(sources)),
	}
	for i, source := range sources {
		m.all = append(m.all, row{source: source, rank: i})
	}
	m.applyFilter()
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "enter":
			idx := m.table.Cursor()
			if len(m.visible) > 0 && idx >= 0 && idx < len(m.visible) {
				m.selected = m.visible[idx].source
				return m, tea.Quit
			}
			// Nothing matches: the query itself is the resource.
			if typed := strings.TrimSpace(m.query.Value()); typed != "" {
				m.selected = typed
				return m, tea.Quit
			}
			return m, nil
		}
	}

	prev := m.query.Value()
	var inputCmd tea.Cmd
	m.query, inputCmd = m.query.Update(msg)
	if prev != m.query.Value() {
		m.applyFilter()
	}

	var tableCmd tea.Cmd
	m.table, tableCmd = m.table.Update(msg)
	return m, tea.Batch(inputCmd, tableCmd)
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString("juno\n")
	b.WriteString("enter: open  esc/ctrl-c: cancel  up/down: move\n\n")
	b.WriteString(m.query.View())
	b.WriteString("\n\n")
	if len(m.visible) == 0 {
		b.WriteString("No recent sources match; enter opens what you typed\n")
		return b.String()
	}
	b.WriteString(m.table.View())
	return b.String()
}

func (m *model) resize() {
	if m.width <= 0 {
		return
	}
	sourceW := m.width - 14
	if sourceW < 20 {
		sourceW = 20
	}
	cols := m.table.Columns()
	if len(cols) == 2 {
		cols[0].Width = sourceW
		m.table.SetColumns(cols)
	}
	tableHeight := m.height - 7
	if tableHeight < 5 {
		tableHeight = 5
	}
	m.table.SetHeight(tableHeight)
}

func (m *model) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.query.Value()))
	rows := make([]row, 0, len(m.all))
	for _, r := range m.all {
		score, ok := fuzzyScore(query, strings.ToLower(r.source))
		if !ok {
			continue
		}
		r.score = score
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].score == rows[j].score {
			return rows[i].rank < rows[j].rank
		}
		return rows[i].score > rows[j].score
	})

	m.visible = rows
	tableRows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		tableRows = append(tableRows, table.Row{trim(r.source, 200), kind(r.source)})
	}
	m.table.SetRows(tableRows)
	if len(tableRows) == 0 {
		m.table.SetCursor(0)
		return
	}
	if m.table.Cursor() >= len(tableRows) {
		m.table.SetCursor(len(tableRows) - 1)
	}
}

func kind(source string) string {
	if schema.IsRemoteResource(source) {
		return "remote"
	}
	return "local"
}

func fuzzyScore(query, target string) (int, bool) {
	if query == "" {
		return 1, true
	}
	qi := 0
	score := 0
	streak := 0
	for i := 0; i < len(target) && qi < len(query); i++ {
		if target[i] == query[qi] {
			score += 10 + streak*3
			streak++
			qi++
		} else {
			streak = 0
		}
	}
	if qi != len(query) {
		return 0, false
	}
	return score, true
}

func trim(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// Choose runs the picker over sources (most recent first) and returns the
// chosen or typed resource.
func Choose(sources []string, opts ...tea.ProgramOption) (string, error) {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	p := tea.NewProgram(newModel(sources), opts...)
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	result, ok := final.(model)
	if !ok {
		return "", errors.New("unexpected picker model type")
	}
	if result.cancelled || strings.TrimSpace(result.selected) == "" {
		return "", ErrCancelled
	}
	return result.selected, nil
}
