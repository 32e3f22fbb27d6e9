package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/definium/defsearch/internal/index"
	"github.com/definium/defsearch/internal/query"
)

// responseMsg carries a settled orchestrator response into the program.
type responseMsg query.Response

// SearchTUI is an interactive search prompt. Keystrokes feed the
// orchestrator, which debounces and publishes back into the program,
// so the index is only hit once typing goes quiet.
type SearchTUI struct {
	orchestrator *query.Orchestrator
	base         query.Request
	program      *tea.Program
}

// NewSearchTUI creates an interactive search session. base carries the
// fixed filters (type, category, advanced keywords) applied to every
// submission.
func NewSearchTUI(orchestrator *query.Orchestrator, base query.Request) *SearchTUI {
	return &SearchTUI{orchestrator: orchestrator, base: base}
}

// Run blocks until the user quits.
func (s *SearchTUI) Run() error {
	model := newSearchModel(s.orchestrator, s.base)
	s.program = tea.NewProgram(model, tea.WithAltScreen())

	_, err := s.program.Run()
	return err
}

type searchModel struct {
	orchestrator *query.Orchestrator
	base         query.Request

	input     textinput.Model
	styles    Styles
	results   []*index.Result
	searchErr error
	lastSeq   uint64
	width     int
	height    int
}

func newSearchModel(orchestrator *query.Orchestrator, base query.Request) *searchModel {
	input := textinput.New()
	input.Placeholder = "type to search definitions"
	input.Prompt = "search> "
	input.Focus()

	styles := DefaultStyles()
	if DetectNoColor() {
		styles = NoColorStyles()
	}

	return &searchModel{
		orchestrator: orchestrator,
		base:         base,
		input:        input,
		styles:       styles,
	}
}

func (m *searchModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		}

		before := m.input.Value()
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		if m.input.Value() != before {
			m.submit()
		}
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case responseMsg:
		// The orchestrator already drops superseded responses; the seq
		// check here only guards against reordered program messages.
		if msg.Seq < m.lastSeq {
			return m, nil
		}
		m.lastSeq = msg.Seq
		m.results = msg.Results
		m.searchErr = msg.Err
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit registers the current input with the debouncing orchestrator.
func (m *searchModel) submit() {
	req := m.base
	req.Query = m.input.Value()
	m.orchestrator.Submit(req)
}

func (m *searchModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Prompt.Render(m.input.View()))
	b.WriteString("\n\n")

	switch {
	case m.searchErr != nil:
		b.WriteString(m.styles.Error.Render(fmt.Sprintf("error: %v", m.searchErr)))
		b.WriteString("\n")
	case len(m.results) == 0 && len([]rune(strings.TrimSpace(m.input.Value()))) >= 2:
		b.WriteString(m.styles.Dim.Render("no results"))
		b.WriteString("\n")
	default:
		m.renderResults(&b)
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Dim.Render("esc to quit"))
	return b.String()
}

func (m *searchModel) renderResults(b *strings.Builder) {
	max := len(m.results)
	if m.height > 0 {
		// Three lines per result plus prompt and footer chrome.
		if visible := (m.height - 5) / 3; visible > 0 && visible < max {
			max = visible
		}
	}

	for i, res := range m.results[:max] {
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			m.styles.Dim.Render(fmt.Sprintf("%2d.", i+1)),
			m.styles.Name.Render(res.Definition.Name),
			m.styles.Category.Render(res.Definition.CategoryID)))

		for _, match := range res.Matches {
			position := ""
			if match.LineNumber > 0 {
				position = fmt.Sprintf("%d:%d ", match.LineNumber, match.Column)
			}
			snippet := strings.ReplaceAll(match.Snippet, "\n", " ")
			b.WriteString(fmt.Sprintf("    %s%s\n",
				m.styles.Position.Render(position),
				m.styles.Snippet.Render(snippet)))
		}
		b.WriteString("\n")
	}

	if max < len(m.results) {
		b.WriteString(m.styles.Dim.Render(
			fmt.Sprintf("… %d more", len(m.results)-max)))
		b.WriteString("\n")
	}
}

// Forward is the publish hook wiring the orchestrator to the program.
func (s *SearchTUI) Forward(resp query.Response) {
	if s.program != nil {
		s.program.Send(responseMsg(resp))
	}
}
