package playback

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/lattice/pkg/index"
	"github.com/entrhq/lattice/pkg/restore"
)

// stepModel is the Bubble Tea model for interactive playback: one block on
// screen, enter/space to advance, b to go back, c to copy, q to quit.
type stepModel struct {
	session *restore.Session
	entry   index.Entry

	viewport viewport.Model
	status   string
	width    int
	height   int
	ready    bool
}

func newStepModel(session *restore.Session, entry index.Entry) *stepModel {
	return &stepModel{session: session, entry: entry}
}

func (m *stepModel) Init() tea.Cmd {
	return nil
}

func (m *stepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		chromeHeight := 4
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
			m.ready = true
			m.refresh()
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chromeHeight
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit

		case "enter", " ", "n":
			_, err := m.session.Next()
			switch {
			case errors.Is(err, restore.ErrEnd):
				m.status = "end of conversation"
			case errors.Is(err, restore.ErrTruncated):
				m.status = errorStyle.Render(fmt.Sprintf("conversation truncated before a terminal marker: %v", err))
			case err != nil:
				m.status = errorStyle.Render(err.Error())
			default:
				m.status = ""
				m.refresh()
			}
			return m, nil

		case "b":
			if _, err := m.session.Back(); errors.Is(err, restore.ErrAtStart) {
				m.status = "already at first block"
			} else {
				m.status = ""
				m.refresh()
			}
			return m, nil

		case "c":
			if err := clipboard.WriteAll(RenderPlain(m.session.Current())); err != nil {
				m.status = errorStyle.Render("copy failed: " + err.Error())
			} else {
				m.status = "block copied to clipboard"
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *stepModel) View() string {
	if !m.ready {
		return "Loading..."
	}
	return m.buildHeader() + "\n" + m.viewport.View() + "\n" + m.buildFooter()
}

func (m *stepModel) refresh() {
	m.viewport.SetContent(renderStyled(m.session.Current()))
	m.viewport.GotoTop()
}

func (m *stepModel) buildHeader() string {
	title := m.entry.Title
	if title == "" {
		title = m.entry.Key
	}
	pos := fmt.Sprintf("block %d/%d", m.session.Position()+1, m.session.Fetched())
	if m.session.Done() {
		pos = fmt.Sprintf("block %d/%d (complete)", m.session.Position()+1, m.session.Fetched())
	}
	tokens := m.runningTokens()
	cur := m.session.Current()
	info := pos
	if cur.Tokens > 0 || tokens > 0 {
		info = fmt.Sprintf("%s • ~%d tokens (%d so far)", pos, cur.Tokens, tokens)
	}
	return headerStyle.Render(title) + "  " + statusStyle.Render("from "+m.entry.Start.String()+" • "+info)
}

func (m *stepModel) buildFooter() string {
	help := helpStyle.Render("enter/space next • b back • c copy • q quit")
	if m.status == "" {
		return help
	}
	return help + "\n" + statusStyle.Render(m.status)
}

// runningTokens sums token counts up to and including the current block.
func (m *stepModel) runningTokens() int {
	total := 0
	for i, b := range m.session.Visited() {
		if i > m.session.Position() {
			break
		}
		total += b.Tokens
	}
	return total
}
