package playback

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/lattice/pkg/index"
)

// ErrNoSelection is returned when the user dismisses the disambiguation list
// without choosing a conversation.
var ErrNoSelection = errors.New("playback: no conversation selected")

type pickItem struct {
	entry index.Entry
}

func (i pickItem) Title() string {
	if i.entry.Title != "" {
		return i.entry.Title
	}
	return i.entry.Key
}

func (i pickItem) Description() string {
	return fmt.Sprintf("%s • from %s", i.entry.Key, i.entry.Start)
}

func (i pickItem) FilterValue() string {
	return i.entry.Title + " " + i.entry.Key + " " + i.entry.ID
}

// pickerModel presents multiple lookup matches and records the selection.
// Number keys choose directly; enter picks the highlighted item.
type pickerModel struct {
	list   list.Model
	choice *index.Entry
}

func newPickerModel(entries []index.Entry) *pickerModel {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = pickItem{entry: e}
	}
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Multiple conversations match"
	l.SetShowStatusBar(false)
	l.Styles.Title = headerStyle
	return &pickerModel{list: l}
}

func (m *pickerModel) Init() tea.Cmd {
	return nil
}

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		// Let list filtering consume keys while active.
		if m.list.FilterState() == list.Filtering {
			break
		}
		s := msg.String()
		switch {
		case s == "q" || s == "esc" || s == "ctrl+c":
			return m, tea.Quit
		case s == "enter":
			if item, ok := m.list.SelectedItem().(pickItem); ok {
				m.choice = &item.entry
			}
			return m, tea.Quit
		case len(s) == 1 && s[0] >= '1' && s[0] <= '9':
			n := int(s[0] - '1')
			if n < len(m.list.Items()) {
				item := m.list.Items()[n].(pickItem)
				m.choice = &item.entry
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *pickerModel) View() string {
	return m.list.View()
}

// Choose runs the disambiguation list and returns the selected entry.
func Choose(entries []index.Entry) (index.Entry, error) {
	m := newPickerModel(entries)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return index.Entry{}, fmt.Errorf("playback: disambiguation failed: %w", err)
	}
	if m.choice == nil {
		return index.Entry{}, ErrNoSelection
	}
	return *m.choice, nil
}
