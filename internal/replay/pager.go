package replay

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/wordwrap"
)

// Pager is an interactive terminal pager for rendered sessions.
type Pager struct {
	title string
}

var (
	pagerTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	pagerInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// NewPager creates a pager with the given title.
func NewPager(title string) *Pager {
	return &Pager{title: title}
}

// Run shows content until the user quits.
func (p *Pager) Run(content string) error {
	prog := tea.NewProgram(
		&pagerModel{title: p.title, content: content},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := prog.Run()
	return err
}

// RunLive shows renderFunc's output and re-renders whenever the file at
// path is written.
func (p *Pager) RunLive(path string, renderFunc func() (string, error)) error {
	content, err := renderFunc()
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	// Session logs are replaced by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	prog := tea.NewProgram(
		&pagerModel{
			title:      p.title,
			content:    content,
			live:       true,
			path:       path,
			renderFunc: renderFunc,
			watcher:    watcher,
		},
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = prog.Run()
	return err
}

// fileChangedMsg is sent when the watched file changes.
type fileChangedMsg struct{}

type pagerModel struct {
	viewport       viewport.Model
	title          string
	content        string
	wrappedContent string // what is displayed, searched line by line
	ready          bool

	live       bool
	path       string
	renderFunc func() (string, error)
	watcher    *fsnotify.Watcher

	searching   bool
	searchInput textinput.Model
	searchQuery string
	searchLines []int
	searchIndex int
	notFound    bool
}

func (m *pagerModel) Init() tea.Cmd {
	if m.live && m.watcher != nil {
		return m.watchFile()
	}
	return nil
}

// watchFile waits for the next write to the session file.
func (m *pagerModel) watchFile() tea.Cmd {
	target := filepath.Clean(m.path)
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					// Let the writer finish.
					time.Sleep(100 * time.Millisecond)
					return fileChangedMsg{}
				}
			case _, ok := <-m.watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	if m.searching {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "enter":
				m.searchQuery = m.searchInput.Value()
				m.searching = false
				m.executeSearch()
				m.jumpToMatch(0)
				return m, nil
			case "esc", "ctrl+c":
				m.searching = false
				m.clearSearch()
				return m, nil
			}
		}
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	switch msg := msg.(type) {
	case fileChangedMsg:
		if newContent, err := m.renderFunc(); err == nil {
			offset := m.viewport.YOffset
			m.setContent(newContent)
			m.viewport.SetYOffset(offset)
		}
		cmds = append(cmds, m.watchFile())

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.searchQuery == "" {
				return m, tea.Quit
			}
			m.clearSearch()
		case "g":
			m.viewport.GotoTop()
		case "G", "f":
			m.viewport.GotoBottom()
		case "/":
			m.searching = true
			m.searchInput = textinput.New()
			m.searchInput.Placeholder = "Search..."
			m.searchInput.CharLimit = 100
			m.searchInput.Width = 40
			m.searchInput.SetValue(m.searchQuery)
			m.searchInput.Focus()
			return m, textinput.Blink
		case "n":
			if len(m.searchLines) > 0 {
				m.jumpToMatch((m.searchIndex + 1) % len(m.searchLines))
			}
		case "N":
			if len(m.searchLines) > 0 {
				m.jumpToMatch((m.searchIndex - 1 + len(m.searchLines)) % len(m.searchLines))
			}
		}

	case tea.WindowSizeMsg:
		height := msg.Height - 2 // header and footer
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = 1
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.setContent(m.content)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *pagerModel) setContent(content string) {
	m.content = content
	m.wrappedContent = wrapContent(content, m.viewport.Width)
	m.viewport.SetContent(m.wrappedContent)
	if m.searchQuery != "" {
		m.executeSearch()
	}
}

func (m *pagerModel) clearSearch() {
	m.searchQuery = ""
	m.searchLines = nil
	m.notFound = false
}

// executeSearch finds the displayed lines containing the query.
func (m *pagerModel) executeSearch() {
	m.searchLines = nil
	m.searchIndex = 0
	m.notFound = false
	if m.searchQuery == "" {
		return
	}
	query := strings.ToLower(m.searchQuery)
	for i, line := range strings.Split(m.wrappedContent, "\n") {
		if strings.Contains(strings.ToLower(line), query) {
			m.searchLines = append(m.searchLines, i)
		}
	}
	m.notFound = len(m.searchLines) == 0
}

// jumpToMatch centers match index on screen.
func (m *pagerModel) jumpToMatch(index int) {
	if index < 0 || index >= len(m.searchLines) {
		return
	}
	m.searchIndex = index
	m.viewport.SetYOffset(m.searchLines[index] - m.viewport.Height/2)
}

func (m *pagerModel) View() string {
	if !m.ready {
		return "\n  Loading..."
	}

	title := pagerTitleStyle.Render(m.title)
	header := title + pagerInfoStyle.Render(strings.Repeat("─", max(0, m.viewport.Width-lipgloss.Width(title))))

	var footer string
	if m.searching {
		footer = warnStyle.Render("/") + m.searchInput.View()
	} else {
		var help string
		switch {
		case m.notFound:
			help = fmt.Sprintf(" %s │ /: search ", errorStyle.Render("Pattern not found"))
		case len(m.searchLines) > 0:
			help = fmt.Sprintf(" %s │ n/N: next/prev │ esc: clear ",
				warnStyle.Render(fmt.Sprintf("[%d/%d]", m.searchIndex+1, len(m.searchLines))))
		case m.live:
			help = fmt.Sprintf(" %s │ q: quit │ /: search │ f: follow │ g/G: top/bottom ",
				successStyle.Bold(true).Render("● LIVE"))
		default:
			help = " q: quit │ /: search │ n/N: next/prev │ g/G: top/bottom "
		}
		info := fmt.Sprintf(" %3.f%% ", m.viewport.ScrollPercent()*100)
		fill := max(0, m.viewport.Width-lipgloss.Width(help)-lipgloss.Width(info))
		footer = pagerInfoStyle.Render(help + strings.Repeat("─", fill) + info)
	}

	return header + "\n" + m.viewport.View() + "\n" + footer
}

// wrapContent wraps lines to width. Timeline rows ("seq │ time │ text")
// wrap their text column and indent continuations under it.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}

	var result []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			result = append(result, line)
			continue
		}

		if last := strings.LastIndex(line, "│"); last > 0 && last < len(line)-len("│") {
			start := last + len("│")
			for start < len(line) && line[start] == ' ' {
				start++
			}
			prefixWidth := lipgloss.Width(line[:start])
			textWidth := max(20, width-prefixWidth)
			wrapped := strings.Split(wordwrap.String(line[start:], textWidth), "\n")
			result = append(result, line[:start]+wrapped[0])
			indent := strings.Repeat(" ", prefixWidth)
			for _, w := range wrapped[1:] {
				result = append(result, indent+w)
			}
			continue
		}

		result = append(result, strings.Split(wordwrap.String(line, width), "\n")...)
	}
	return strings.Join(result, "\n")
}
