package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/taskforce/internal/session"
)

// MultiReplayer replays several session files as one timeline, oldest first.
type MultiReplayer struct {
	output    io.Writer
	verbosity int
	opts      []ReplayerOption
}

// NewMulti creates a new MultiReplayer. opts apply to every session.
func NewMulti(output io.Writer, verbosity int, opts ...ReplayerOption) *MultiReplayer {
	return &MultiReplayer{
		output:    output,
		verbosity: verbosity,
		opts:      opts,
	}
}

// sessionInfo holds parsed session with source info.
type sessionInfo struct {
	Session *session.Session
	Source  string
	Name    string
}

// ReplayFiles outputs multiple sessions to the writer.
func (m *MultiReplayer) ReplayFiles(paths []string) error {
	sessions, err := m.loadSessions(paths)
	if err != nil {
		return err
	}
	return m.replayAll(m.output, sessions)
}

// ReplayFilesInteractive shows multiple sessions in the interactive pager.
func (m *MultiReplayer) ReplayFilesInteractive(paths []string) error {
	sessions, err := m.loadSessions(paths)
	if err != nil {
		return err
	}

	var buf strings.Builder
	if err := m.replayAll(&buf, sessions); err != nil {
		return err
	}

	title := fmt.Sprintf("%d session(s)", len(sessions))
	if len(sessions) == 1 {
		title = sessions[0].Name
	}
	return NewPager(title).Run(buf.String())
}

func (m *MultiReplayer) loadSessions(paths []string) ([]sessionInfo, error) {
	r := New(m.output, m.verbosity, m.opts...)

	var sessions []sessionInfo
	for _, path := range paths {
		sess, err := r.loadSession(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		sessions = append(sessions, sessionInfo{
			Session: sess,
			Source:  path,
			Name:    sessionName(sess, path),
		})
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Session.CreatedAt.Before(sessions[j].Session.CreatedAt)
	})
	return sessions, nil
}

// sessionName is the session's name, or its file name without extension.
func sessionName(sess *session.Session, path string) string {
	if sess.Name != "" {
		return sess.Name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (m *MultiReplayer) replayAll(w io.Writer, sessions []sessionInfo) error {
	r := New(w, m.verbosity, m.opts...)

	for i, info := range sessions {
		if len(sessions) > 1 {
			printSessionHeader(w, info, i+1, len(sessions))
		}
		if err := r.Replay(info.Session); err != nil {
			return fmt.Errorf("failed to replay %s: %w", info.Source, err)
		}
		if i < len(sessions)-1 {
			fmt.Fprintln(w)
		}
	}
	return nil
}

var (
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("6"))

	sessionDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("6"))
)

func printSessionHeader(w io.Writer, info sessionInfo, num, total int) {
	shortID := info.Session.ID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}

	header := fmt.Sprintf(" [%d/%d] %s │ %s │ %s ",
		num, total,
		info.Name,
		shortID,
		info.Session.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Fprintln(w)
	fmt.Fprintln(w, sessionDividerStyle.Render(strings.Repeat("━", 70)))
	fmt.Fprintln(w, sessionHeaderStyle.Render(header))
	fmt.Fprintln(w, sessionDividerStyle.Render(strings.Repeat("━", 70)))
}
