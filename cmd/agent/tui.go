package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vinayprograms/taskforce/internal/executor"
)

// maxTUILines is how many progress lines the live view keeps.
const maxTUILines = 12

type taskEventMsg struct {
	taskID string
	ev     executor.Event
}

type taskDoneMsg struct {
	res *executor.TaskResult
	err error
}

// tuiModel shows the state of one running task.
type tuiModel struct {
	task    string
	spinner spinner.Model
	cancel  context.CancelFunc
	started time.Time

	state      string
	iteration  int
	maxIter    int
	lines      []string
	cancelling bool

	done bool
	res  *executor.TaskResult
	err  error
}

func newTUIModel(task string, cancel context.CancelFunc) *tuiModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = phaseStyle
	return &tuiModel{
		task:    task,
		spinner: s,
		cancel:  cancel,
		started: time.Now(),
		state:   "starting",
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// The task reports cancellation through taskDoneMsg.
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil

	case taskEventMsg:
		m.observe(msg.ev)
		return m, nil

	case taskDoneMsg:
		m.done = true
		m.res, m.err = msg.res, msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *tuiModel) observe(ev executor.Event) {
	switch ev.Type {
	case executor.EventPhaseEntered:
		m.state = ev.String("state")
		return
	case executor.EventIterationStarted:
		m.iteration = ev.Int("iteration")
		m.maxIter = ev.Int("max_iterations")
		return
	}
	if line := progressLine(ev); line != "" {
		m.lines = append(m.lines, line)
		if len(m.lines) > maxTUILines {
			m.lines = m.lines[len(m.lines)-maxTUILines:]
		}
	}
}

func (m *tuiModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Task: ") + valueStyle.Render(oneLine(m.task, 70)) + "\n\n")

	status := m.spinner.View() + " " + phaseStyle.Render(m.state)
	if m.maxIter > 0 {
		status += labelStyle.Render(fmt.Sprintf("  iteration %d/%d", m.iteration, m.maxIter))
	}
	status += labelStyle.Render("  " + elapsed(time.Since(m.started)))
	if m.done {
		status = m.outcome()
	} else if m.cancelling {
		status += rejectStyle.Render("  cancelling...")
	}
	b.WriteString(status + "\n\n")

	for _, l := range m.lines {
		b.WriteString(l + "\n")
	}
	if !m.done {
		b.WriteString("\n" + labelStyle.Render("q: cancel") + "\n")
	}
	return b.String()
}

func (m *tuiModel) outcome() string {
	if m.res == nil {
		if m.err != nil {
			return errorStyle.Render("✗ " + m.err.Error())
		}
		return errorStyle.Render("✗ no result")
	}
	switch m.res.Status {
	case executor.StatusCompleted:
		return successStyle.Render(fmt.Sprintf("✓ completed in %s", elapsed(m.res.Duration)))
	default:
		return errorStyle.Render(fmt.Sprintf("✗ %s after %d iteration(s)", m.res.Status, m.res.Stats.Iterations))
	}
}

// runTUI runs the task behind the live view.
func (c *RunCmd) runTUI(ctx context.Context, rt *runtime, task string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tea.NewProgram(newTUIModel(task, cancel))
	rt.sinks = append(rt.sinks, executor.SinkFunc(func(taskID string, ev executor.Event) {
		prog.Send(taskEventMsg{taskID: taskID, ev: ev})
	}))
	if err := rt.setup("run"); err != nil {
		return err
	}
	rt.sess.Inputs["task"] = task

	done := make(chan taskDoneMsg, 1)
	go func() {
		res, err := rt.exec.Run(ctx, task)
		msg := taskDoneMsg{res: res, err: err}
		done <- msg
		prog.Send(msg)
	}()

	if _, err := prog.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: terminal view failed: %v\n", err)
		cancel()
	}
	out := <-done
	return c.report(rt, out.res, out.err, os.Stdout)
}
