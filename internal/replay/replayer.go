// Package replay renders session logs as a timeline for forensic analysis.
package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vinayprograms/taskforce/internal/session"
)

// Replayer reads and formats session events.
type Replayer struct {
	output         io.Writer
	verbosity      int        // 0=normal, 1=verbose (-v), 2=very verbose (-vv)
	maxContentSize int        // Maximum size for Content fields (0 = unlimited)
	prices         PriceTable // Optional pricing for cost calculation
}

// ReplayerOption configures a Replayer.
type ReplayerOption func(*Replayer)

// WithMaxContentSize limits Content field size to avoid OOM on large sessions.
func WithMaxContentSize(size int) ReplayerOption {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// WithModelPricing enables cost calculation for model. Use "*" for any
// model without its own price.
func WithModelPricing(model string, p Pricing) ReplayerOption {
	return func(r *Replayer) {
		if r.prices == nil {
			r.prices = make(PriceTable)
		}
		r.prices[model] = p
	}
}

// New creates a new Replayer.
func New(output io.Writer, verbosity int, opts ...ReplayerOption) *Replayer {
	r := &Replayer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 50 * 1024, // Default: 50KB per content field
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads and replays a session from a file.
func (r *Replayer) ReplayFile(path string) error {
	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}
	return r.Replay(sess)
}

// ReplayFileInteractive loads and replays with interactive pager.
func (r *Replayer) ReplayFileInteractive(path string) error {
	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}
	content, err := r.render(sess)
	if err != nil {
		return err
	}
	p := NewPager(fmt.Sprintf("Session: %s", sess.ID))
	return p.Run(content)
}

// ReplayFileLive shows the session in the pager and re-renders it every
// time the file changes.
func (r *Replayer) ReplayFileLive(path string) error {
	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}
	renderFunc := func() (string, error) {
		sess, err := r.loadSession(path)
		if err != nil {
			return "", err
		}
		return r.render(sess)
	}
	p := NewPager(fmt.Sprintf("Session: %s (LIVE)", sess.ID))
	return p.RunLive(path, renderFunc)
}

// render replays into a string instead of the output writer.
func (r *Replayer) render(sess *session.Session) (string, error) {
	var buf strings.Builder
	out := r.output
	r.output = &buf
	defer func() { r.output = out }()
	if err := r.Replay(sess); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Replay outputs a formatted timeline of session events.
func (r *Replayer) Replay(sess *session.Session) error {
	r.printHeader(sess)
	r.printTimeline(sess)
	r.printSummary(sess)
	return nil
}

func (r *Replayer) printHeader(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("SESSION"), valueStyle.Render(sess.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Name:    "), valueStyle.Render(sess.Name))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status:  "), r.statusStyle(sess.Status).Render(sess.Status))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created: "), valueStyle.Render(sess.CreatedAt.Format(time.RFC3339)))
	if len(sess.Inputs) > 0 {
		fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Inputs:  "), valueStyle.Render(formatMap(sess.Inputs)))
	}
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(sess *session.Session) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(sess.Events))))
	fmt.Fprintln(r.output, divider)

	var lastTask string
	for i := range sess.Events {
		r.formatEvent(i+1, &sess.Events[i], &lastTask)
	}
}

func (r *Replayer) printSummary(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)

	switch sess.Status {
	case session.StatusComplete:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
		if sess.Result != "" {
			fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Result:"), valueStyle.Render(truncateContent(sess.Result, 200)))
		}
	case session.StatusFailed, session.StatusTimeout, session.StatusCancelled:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render(strings.ToUpper(sess.Status)+":"), valueStyle.Render(sess.Error))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}

	stats := ComputeStats(sess)
	PrintStats(r.output, stats)
	PrintTokenUsage(r.output, stats, r.prices)
}
