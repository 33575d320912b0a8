package protocol

import (
	"sort"
	"strings"
)

// CompletionMarker anywhere in a reply ends the task.
const CompletionMarker = "TASK_COMPLETED"

const reflectionHeader = "REFLECTION:"

// Reflection is the free-text self assessment that may follow the marker.
type Reflection struct {
	WhatWorked   string `json:"what_worked,omitempty"`
	Learned      string `json:"learned,omitempty"`
	Mistakes     string `json:"mistakes,omitempty"`
	Improvements string `json:"improvements,omitempty"`
}

// Empty reports whether no section was found.
func (r Reflection) Empty() bool {
	return r.WhatWorked == "" && r.Learned == "" && r.Mistakes == "" && r.Improvements == ""
}

// Completion is what a finished reply carries.
type Completion struct {
	Summary    string     `json:"summary"`
	Reflection Reflection `json:"reflection"`
}

// HasCompletion reports whether text contains the completion marker.
func HasCompletion(text string) bool {
	return strings.Contains(text, CompletionMarker)
}

// ParseCompletion extracts the summary and reflection from a finished reply.
// ok is false when the marker is absent.
func ParseCompletion(text string) (Completion, bool) {
	idx := strings.Index(text, CompletionMarker)
	if idx < 0 {
		return Completion{}, false
	}

	var c Completion

	// ACTION: TASK_COMPLETED with a SUMMARY field takes precedence.
	for _, a := range Parse(text) {
		if a.Kind == KindComplete {
			c.Summary = a.Field("SUMMARY")
			break
		}
	}

	if c.Summary == "" {
		rest := text[idx+len(CompletionMarker):]
		rest = strings.TrimLeft(rest, " \t")
		rest = strings.TrimPrefix(rest, ":")
		if end := indexFold(rest, reflectionHeader); end >= 0 {
			rest = rest[:end]
		}
		c.Summary = cleanSection(rest)
	}

	if start := indexFold(text, reflectionHeader); start >= 0 {
		c.Reflection = parseReflection(text[start+len(reflectionHeader):])
	}
	return c, true
}

var reflectionLabels = []string{
	"what worked:",
	"what i learned:",
	"mistakes made:",
	"improvements:",
}

// parseReflection splits a reflection section on its case-insensitive labels.
// Each value runs to the next label or the end of the section.
func parseReflection(section string) Reflection {
	type hit struct {
		label int
		start int
	}
	var hits []hit
	for i, label := range reflectionLabels {
		if pos := indexFold(section, label); pos >= 0 {
			hits = append(hits, hit{label: i, start: pos})
		}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].start < hits[b].start })

	values := make([]string, len(reflectionLabels))
	for i, h := range hits {
		end := len(section)
		if i+1 < len(hits) {
			end = hits[i+1].start
		}
		values[h.label] = cleanSection(section[h.start+len(reflectionLabels[h.label]) : end])
	}

	return Reflection{
		WhatWorked:   values[0],
		Learned:      values[1],
		Mistakes:     values[2],
		Improvements: values[3],
	}
}

// cleanSection trims whitespace, a trailing sentinel and dangling bullet markers.
func cleanSection(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, Sentinel)
	s = strings.TrimRight(s, " \t\n-*")
	s = strings.TrimLeft(s, " \t\n")
	return s
}

// indexFold is strings.Index ignoring ASCII case.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}
