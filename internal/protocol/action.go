// Package protocol parses the ACTION block protocol that workers speak.
//
// A completion is free text containing zero or more blocks of the form
//
//	ACTION: NAME
//	FIELD: value
//	---END---
//
// The package turns that text into typed Actions. Parsing never fails:
// malformed blocks are dropped and reported as diagnostics.
package protocol

import "strings"

// Kind identifies an action. The set is closed.
type Kind string

const (
	KindCreateFile    Kind = "CREATE_FILE"
	KindReadFile      Kind = "READ_FILE"
	KindExecute       Kind = "EXECUTE"
	KindListFiles     Kind = "LIST_FILES"
	KindUpdateTodo    Kind = "UPDATE_TODO"
	KindVerify        Kind = "VERIFY"
	KindBrowser       Kind = "BROWSER"
	KindSearchWeb     Kind = "SEARCH_WEB"
	KindThink         Kind = "THINK"
	KindDelegate      Kind = "DELEGATE"
	KindGenerateCode  Kind = "GENERATE_CODE"
	KindGenerateTests Kind = "GENERATE_TESTS"
	KindReviewCode    Kind = "REVIEW_CODE"
	KindDebugError    Kind = "DEBUG_ERROR"
	KindComplete      Kind = "TASK_COMPLETED"
)

// kinds lists every Kind in catalog order.
var kinds = []Kind{
	KindCreateFile,
	KindReadFile,
	KindExecute,
	KindListFiles,
	KindUpdateTodo,
	KindVerify,
	KindBrowser,
	KindSearchWeb,
	KindThink,
	KindDelegate,
	KindGenerateCode,
	KindGenerateTests,
	KindReviewCode,
	KindDebugError,
	KindComplete,
}

// Kinds returns all action kinds in catalog order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind resolves an action name, ignoring case.
func ParseKind(name string) (Kind, bool) {
	k := Kind(strings.ToUpper(strings.TrimSpace(name)))
	for _, known := range kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Action is one command extracted from a completion.
type Action struct {
	Kind   Kind
	Fields map[string]string
}

// Field returns the value of a field, or "" when absent.
func (a Action) Field(name string) string {
	return a.Fields[name]
}

// Has reports whether the field is present.
func (a Action) Has(name string) bool {
	_, ok := a.Fields[name]
	return ok
}

// Args returns the fields as a generic map for logging.
func (a Action) Args() map[string]interface{} {
	args := make(map[string]interface{}, len(a.Fields))
	for k, v := range a.Fields {
		args[k] = v
	}
	return args
}
