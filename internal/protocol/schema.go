package protocol

// Schema describes the fields an action block may carry.
type Schema struct {
	Required   []string          // must be present and non-empty
	AnyOf      []string          // at least one must be present and non-empty
	Optional   []string          // recognized but not required
	AllowEmpty []string          // required fields that may be empty
	Numeric    []string          // must be a non-negative integer when present
	Defaults   map[string]string // applied when the field is absent
	Lower      []string          // values folded to lower case
}

// DefaultWorkspace is the path LIST_FILES uses when PATH is omitted.
const DefaultWorkspace = "/workspace"

var schemas = map[Kind]Schema{
	KindCreateFile: {
		Required:   []string{"PATH", "CONTENT"},
		AllowEmpty: []string{"CONTENT"},
	},
	KindReadFile: {Required: []string{"PATH"}},
	KindExecute:  {Required: []string{"COMMAND"}},
	KindListFiles: {
		Optional: []string{"PATH"},
		Defaults: map[string]string{"PATH": DefaultWorkspace},
	},
	KindUpdateTodo: {Required: []string{"CONTENT"}},
	KindVerify:     {Required: []string{"WHAT", "HOW"}},
	KindBrowser: {
		AnyOf:    []string{"TASK", "ACTION_TYPE"},
		Optional: []string{"URL", "SELECTOR", "VALUE", "PATH"},
		Lower:    []string{"ACTION_TYPE"},
	},
	KindSearchWeb: {
		Required: []string{"QUERY"},
		Optional: []string{"MAX_RESULTS"},
		Numeric:  []string{"MAX_RESULTS"},
		Defaults: map[string]string{"MAX_RESULTS": "5"},
	},
	KindThink: {Required: []string{"THOUGHT"}},
	KindDelegate: {
		Required: []string{"AGENT_TYPE", "TASK"},
		Lower:    []string{"AGENT_TYPE"},
	},
	KindGenerateCode: {
		Required: []string{"REQUIREMENTS"},
		Optional: []string{"LANGUAGE", "CONTEXT", "EXISTING_CODE"},
		Defaults: map[string]string{"LANGUAGE": "python"},
		Lower:    []string{"LANGUAGE"},
	},
	KindGenerateTests: {
		Required: []string{"CODE"},
		Optional: []string{"LANGUAGE", "TEST_TYPE", "CONTEXT"},
		Defaults: map[string]string{"LANGUAGE": "python", "TEST_TYPE": "unit"},
		Lower:    []string{"LANGUAGE", "TEST_TYPE"},
	},
	KindReviewCode: {
		Required: []string{"CODE"},
		Optional: []string{"LANGUAGE", "FOCUS_AREAS", "CONTEXT"},
		Defaults: map[string]string{"LANGUAGE": "python"},
		Lower:    []string{"LANGUAGE"},
	},
	KindDebugError: {
		Required: []string{"ERROR_MESSAGE"},
		Optional: []string{"STACK_TRACE", "CODE_CONTEXT", "LANGUAGE"},
		Defaults: map[string]string{"LANGUAGE": "python"},
		Lower:    []string{"LANGUAGE"},
	},
	KindComplete: {
		Required: []string{"SUMMARY"},
		Optional: []string{"REFLECTION"},
	},
}

// SchemaFor returns the field schema of a kind.
func SchemaFor(k Kind) (Schema, bool) {
	s, ok := schemas[k]
	return s, ok
}

// Fields returns every field name the schema recognizes.
func (s Schema) Fields() []string {
	out := make([]string, 0, len(s.Required)+len(s.AnyOf)+len(s.Optional))
	out = append(out, s.Required...)
	out = append(out, s.AnyOf...)
	out = append(out, s.Optional...)
	return out
}

// Recognizes reports whether name is a field header for this schema.
func (s Schema) Recognizes(name string) bool {
	return contains(s.Required, name) || contains(s.AnyOf, name) || contains(s.Optional, name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
