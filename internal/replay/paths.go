package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SessionExt is the extension of session log files.
const SessionExt = ".jsonl"

// ExpandPaths replaces directories with the session files they contain.
// Files are kept as given.
func ExpandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("cannot read directory %s: %w", p, err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), SessionExt) {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

// CostOptions turns "model:input,output" specs into pricing options.
func CostOptions(specs []string) ([]ReplayerOption, error) {
	var opts []ReplayerOption
	for _, spec := range specs {
		model, p, err := ParseCostSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid --cost %q: %w", spec, err)
		}
		opts = append(opts, WithModelPricing(model, p))
	}
	return opts, nil
}
