package configuration

import (
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// FindContracts expands glob patterns, ** included, into the sorted list of
// contract files they match. A pattern matching nothing is an error.
func FindContracts(patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Clean(pattern), doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "invalid contract pattern %s", pattern)
		}
		if len(matches) == 0 {
			return nil, errors.Errorf("no contract matches %s", pattern)
		}
		for _, match := range matches {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			files = append(files, match)
		}
	}
	sort.Strings(files)
	return files, nil
}
