package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/waltr/flashstation/pkg/errors"
)

// ArtifactExt is the file extension of cached artifacts
const ArtifactExt = ".bin"

// Orphans lists files in dir that nothing references: leftover partial
// downloads and artifacts whose path is not in referenced. A missing dir has
// no orphans.
func Orphans(dir string, referenced map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read artifact dir")
	}

	keep := make(map[string]bool, len(referenced))
	for p := range referenced {
		keep[filepath.Clean(p)] = true
	}

	var orphans []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)

		switch {
		case IsPartial(name):
			orphans = append(orphans, path)
		case strings.HasSuffix(name, ArtifactExt) && !keep[path]:
			orphans = append(orphans, path)
		}
	}

	sort.Strings(orphans)
	return orphans, nil
}
