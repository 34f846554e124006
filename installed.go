package pyresolve

import "github.com/albertocavalcante/go-pyresolve/requirement"

// InstalledState is a read-only view of the packages already installed in
// the target environment. Resolution never writes to it.
type InstalledState interface {
	// InstalledVersion returns the installed version of a normalized name.
	InstalledVersion(name string) (string, bool)
}

// InstalledMap is an in-memory InstalledState keyed by package name in
// any spelling.
type InstalledMap map[string]string

// InstalledVersion implements InstalledState.
func (m InstalledMap) InstalledVersion(name string) (string, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	n := requirement.Normalize(name)
	for k, v := range m {
		if requirement.Normalize(k) == n {
			return v, true
		}
	}
	return "", false
}

type noInstalled struct{}

func (noInstalled) InstalledVersion(string) (string, bool) { return "", false }
