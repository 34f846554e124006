package pyresolve

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"slices"

	"github.com/albertocavalcante/go-pyresolve/index"
	"github.com/albertocavalcante/go-pyresolve/requirement"
)

// BuiltinIndexName identifies artifacts that come from the builtin
// release set.
const BuiltinIndexName = "builtin"

// BuiltinReleases is the set of packages shipped with the runtime, read
// from a lock file:
//
//	{
//	  "info": {"arch": "wasm32", "platform": "emscripten_3_1_58", "python": "3.12.7"},
//	  "packages": {
//	    "numpy": {
//	      "name": "numpy",
//	      "version": "2.0.2",
//	      "file_name": "numpy-2.0.2-cp312-cp312-pyodide_2024_0_wasm32.whl",
//	      "sha256": "...",
//	      "depends": []
//	    }
//	  }
//	}
//
// Each package has exactly one release with one artifact. Its "depends"
// entries are requirement strings, so no metadata fetch is needed.
type BuiltinReleases struct {
	// Info describes the runtime the lock file was built for.
	Info BuiltinInfo

	baseURL  *url.URL
	packages map[string]builtinPackage
}

// BuiltinInfo is the "info" block of a lock file.
type BuiltinInfo struct {
	Arch     string `json:"arch,omitempty"`
	Platform string `json:"platform,omitempty"`
	Version  string `json:"version,omitempty"`
	Python   string `json:"python,omitempty"`
}

type builtinLock struct {
	Info     BuiltinInfo                `json:"info"`
	Packages map[string]builtinPackage `json:"packages"`
}

type builtinPackage struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	FileName     string   `json:"file_name"`
	SHA256       string   `json:"sha256,omitempty"`
	Depends      []string `json:"depends"`
	PackageType  string   `json:"package_type,omitempty"`
	Yanked       bool     `json:"yanked,omitempty"`
	YankedReason string   `json:"yanked_reason,omitempty"`
}

// ParseBuiltinReleases parses a lock file. Relative file names are
// resolved against baseURL, which may be empty.
func ParseBuiltinReleases(data []byte, baseURL string) (*BuiltinReleases, error) {
	var lock builtinLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parse builtin lock file: %w", err)
	}
	if lock.Packages == nil {
		return nil, fmt.Errorf("parse builtin lock file: missing \"packages\"")
	}

	b := &BuiltinReleases{Info: lock.Info, packages: make(map[string]builtinPackage, len(lock.Packages))}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid builtin base URL %q: %w", baseURL, err)
		}
		b.baseURL = u
	}

	for key, pkg := range lock.Packages {
		if pkg.Name == "" {
			pkg.Name = key
		}
		if pkg.Version == "" || pkg.FileName == "" {
			return nil, fmt.Errorf("builtin package %q: version and file_name are required", key)
		}
		b.packages[requirement.Normalize(pkg.Name)] = pkg
	}
	return b, nil
}

// LoadBuiltinReleases reads a lock file from disk. File names are
// resolved against the lock file's directory.
func LoadBuiltinReleases(path string) (*BuiltinReleases, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read builtin lock file: %w", err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve builtin lock file directory: %w", err)
	}
	base := (&url.URL{Scheme: "file", Path: filepath.ToSlash(dir) + "/"}).String()
	return ParseBuiltinReleases(data, base)
}

// Name implements provider.
func (b *BuiltinReleases) Name() string {
	return BuiltinIndexName
}

// Names returns the builtin package names, sorted.
func (b *BuiltinReleases) Names() []string {
	return slices.Sorted(maps.Keys(b.packages))
}

// Project implements provider. A name that is not builtin fails with
// index.ErrNotFound.
func (b *BuiltinReleases) Project(_ context.Context, name string) (*index.Project, error) {
	name = requirement.Normalize(name)
	pkg, ok := b.packages[name]
	if !ok {
		return nil, fmt.Errorf("%s is not a builtin package: %w", name, index.ErrNotFound)
	}

	file := index.File{Filename: pkg.FileName, URL: b.resolve(pkg.FileName)}
	if pkg.SHA256 != "" {
		file.Hashes = map[string]string{"sha256": pkg.SHA256}
	}
	p := index.NewProject(name, BuiltinIndexName, []index.File{file}, []string{pkg.Version})
	for _, r := range p.Releases {
		if pkg.Yanked {
			r.Yanked, r.YankedReason = true, pkg.YankedReason
		}
		for _, a := range r.Artifacts {
			a.Dependencies = append([]string{}, pkg.Depends...)
		}
	}
	return p, nil
}

func (b *BuiltinReleases) resolve(fileName string) string {
	if b.baseURL == nil {
		return fileName
	}
	ref, err := url.Parse(fileName)
	if err != nil {
		return fileName
	}
	return b.baseURL.ResolveReference(ref).String()
}
