package wheel

import (
	"fmt"
	"strconv"
	"strings"
)

// Runtime describes the interpreter an installation plan targets: the
// ordered list of accepted tags (most specific first), its architecture
// and the environment used to evaluate requirement markers.
type Runtime struct {
	// Tags is ordered from most to least preferred.
	Tags []Tag
	// Arch is the architecture identifier, e.g. "wasm32" or "x86_64".
	Arch string
	// PythonVersion is the full interpreter version, e.g. "3.12.7".
	PythonVersion string
	// Platforms are the platform tags passed to NewRuntime, most specific first.
	Platforms []string

	env   map[string]string
	index map[Tag]int
}

// RuntimeOption customizes NewRuntime.
type RuntimeOption func(*Runtime)

// WithMarkerEnv overrides individual marker environment values.
func WithMarkerEnv(values map[string]string) RuntimeOption {
	return func(r *Runtime) {
		for k, v := range values {
			r.env[k] = v
		}
	}
}

// WithTags replaces the generated tag list. The order given is the
// preference order.
func WithTags(tags ...Tag) RuntimeOption {
	return func(r *Runtime) {
		r.Tags = append([]Tag(nil), tags...)
	}
}

// DefaultPythonVersion and DefaultPlatforms describe a CPython
// WebAssembly runtime, the default installation target.
const DefaultPythonVersion = "3.12.7"

var DefaultPlatforms = []string{"pyodide_2024_0_wasm32", "emscripten_3_1_58_wasm32"}

// DefaultRuntime returns the runtime for DefaultPythonVersion on DefaultPlatforms.
func DefaultRuntime() Runtime {
	r, err := NewRuntime(DefaultPythonVersion, "wasm32", DefaultPlatforms)
	if err != nil {
		panic(err)
	}
	return r
}

// NewRuntime builds a CPython runtime descriptor. pythonVersion is
// "major.minor[.micro]"; platforms are ordered most specific first.
//
// The tag order follows the interpreter-specific tags, then abi3 tags for
// older minors, then generic "pyXY-none" tags, ending with the pure-Python
// "any" tags.
func NewRuntime(pythonVersion, arch string, platforms []string, opts ...RuntimeOption) (Runtime, error) {
	major, minor, err := splitPython(pythonVersion)
	if err != nil {
		return Runtime{}, err
	}
	if len(platforms) == 0 {
		return Runtime{}, fmt.Errorf("runtime needs at least one platform tag")
	}

	r := Runtime{
		Arch:          arch,
		PythonVersion: pythonVersion,
		Platforms:     append([]string(nil), platforms...),
		Tags:          generateTags(major, minor, platforms),
		env:           markerEnv(pythonVersion, major, minor, arch, platforms[0]),
	}
	for _, opt := range opts {
		opt(&r)
	}

	r.index = make(map[Tag]int, len(r.Tags))
	for i, t := range r.Tags {
		if _, dup := r.index[t]; !dup {
			r.index[t] = i
		}
	}
	return r, nil
}

func splitPython(v string) (major, minor int, err error) {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("invalid python version %q: want major.minor", v)
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("invalid python version %q: %w", v, err)
	}
	if minor, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("invalid python version %q: %w", v, err)
	}
	return major, minor, nil
}

func generateTags(major, minor int, platforms []string) []Tag {
	var tags []Tag
	cp := fmt.Sprintf("cp%d%d", major, minor)

	for _, abi := range []string{cp, "abi3", "none"} {
		for _, p := range platforms {
			tags = append(tags, Tag{Interpreter: cp, ABI: abi, Platform: p})
		}
	}
	for m := minor - 1; m >= 2; m-- {
		for _, p := range platforms {
			tags = append(tags, Tag{Interpreter: fmt.Sprintf("cp%d%d", major, m), ABI: "abi3", Platform: p})
		}
	}

	generic := pythonRange(major, minor)
	for _, py := range generic {
		for _, p := range platforms {
			tags = append(tags, Tag{Interpreter: py, ABI: "none", Platform: p})
		}
	}
	tags = append(tags, Tag{Interpreter: cp, ABI: "none", Platform: "any"})
	for _, py := range generic {
		tags = append(tags, Tag{Interpreter: py, ABI: "none", Platform: "any"})
	}
	return tags
}

// pythonRange yields pyXY, pyX, then every older pyXY down to minor 0.
func pythonRange(major, minor int) []string {
	out := []string{fmt.Sprintf("py%d%d", major, minor), fmt.Sprintf("py%d", major)}
	for m := minor - 1; m >= 0; m-- {
		out = append(out, fmt.Sprintf("py%d%d", major, m))
	}
	return out
}

func markerEnv(full string, major, minor int, arch, platform string) map[string]string {
	short := fmt.Sprintf("%d.%d", major, minor)
	if strings.Count(full, ".") < 2 {
		full = short + ".0"
	}
	env := map[string]string{
		"python_version":                 short,
		"python_full_version":            full,
		"implementation_name":            "cpython",
		"implementation_version":         full,
		"platform_python_implementation": "CPython",
		"platform_machine":               arch,
		"os_name":                        "posix",
		"platform_version":               "",
		"platform_release":               "",
		"sys_platform":                   "linux",
		"platform_system":                "Linux",
	}
	switch {
	case strings.HasPrefix(platform, "emscripten") || strings.HasPrefix(platform, "pyodide"):
		env["sys_platform"] = "emscripten"
		env["platform_system"] = "Emscripten"
	case strings.HasPrefix(platform, "macosx"):
		env["sys_platform"] = "darwin"
		env["platform_system"] = "Darwin"
	case strings.HasPrefix(platform, "win"):
		env["sys_platform"] = "win32"
		env["platform_system"] = "Windows"
		env["os_name"] = "nt"
	}
	return env
}

// Environment returns a copy of the marker environment. The "extra"
// key is left unset; callers add it per evaluation.
func (r Runtime) Environment() map[string]string {
	out := make(map[string]string, len(r.env)+1)
	for k, v := range r.env {
		out[k] = v
	}
	return out
}

// TagIndex returns the preference rank of t, lower is better.
func (r Runtime) TagIndex(t Tag) (int, bool) {
	if r.index == nil {
		for i, candidate := range r.Tags {
			if candidate == t {
				return i, true
			}
		}
		return 0, false
	}
	i, ok := r.index[t]
	return i, ok
}

// BestIndex returns the best rank among tags, or false when none is
// accepted by the runtime.
func (r Runtime) BestIndex(tags []Tag) (int, bool) {
	best, found := 0, false
	for _, t := range tags {
		if i, ok := r.TagIndex(t); ok && (!found || i < best) {
			best, found = i, true
		}
	}
	return best, found
}

// Supports reports whether any of tags is accepted.
func (r Runtime) Supports(tags []Tag) bool {
	_, ok := r.BestIndex(tags)
	return ok
}

// TagStrings renders the runtime tags for diagnostics.
func (r Runtime) TagStrings() []string {
	out := make([]string, len(r.Tags))
	for i, t := range r.Tags {
		out[i] = t.String()
	}
	return out
}
