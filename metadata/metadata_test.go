package metadata

import (
	"archive/zip"
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/albertocavalcante/go-pyresolve/requirement"
)

const sampleMetadata = `Metadata-Version: 2.1
Name: Demo_Pkg
Version: 1.2.0
Requires-Python: >=3.8
Provides-Extra: Test
Provides-Extra: socks
Requires-Dist: idna (>=2.5,<4)
Requires-Dist: certifi>=2017.4.17 # pinned for reasons
Requires-Dist: pytest ; extra == "test"
Requires-Dist: PySocks!=1.5.7,>=1.5.6 ; extra == 'socks'
Requires-Dist: colorama ; sys_platform == "win32"
Requires-Dist: this is not valid
Summary: A long
  folded summary

Requires-Dist: body-is-ignored
`

var env = requirement.Env{"python_version": "3.12", "sys_platform": "linux"}

func names(reqs []requirement.Requirement) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Name
	}
	return out
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleMetadata))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	for field, got := range map[string][2]string{
		"Metadata-Version": {m.MetadataVersion, "2.1"},
		"Name":             {m.Name, "Demo_Pkg"},
		"Version":          {m.Version, "1.2.0"},
		"Requires-Python":  {m.RequiresPython, ">=3.8"},
	} {
		if got[0] != got[1] {
			t.Errorf("%s = %q, want %q", field, got[0], got[1])
		}
	}
	if want := []string{"test", "socks"}; !slices.Equal(m.ProvidesExtra, want) {
		t.Errorf("ProvidesExtra = %v, want %v", m.ProvidesExtra, want)
	}
	if want := []string{"idna", "certifi", "pytest", "pysocks", "colorama"}; !slices.Equal(names(m.RequiresDist), want) {
		t.Fatalf("RequiresDist = %v, want %v", names(m.RequiresDist), want)
	}
	if want := []string{"this is not valid"}; !slices.Equal(m.Skipped, want) {
		t.Errorf("Skipped = %v, want %v", m.Skipped, want)
	}
	if got := m.RequiresDist[1].Specifier.String(); got != ">=2017.4.17" {
		t.Errorf("certifi specifier = %q, want >=2017.4.17", got)
	}
}

func TestRequires(t *testing.T) {
	m, err := Parse([]byte(sampleMetadata))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name   string
		extras []string
		want   []string
	}{
		{"no extras", nil, []string{"idna", "certifi"}},
		{"test extra", []string{"test"}, []string{"idna", "certifi", "pytest"}},
		{"both extras", []string{"socks", "test"}, []string{"idna", "certifi", "pytest", "pysocks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := names(m.Requires(tt.extras, env)); !slices.Equal(got, tt.want) {
				t.Errorf("Requires(%v) = %v, want %v", tt.extras, got, tt.want)
			}
		})
	}

	if got := m.UnknownExtras([]string{"TEST", "docs"}); !slices.Equal(got, []string{"docs"}) {
		t.Errorf("UnknownExtras() = %v, want [docs]", got)
	}
}

func TestParseMalformedHeader(t *testing.T) {
	if _, err := Parse([]byte("Name: x\nnot a header\n")); err == nil {
		t.Error("Parse() error = nil")
	}
}

func buildWheel(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFromWheel(t *testing.T) {
	data := buildWheel(t, map[string]string{
		"demo_pkg/__init__.py":              "",
		"demo_pkg-1.2.0.dist-info/METADATA": sampleMetadata,
		"demo_pkg-1.2.0.dist-info/RECORD":   "",
	})

	m, err := FromWheelBytes(data, "demo-pkg")
	if err != nil {
		t.Fatalf("FromWheelBytes() error = %v", err)
	}
	if m.Version != "1.2.0" {
		t.Errorf("Version = %q, want 1.2.0", m.Version)
	}
	if len(m.RequiresDist) != 5 {
		t.Errorf("RequiresDist has %d entries, want 5", len(m.RequiresDist))
	}
}

func TestFromWheelErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"no dist-info", map[string]string{"demo/__init__.py": ""}},
		{"two dist-info", map[string]string{
			"a-1.0.dist-info/METADATA": "Name: a\n",
			"b-1.0.dist-info/METADATA": "Name: b\n",
		}},
		{"name mismatch", map[string]string{"other-1.0.dist-info/METADATA": "Name: other\n"}},
		{"missing METADATA", map[string]string{"demo-1.0.dist-info/RECORD": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromWheelBytes(buildWheel(t, tt.files), "demo")
			if !errors.Is(err, ErrNoMetadata) {
				t.Errorf("FromWheelBytes() error = %v, want ErrNoMetadata", err)
			}
		})
	}

	if _, err := FromWheelBytes([]byte("not a zip"), "demo"); err == nil {
		t.Error("FromWheelBytes(not a zip) error = nil")
	}
}
