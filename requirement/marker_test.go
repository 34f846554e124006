package requirement

import "testing"

var linux312 = Env{
	"python_version":      "3.12",
	"python_full_version": "3.12.1",
	"sys_platform":        "linux",
	"os_name":             "posix",
	"platform_machine":    "x86_64",
	"implementation_name": "cpython",
}

func TestMarkerEvaluate(t *testing.T) {
	tests := []struct {
		marker string
		want   bool
	}{
		{`python_version >= "3.8"`, true},
		{`python_version < "3.8"`, false},
		{`python_version > "3.9"`, true},
		{`python_full_version == "3.12.*"`, true},
		{`"3.8" <= python_version`, true},
		{`sys_platform == "linux"`, true},
		{`sys_platform != "win32"`, true},
		{`sys_platform == "win32" or os_name == "posix"`, true},
		{`sys_platform == "win32" and os_name == "posix"`, false},
		{`(sys_platform == "win32" or sys_platform == "linux") and python_version >= "3"`, true},
		{`"linux" in sys_platform`, true},
		{`"win" not in sys_platform`, true},
		{`platform_machine < "arm"`, false},
		{`sys.platform == "linux"`, true},
		{`extra == "test"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.marker, func(t *testing.T) {
			m, err := ParseMarker(tt.marker)
			if err != nil {
				t.Fatalf("ParseMarker() error = %v", err)
			}
			if got := m.Evaluate(linux312); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarkerEvaluateExtras(t *testing.T) {
	m, err := ParseMarker(`extra == "Test_Utils"`)
	if err != nil {
		t.Fatalf("ParseMarker() error = %v", err)
	}
	if !m.ReferencesExtra() {
		t.Error("ReferencesExtra() = false")
	}

	tests := []struct {
		extras []string
		want   bool
	}{
		{nil, false},
		{[]string{"docs"}, false},
		{[]string{"docs", "test-utils"}, true},
	}
	for _, tt := range tests {
		if got := m.EvaluateExtras(linux312, tt.extras); got != tt.want {
			t.Errorf("EvaluateExtras(%v) = %v, want %v", tt.extras, got, tt.want)
		}
	}

	if _, ok := linux312["extra"]; ok {
		t.Error("evaluation mutated the caller's env")
	}

	var nilMarker *Marker
	if !nilMarker.EvaluateExtras(linux312, nil) {
		t.Error("nil marker EvaluateExtras() = false")
	}
	if nilMarker.ReferencesExtra() {
		t.Error("nil marker ReferencesExtra() = true")
	}
}

func TestParseMarkerErrors(t *testing.T) {
	for _, input := range []string{
		"",
		`python_version >=`,
		`python_version "3.8"`,
		`(python_version >= "3.8"`,
		`python_version >= "3.8`,
		`bogus == "1"`,
		`python_version >= "3" and`,
		`os_name not == "posix"`,
	} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseMarker(input); err == nil {
				t.Error("ParseMarker() error = nil")
			}
		})
	}
}

func TestMarkerStringPrecedence(t *testing.T) {
	m, err := ParseMarker(`python_version>="3" and (os_name=='nt' or os_name=='posix')`)
	if err != nil {
		t.Fatalf("ParseMarker() error = %v", err)
	}
	want := `python_version >= "3" and (os_name == "nt" or os_name == "posix")`
	if got := m.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
