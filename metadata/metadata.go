// Package metadata reads the dependency information of a built
// distribution from its core metadata file (METADATA).
//
// Only the header block is read. Requires-Dist lines become parsed
// requirements, Provides-Extra lines name the extras a distribution
// declares.
//
// Reference: https://packaging.python.org/en/latest/specifications/core-metadata/
package metadata

import (
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-pyresolve/requirement"
)

// ErrNoMetadata is returned when a wheel archive has no usable METADATA.
var ErrNoMetadata = errors.New("no METADATA file in wheel")

// Metadata is the dependency-relevant subset of a distribution's core metadata.
type Metadata struct {
	MetadataVersion string
	Name            string
	Version         string
	RequiresPython  string

	// RequiresDist lists every declared dependency, markers included.
	RequiresDist []requirement.Requirement
	// ProvidesExtra lists the declared extras, normalized.
	ProvidesExtra []string
	// Skipped holds Requires-Dist values that failed to parse.
	Skipped []string
}

// Parse parses a METADATA document.
func Parse(data []byte) (*Metadata, error) {
	headers, err := readHeaders(data)
	if err != nil {
		return nil, err
	}

	m := &Metadata{}
	for _, h := range headers {
		switch strings.ToLower(h.key) {
		case "metadata-version":
			m.MetadataVersion = h.value
		case "name":
			m.Name = h.value
		case "version":
			m.Version = h.value
		case "requires-python":
			m.RequiresPython = h.value
		case "provides-extra":
			extra := requirement.Normalize(h.value)
			if extra != "" && !slices.Contains(m.ProvidesExtra, extra) {
				m.ProvidesExtra = append(m.ProvidesExtra, extra)
			}
		case "requires-dist":
			line := h.value
			if i := strings.Index(line, " #"); i >= 0 {
				line = line[:i]
			}
			req, err := requirement.Parse(line)
			if err != nil {
				m.Skipped = append(m.Skipped, h.value)
				continue
			}
			m.RequiresDist = append(m.RequiresDist, req)
		}
	}
	return m, nil
}

type header struct {
	key, value string
}

// readHeaders reads RFC 822 style headers up to the first blank line,
// joining continuation lines.
func readHeaders(data []byte) ([]header, error) {
	var headers []header
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(headers) > 0 {
				last := &headers[len(headers)-1]
				last.value += " " + strings.TrimSpace(line)
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed metadata header line %q", line)
		}
		headers = append(headers, header{key: strings.TrimSpace(key), value: strings.TrimSpace(value)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	return headers, nil
}

// Requires returns the dependencies that apply in env with extras
// activated. A dependency without a marker always applies.
func (m *Metadata) Requires(extras []string, env requirement.Env) []requirement.Requirement {
	var out []requirement.Requirement
	for _, req := range m.RequiresDist {
		if req.Marker.EvaluateExtras(env, extras) {
			out = append(out, req)
		}
	}
	return out
}

// UnknownExtras returns the requested extras the distribution does not declare.
func (m *Metadata) UnknownExtras(extras []string) []string {
	var unknown []string
	for _, e := range extras {
		if !slices.Contains(m.ProvidesExtra, requirement.Normalize(e)) {
			unknown = append(unknown, e)
		}
	}
	return unknown
}

// FromWheel reads the METADATA file of the distribution named name from
// a wheel archive. The archive must contain exactly one .dist-info
// directory, and its name must start with the normalized project name.
func FromWheel(r io.ReaderAt, size int64, name string) (*Metadata, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("opening wheel: %w", err)
	}

	var infoDirs []string
	for _, f := range zr.File {
		top, _, _ := strings.Cut(f.Name, "/")
		if strings.HasSuffix(top, ".dist-info") && !slices.Contains(infoDirs, top) {
			infoDirs = append(infoDirs, top)
		}
	}
	switch len(infoDirs) {
	case 0:
		return nil, fmt.Errorf("%w: .dist-info directory not found in wheel %q", ErrNoMetadata, name)
	case 1:
	default:
		return nil, fmt.Errorf("%w: multiple .dist-info directories in wheel %q: %s", ErrNoMetadata, name, strings.Join(infoDirs, ", "))
	}

	infoDir := infoDirs[0]
	if !strings.HasPrefix(requirement.Normalize(infoDir), requirement.Normalize(name)) {
		return nil, fmt.Errorf("%w: .dist-info directory %q does not match %q", ErrNoMetadata, infoDir, name)
	}

	f, err := zr.Open(path.Join(infoDir, "METADATA"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMetadata, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading METADATA from %q: %w", name, err)
	}
	return Parse(data)
}

// FromWheelBytes is FromWheel over an in-memory archive.
func FromWheelBytes(data []byte, name string) (*Metadata, error) {
	return FromWheel(bytes.NewReader(data), int64(len(data)), name)
}
