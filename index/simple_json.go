package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// simpleProjectJSON is the JSON simple API project page.
type simpleProjectJSON struct {
	Meta struct {
		APIVersion string `json:"api-version"`
	} `json:"meta"`
	Name     string           `json:"name"`
	Files    []simpleFileJSON `json:"files"`
	Versions []string         `json:"versions,omitempty"`
}

type simpleFileJSON struct {
	Filename         string            `json:"filename"`
	URL              string            `json:"url"`
	Hashes           map[string]string `json:"hashes"`
	RequiresPython   *string           `json:"requires-python,omitempty"`
	Yanked           json.RawMessage   `json:"yanked,omitempty"`
	DistInfoMetadata json.RawMessage   `json:"dist-info-metadata,omitempty"`
	CoreMetadata     json.RawMessage   `json:"core-metadata,omitempty"`
	Size             *int64            `json:"size,omitempty"`
}

// legacyProjectJSON is the per-project JSON API ({base}/{name}/json).
type legacyProjectJSON struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	Releases map[string][]legacyFileJSON `json:"releases"`
}

type legacyFileJSON struct {
	Filename       string            `json:"filename"`
	URL            string            `json:"url"`
	Digests        map[string]string `json:"digests"`
	RequiresPython *string           `json:"requires_python"`
	Yanked         bool              `json:"yanked"`
	YankedReason   *string           `json:"yanked_reason"`
	Size           int64             `json:"size"`
}

// parseSimpleJSON parses a JSON simple API page. Relative file URLs are
// resolved against pageURL.
func parseSimpleJSON(data []byte, pageURL *url.URL) (name string, files []File, versions []string, err error) {
	var page simpleProjectJSON
	if err := json.Unmarshal(data, &page); err != nil {
		return "", nil, nil, fmt.Errorf("decoding JSON project page: %w", err)
	}

	for _, f := range page.Files {
		resolved, err := resolveURL(pageURL, f.URL)
		if err != nil {
			continue
		}
		file := File{
			Filename: f.Filename,
			URL:      resolved,
			Hashes:   f.Hashes,
		}
		if f.RequiresPython != nil {
			file.RequiresPython = *f.RequiresPython
		}
		if f.Size != nil {
			file.Size = *f.Size
		}
		file.Yanked, file.YankedReason = decodeYanked(f.Yanked)

		// core-metadata supersedes the older dist-info-metadata key.
		meta := f.CoreMetadata
		if len(meta) == 0 {
			meta = f.DistInfoMetadata
		}
		file.MetadataAvailable, file.MetadataHashes = decodeMetadataFlag(meta)

		files = append(files, file)
	}
	return page.Name, files, page.Versions, nil
}

// parseLegacyJSON parses the per-project JSON API.
func parseLegacyJSON(data []byte, pageURL *url.URL) (name string, files []File, versions []string, err error) {
	var page legacyProjectJSON
	if err := json.Unmarshal(data, &page); err != nil {
		return "", nil, nil, fmt.Errorf("decoding JSON project page: %w", err)
	}
	if page.Releases == nil {
		return "", nil, nil, fmt.Errorf("JSON project page has no releases")
	}

	for v, entries := range page.Releases {
		versions = append(versions, v)
		for _, f := range entries {
			resolved, err := resolveURL(pageURL, f.URL)
			if err != nil {
				continue
			}
			file := File{
				Filename: f.Filename,
				URL:      resolved,
				Hashes:   f.Digests,
				Yanked:   f.Yanked,
				Size:     f.Size,
			}
			if f.RequiresPython != nil {
				file.RequiresPython = *f.RequiresPython
			}
			if f.YankedReason != nil {
				file.YankedReason = *f.YankedReason
			}
			files = append(files, file)
		}
	}
	return page.Info.Name, files, versions, nil
}

// isLegacyJSON reports whether data looks like the per-project JSON API
// rather than the JSON simple API.
func isLegacyJSON(data []byte) bool {
	var probe struct {
		Releases json.RawMessage `json:"releases"`
		Files    json.RawMessage `json:"files"`
	}
	if json.Unmarshal(data, &probe) != nil {
		return false
	}
	return len(probe.Releases) > 0 && len(probe.Files) == 0
}

// decodeYanked accepts false, true or a reason string.
func decodeYanked(raw json.RawMessage) (bool, string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return false, ""
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, ""
	}
	var reason string
	if json.Unmarshal(raw, &reason) == nil {
		return true, reason
	}
	return false, ""
}

// decodeMetadataFlag accepts a bool or a hash mapping.
func decodeMetadataFlag(raw json.RawMessage) (bool, map[string]string) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b, nil
	}
	var hashes map[string]string
	if json.Unmarshal(raw, &hashes) == nil {
		return true, hashes
	}
	return false, nil
}

// resolveURL resolves ref against the page it was listed on. Absolute,
// root-relative, "./" and "../" forms are all handled by RFC 3986
// reference resolution.
func resolveURL(page *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty URL")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if page == nil {
		return u.String(), nil
	}
	return page.ResolveReference(u).String(), nil
}
