package index

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// parseSimpleHTML extracts file entries from an HTML link list. Each
// anchor is one file; the anchor text is the filename and the href
// fragment may carry a hash ("#sha256=...").
func parseSimpleHTML(data []byte, pageURL *url.URL) ([]File, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML project page: %w", err)
	}

	base := pageURL
	var files []File
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Base:
				// A <base href> moves the resolution root for later anchors.
				if href, ok := attr(n, "href"); ok {
					if u, err := url.Parse(href); err == nil {
						if base != nil {
							u = base.ResolveReference(u)
						}
						base = u
					}
				}
			case atom.A:
				if f, ok := anchorFile(n, base); ok {
					files = append(files, f)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return files, nil
}

func anchorFile(n *html.Node, base *url.URL) (File, bool) {
	href, ok := attr(n, "href")
	if !ok {
		return File{}, false
	}
	resolved, err := resolveURL(base, href)
	if err != nil {
		return File{}, false
	}
	u, err := url.Parse(resolved)
	if err != nil {
		return File{}, false
	}

	f := File{Hashes: parseHashFragment(u.Fragment)}
	u.Fragment = ""
	f.URL = u.String()

	f.Filename = strings.TrimSpace(textContent(n))
	if f.Filename == "" {
		f.Filename = lastSegment(u.Path)
	}

	if rp, ok := attr(n, "data-requires-python"); ok {
		f.RequiresPython = rp
	}
	if reason, ok := attr(n, "data-yanked"); ok {
		f.Yanked = true
		f.YankedReason = reason
	}

	meta, ok := attr(n, "data-core-metadata")
	if !ok {
		meta, ok = attr(n, "data-dist-info-metadata")
	}
	if ok {
		switch strings.ToLower(strings.TrimSpace(meta)) {
		case "false":
		case "", "true":
			f.MetadataAvailable = true
		default:
			f.MetadataAvailable = true
			f.MetadataHashes = parseHashFragment(meta)
		}
	}
	return f, true
}

// parseHashFragment parses "alg=hex" into a one-entry hash map.
func parseHashFragment(fragment string) map[string]string {
	alg, hex, ok := strings.Cut(fragment, "=")
	if !ok || alg == "" || hex == "" {
		return nil
	}
	return map[string]string{strings.ToLower(alg): hex}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func lastSegment(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		return unescaped
	}
	return p
}
