// Package index queries Python package indexes for the releases published
// under a project name.
//
// An index is addressed by a base URL. The project page lives at
// {base}/{normalized-name}/, or at the base URL itself with the
// "{package_name}" placeholder substituted when the base contains one.
// Three response shapes are accepted and dispatched on Content-Type:
//
//   - application/vnd.pypi.simple.v1+json: the JSON simple API
//   - text/html and application/vnd.pypi.simple.v1+html: the HTML link list
//   - application/json: the legacy per-project JSON API ({"info", "releases"})
//
// # Index Layout
//
// A file:// base is served from disk with the same layout:
//
//	index/
//	└── {name}/
//	    ├── index.json  # JSON simple API page, preferred
//	    └── index.html  # HTML link list
//
// # Failure Classes
//
// Every failure wraps one of ErrNotFound, ErrRestricted or ErrUnavailable
// so callers can decide whether to fall back to another index.
//
// # Usage
//
//	client := index.NewClient("https://pypi.org/simple")
//	project, err := client.Project(ctx, "requests")
//	if errors.Is(err, index.ErrNotFound) {
//	    // try another index
//	}
//
// References:
//   - https://packaging.python.org/en/latest/specifications/simple-repository-api/
//   - https://peps.python.org/pep-0691/
package index
