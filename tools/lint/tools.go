//go:build tools

// Package lint pins the linters used on go-pyresolve in a separate module,
// so the library's go.mod only carries what the resolver and CLI import.
//
// Run from the repository root:
//
//	go run -modfile=tools/lint/go.mod github.com/golangci/golangci-lint/v2/cmd/golangci-lint run ./...
//	go run -modfile=tools/lint/go.mod honnef.co/go/tools/cmd/staticcheck ./...
package lint
