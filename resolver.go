package pyresolve

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/semaphore"

	"github.com/albertocavalcante/go-pyresolve/graph"
	"github.com/albertocavalcante/go-pyresolve/index"
	"github.com/albertocavalcante/go-pyresolve/metadata"
	"github.com/albertocavalcante/go-pyresolve/requirement"
	"github.com/albertocavalcante/go-pyresolve/selection"
	"github.com/albertocavalcante/go-pyresolve/selection/version"
	"github.com/albertocavalcante/go-pyresolve/wheel"
)

// resolver turns requirements into a plan with a worklist walk.
//
// The walk runs on one goroutine, which is the only one that touches the
// per-name state. Index queries for names waiting in the queue are
// prefetched concurrently, bounded by a semaphore, and consumed in queue
// order. There is no backtracking: once a version is chosen, every later
// requirement on that name is checked against it and a mismatch fails the
// resolution.
type resolver struct {
	cfg         *resolverConfig
	chain       *providerChain
	rt          wheel.Runtime
	env         requirement.Env
	log         *slog.Logger
	mocks       map[string]string
	installed   InstalledState
	constraints map[string]Constraint

	states   map[string]*pkgState
	queue    []*edge
	fetches  map[string]*pendingFetch
	sem      *semaphore.Weighted
	builder  *graph.Builder
	children map[string][]string
	warnings []string

	tops       []topLevel
	failures   ResolutionErrors
	failedTops map[int]bool
}

// topLevel is one requirement given by the caller.
type topLevel struct {
	text string
	// name is empty when the requirement failed to parse or its marker
	// excluded it.
	name string
}

// edge is one pending requirement.
type edge struct {
	req  requirement.Requirement
	text string
	// from is the requesting package, empty for top-level requirements.
	from string
	// top is the index of the top-level requirement whose walk found the
	// edge first.
	top int
}

// pkgState is everything known about one package name.
type pkgState struct {
	// spec accumulates the specifiers of every requirement edge.
	spec version.SpecifierSet
	// cspec is the constraint's specifier. It does not apply to direct
	// sources.
	cspec    version.SpecifierSet
	hasCSpec bool

	// source is the direct source every edge must agree on.
	source string
	// resolvedSource is the direct source the node was resolved from.
	resolvedSource string

	// edges and specs are parallel: every contributing edge, constraint
	// included, with the specifier it carried.
	edges []Edge
	specs []version.SpecifierSet

	node *ResolvedNode
	meta *metadata.Metadata
}

func (st *pkgState) effective() version.SpecifierSet {
	if st.source != "" || !st.hasCSpec {
		return st.spec
	}
	return st.spec.Intersect(st.cspec)
}

// pendingFetch is an explicit-index query running in the background.
type pendingFetch struct {
	done chan struct{}
	res  explicitResult
	err  error
}

func newResolver(cfg *resolverConfig, chain *providerChain, mocks map[string]string, constraints map[string]Constraint, log *slog.Logger) *resolver {
	rt := wheel.DefaultRuntime()
	if cfg.runtime != nil {
		rt = *cfg.runtime
	}
	installed := cfg.installed
	if installed == nil {
		installed = noInstalled{}
	}
	return &resolver{
		cfg:         cfg,
		chain:       chain,
		rt:          rt,
		env:         requirement.Env(rt.Environment()),
		log:         log,
		mocks:       mocks,
		installed:   installed,
		constraints: constraints,
		states:      make(map[string]*pkgState),
		fetches:     make(map[string]*pendingFetch),
		sem:         semaphore.NewWeighted(int64(cfg.maxConcurrency)),
		builder:     graph.NewBuilder(),
		children:    make(map[string][]string),
		failedTops:  make(map[int]bool),
	}
}

// run resolves requirements. Without WithCollectAllFailures the first
// failure aborts and no plan is returned. With it, the plan holds every
// package reachable from a requirement that resolved, and the error is a
// *ResolutionErrors.
func (r *resolver) run(ctx context.Context, requirements []string) (*Plan, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx = slogcontext.NewCtx(ctx, r.log)

	reqs, err := r.parseTopLevel(requirements)
	if err != nil {
		return nil, err
	}

	r.progress(ProgressEvent{Type: ProgressResolveStart})
	for i, req := range reqs {
		if r.tops[i].name == "" {
			continue
		}
		r.queue = append(r.queue, &edge{req: req, text: r.tops[i].text, top: i})
		r.prefetch(ctx, req)
	}

	for len(r.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := r.queue[0]
		r.queue = r.queue[1:]

		err := r.process(ctx, e)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.progress(ProgressEvent{Type: ProgressFailed, Name: e.req.Name, Err: err})
		if !r.cfg.collectAll {
			return nil, err
		}
		r.log.Info("Resolution failed", "requirement", e.text, "error", err)
		for _, t := range r.affectedTops(e) {
			r.failures.add(r.tops[t].text, err)
			r.failedTops[t] = true
		}
	}

	plan := r.buildPlan()
	r.progress(ProgressEvent{Type: ProgressResolveEnd})
	if len(plan.Nodes) > 0 {
		r.log.Info("Installing collected packages", "packages", strings.Join(plan.Names(), ", "))
	}
	return plan, r.failures.ToError()
}

// parseTopLevel parses every requirement before any index is contacted.
// Requirements whose marker does not hold are skipped.
func (r *resolver) parseTopLevel(requirements []string) ([]requirement.Requirement, error) {
	reqs := make([]requirement.Requirement, len(requirements))
	r.tops = make([]topLevel, len(requirements))
	for i, text := range requirements {
		r.tops[i].text = strings.TrimSpace(text)
		req, err := requirement.Parse(text)
		if err != nil {
			if !r.cfg.collectAll {
				return nil, err
			}
			r.failures.add(r.tops[i].text, err)
			r.failedTops[i] = true
			continue
		}
		if !req.Marker.EvaluateExtras(r.env, nil) {
			r.log.Info("Ignoring requirement: markers don't match your environment", "requirement", r.tops[i].text)
			continue
		}
		reqs[i] = req
		r.tops[i].name = req.Name
	}
	return reqs, nil
}

func (r *resolver) state(name string) *pkgState {
	if st, ok := r.states[name]; ok {
		return st
	}
	st := &pkgState{}
	if c, ok := r.constraints[name]; ok && c.Marker.EvaluateExtras(r.env, nil) {
		if c.DirectSource != "" {
			st.source = c.DirectSource
		} else {
			st.cspec = c.Specifier
			st.hasCSpec = true
		}
		st.edges = append(st.edges, Edge{From: constraintOrigin, Requirement: c.Text})
		st.specs = append(st.specs, c.Specifier)
	}
	r.states[name] = st
	return st
}

// process folds one edge into the state. On failure the name's state is
// rolled back, so a failed edge does not poison later ones.
func (r *resolver) process(ctx context.Context, e *edge) error {
	name := e.req.Name
	st := r.state(name)
	saved := *st

	st.edges = append(st.edges, Edge{From: e.from, Requirement: e.text})
	st.specs = append(st.specs, e.req.Specifier)
	st.spec = st.spec.Intersect(e.req.Specifier)

	var err error
	switch {
	case e.req.DirectSource != "" && st.source != "" && st.source != e.req.DirectSource:
		err = r.conflict(name, st.source, st)
	case st.node != nil:
		if e.req.DirectSource != "" {
			st.source = e.req.DirectSource
		}
		err = r.revisit(ctx, e, st)
	default:
		if e.req.DirectSource != "" {
			st.source = e.req.DirectSource
		}
		err = r.collect(ctx, e, st)
	}
	if err != nil {
		*st = saved
	}
	return err
}

// revisit checks a new edge against a package already in the plan.
func (r *resolver) revisit(ctx context.Context, e *edge, st *pkgState) error {
	node := st.node
	if node.Source != SourceMock {
		if st.source != st.resolvedSource {
			chosen := st.resolvedSource
			if chosen == "" {
				chosen = node.String()
			}
			return r.conflict(node.Name, chosen, st)
		}
	}
	if spec := st.effective(); !spec.Empty() && !spec.ContainsString(node.Version, true) {
		return r.conflict(node.Name, node.Version, st)
	}

	r.link(e, node.Name)

	var added []string
	for _, x := range e.req.Extras {
		if !slices.Contains(node.Extras, x) {
			added = append(added, x)
		}
	}
	if len(added) == 0 {
		return nil
	}
	previous := append([]string{}, node.Extras...)
	node.Extras = append(node.Extras, added...)
	slices.Sort(node.Extras)
	r.builder.AddExtras(node.Name, added...)
	if st.meta != nil {
		r.checkExtras(node, st.meta, added)
		r.enqueueDeps(ctx, e.top, node, st.meta, previous)
	}
	return nil
}

// collect chooses a version for a package seen for the first time.
func (r *resolver) collect(ctx context.Context, e *edge, st *pkgState) error {
	name := e.req.Name
	spec := st.effective()

	if v, ok := r.mocks[name]; ok {
		if !spec.Empty() && !spec.ContainsString(v, true) {
			return r.conflict(name, v, st)
		}
		r.log.Info("Requirement already satisfied", "package", name, "version", v, "source", SourceMock)
		node := &ResolvedNode{Name: name, Version: v, Source: SourceMock}
		r.plan(ctx, e, st, node, nil, &graph.SelectionInfo{
			Strategy:       graph.StrategyPresent,
			Specifier:      spec.String(),
			DecidingFactor: "mock package",
		})
		return nil
	}

	if st.source == "" && !r.cfg.forceReinstall[name] {
		if v, ok := r.installed.InstalledVersion(name); ok {
			if spec.ContainsString(v, true) {
				r.log.Info("Requirement already satisfied", "package", name, "version", v, "source", SourceInstalled)
				node := &ResolvedNode{Name: name, Version: v, Source: SourceInstalled}
				r.plan(ctx, e, st, node, nil, &graph.SelectionInfo{
					Strategy:       graph.StrategyPresent,
					Specifier:      spec.String(),
					DecidingFactor: "already installed",
				})
				return nil
			}
			r.log.Debug("installed version does not satisfy requirement", "package", name, "installed", v, "specifier", spec.String())
		}
	}

	if st.source != "" {
		return r.collectDirect(ctx, e, st)
	}
	return r.collectIndex(ctx, e, st, spec)
}

func (r *resolver) collectIndex(ctx context.Context, e *edge, st *pkgState, spec version.SpecifierSet) error {
	name := e.req.Name
	r.log.Info("Collecting", "requirement", e.text)
	r.progress(ProgressEvent{Type: ProgressCollecting, Name: name})

	opts := selection.Options{AllowPrereleases: r.cfg.prereleases}
	accept := func(p *index.Project) bool {
		_, err := selection.Best(name, p.Releases, spec, r.rt, opts)
		return err == nil
	}
	project, err := r.project(ctx, name, accept)
	if err != nil {
		return err
	}

	choice, err := selection.Best(name, project.Releases, spec, r.rt, opts)
	if err != nil {
		if c := r.specConflict(name, st, project); c != nil {
			return c
		}
		return err
	}

	a := choice.Artifact
	node := &ResolvedNode{
		Name:     name,
		Version:  choice.Release.VersionString(),
		Artifact: a,
		Source:   SourceIndex,
		Index:    a.Index,
		Yanked:   choice.Yanked,
	}
	if a.Index == BuiltinIndexName {
		node.Source = SourceBuiltin
	}
	if choice.Yanked {
		reason := choice.Release.YankedReason
		if reason == "" {
			reason = a.YankedReason
		}
		w := fmt.Sprintf("the candidate selected for %s is a yanked version", node)
		if reason != "" {
			w += fmt.Sprintf(": %q", reason)
		}
		r.warnings = append(r.warnings, w)
		r.log.Warn(w)
	}

	sel := &graph.SelectionInfo{
		Strategy:       graph.StrategyNewest,
		Specifier:      spec.String(),
		Artifact:       a.Filename,
		DecidingFactor: "newest matching version with a compatible wheel",
	}
	if _, pinned := spec.ExactPin(); pinned {
		sel.Strategy = graph.StrategyPinned
		sel.DecidingFactor = "exact version pin"
	}

	meta, err := r.dependencies(ctx, node)
	if err != nil {
		return err
	}
	r.plan(ctx, e, st, node, meta, sel)
	return nil
}

// collectDirect resolves a package named by URL or path.
func (r *resolver) collectDirect(ctx context.Context, e *edge, st *pkgState) error {
	name := e.req.Name
	src := st.source
	r.log.Info("Collecting", "requirement", name+" @ "+src)
	r.progress(ProgressEvent{Type: ProgressCollecting, Name: name})

	artifactURL, source, err := directURL(src)
	if err != nil {
		return fmt.Errorf("%s @ %s: %w", name, src, err)
	}
	u, err := url.Parse(artifactURL)
	if err != nil {
		return fmt.Errorf("%s @ %s: %w", name, src, err)
	}
	file := index.File{Filename: path.Base(u.Path), URL: artifactURL}
	project := index.NewProject(name, "", []index.File{file}, nil)
	if len(project.Releases) == 0 {
		return &selection.NoCompatibleArtifactError{
			Name:       name,
			Specifier:  " @ " + src,
			Tags:       r.rt.TagStrings(),
			Rejections: []selection.Rejection{{Filename: file.Filename, Reason: "not a wheel or source archive of " + name}},
		}
	}

	rel := project.Releases[0]
	if !st.spec.Empty() && !st.spec.Contains(rel.Version, true) {
		return r.conflict(name, rel.VersionString(), st)
	}
	a, err := selection.Select(rel, r.rt, selection.Options{ExactPin: true})
	if err != nil {
		return err
	}

	node := &ResolvedNode{Name: name, Version: rel.VersionString(), Artifact: a, Source: source}
	meta, err := r.dependencies(ctx, node)
	if err != nil {
		return err
	}
	st.resolvedSource = src
	r.plan(ctx, e, st, node, meta, &graph.SelectionInfo{
		Strategy:       graph.StrategyDirect,
		Artifact:       a.Filename,
		DecidingFactor: "direct reference " + src,
	})
	return nil
}

// directURL turns a direct source into a fetchable URL.
func directURL(src string) (string, Source, error) {
	lower := strings.ToLower(src)
	switch {
	case strings.HasPrefix(lower, "file:"):
		return src, SourcePath, nil
	case strings.Contains(src, "://"):
		return src, SourceURL, nil
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), SourcePath, nil
}

// plan adds a node and its dependencies.
func (r *resolver) plan(ctx context.Context, e *edge, st *pkgState, node *ResolvedNode, meta *metadata.Metadata, sel *graph.SelectionInfo) {
	node.Extras = slices.Clone(e.req.Extras)
	st.node = node
	st.meta = meta

	r.builder.AddNode(node.Name, node.Version, string(node.Source), node.Extras, sel)
	r.link(e, node.Name)
	r.log.Debug("selected", "package", node.Name, "version", node.Version, "source", node.Source)
	r.progress(ProgressEvent{Type: ProgressSelected, Name: node.Name, Version: node.Version, Source: node.Source})

	if meta != nil {
		r.checkExtras(node, meta, node.Extras)
		r.enqueueDeps(ctx, e.top, node, meta, nil)
	}
}

func (r *resolver) link(e *edge, name string) {
	r.builder.AddEdge(e.from, name, e.text)
	if !slices.Contains(r.children[e.from], name) {
		r.children[e.from] = append(r.children[e.from], name)
	}
}

// enqueueDeps queues the dependencies that apply with node's extras.
// When previous is non-nil, dependencies that already applied with the
// previous extras are skipped.
func (r *resolver) enqueueDeps(ctx context.Context, top int, node *ResolvedNode, meta *metadata.Metadata, previous []string) {
	var already map[string]bool
	if previous != nil {
		already = make(map[string]bool)
		for _, req := range meta.Requires(previous, r.env) {
			already[req.String()] = true
		}
	}
	for _, req := range meta.Requires(node.Extras, r.env) {
		text := req.String()
		if already[text] {
			continue
		}
		r.queue = append(r.queue, &edge{req: req, text: text, from: node.Name, top: top})
		r.prefetch(ctx, req)
	}
}

func (r *resolver) checkExtras(node *ResolvedNode, meta *metadata.Metadata, extras []string) {
	if node.Source == SourceBuiltin {
		return
	}
	for _, x := range meta.UnknownExtras(extras) {
		w := fmt.Sprintf("%s does not provide the extra %q", node, x)
		r.warnings = append(r.warnings, w)
		r.log.Warn(w)
	}
}

// dependencies returns the core metadata of a chosen artifact: declared
// dependencies for builtin artifacts, the separately published metadata
// when the index advertises it, or else the METADATA file inside the
// artifact itself.
func (r *resolver) dependencies(ctx context.Context, node *ResolvedNode) (*metadata.Metadata, error) {
	if r.cfg.noDeps {
		return nil, nil
	}
	a := node.Artifact

	if a.Dependencies != nil {
		m := &metadata.Metadata{Name: node.Name, Version: node.Version}
		for _, d := range a.Dependencies {
			req, err := requirement.Parse(d)
			if err != nil {
				r.log.Debug("skipping unparsable dependency", "package", node.Name, "dependency", d, "error", err)
				m.Skipped = append(m.Skipped, d)
				continue
			}
			m.RequiresDist = append(m.RequiresDist, req)
		}
		return m, nil
	}

	client := r.chain.client(a.Index)
	if a.MetadataAvailable {
		data, err := client.FetchMetadata(ctx, a)
		if err == nil {
			m, perr := metadata.Parse(data)
			if perr == nil {
				return m, nil
			}
			err = perr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.log.Debug("separate metadata unusable, reading the wheel", "artifact", a.Filename, "error", err)
	}

	body, err := client.FetchArtifact(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", a.Filename, err)
	}
	m, err := metadata.FromWheelBytes(body, node.Name)
	if err != nil {
		return nil, fmt.Errorf("read metadata of %s: %w", a.Filename, err)
	}
	return m, nil
}

// prefetch starts an explicit-index query for a requirement that will
// likely need one.
func (r *resolver) prefetch(ctx context.Context, req requirement.Requirement) {
	name := req.Name
	if req.DirectSource != "" {
		return
	}
	if _, ok := r.mocks[name]; ok {
		return
	}
	if st, ok := r.states[name]; ok && (st.node != nil || st.source != "") {
		return
	}
	if c, ok := r.constraints[name]; ok && c.DirectSource != "" {
		return
	}
	if !r.cfg.forceReinstall[name] {
		if _, ok := r.installed.InstalledVersion(name); ok {
			return
		}
	}
	r.fetch(ctx, name)
}

func (r *resolver) fetch(ctx context.Context, name string) *pendingFetch {
	if f, ok := r.fetches[name]; ok {
		return f
	}
	f := &pendingFetch{done: make(chan struct{})}
	r.fetches[name] = f
	go func() {
		defer close(f.done)
		if err := r.sem.Acquire(ctx, 1); err != nil {
			f.err = err
			return
		}
		defer r.sem.Release(1)
		f.res, f.err = r.chain.queryExplicit(ctx, name)
	}()
	return f
}

// project waits for the explicit-index answer and applies the fallback
// providers.
func (r *resolver) project(ctx context.Context, name string, accept func(*index.Project) bool) (*index.Project, error) {
	f := r.fetch(ctx, name)
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	res := f.res
	if res.project != nil {
		res.project = res.project.Clone()
	}
	return r.chain.complete(ctx, name, res, accept)
}

func (r *resolver) conflict(name, chosen string, st *pkgState) error {
	return &VersionConflictError{Name: name, Chosen: chosen, Requirements: slices.Clone(st.edges)}
}

// specConflict reports a version conflict when the published versions
// satisfy each contributing specifier on its own but none satisfies all
// of them together.
func (r *resolver) specConflict(name string, st *pkgState, project *index.Project) error {
	if len(st.specs) < 2 {
		return nil
	}
	versions := project.Versions()
	if len(st.effective().Filter(versions, true)) > 0 {
		return nil
	}
	for _, s := range st.specs {
		if len(s.Filter(versions, true)) == 0 {
			return nil
		}
	}
	return r.conflict(name, "", st)
}

// affectedTops returns the top-level requirements whose closure contains
// the edge.
func (r *resolver) affectedTops(e *edge) []int {
	if e.from == "" {
		return []int{e.top}
	}
	out := []int{e.top}
	for i, t := range r.tops {
		if i != e.top && t.name != "" && r.reaches(t.name, e.from) {
			out = append(out, i)
		}
	}
	return out
}

// reaches reports whether target is in the resolved closure of start.
func (r *resolver) reaches(start, target string) bool {
	if st := r.states[start]; st == nil || st.node == nil {
		return false
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == target {
			return true
		}
		for _, c := range r.children[n] {
			if !seen[c] {
				seen[c] = true
				queue = append(queue, c)
			}
		}
	}
	return false
}

// buildPlan orders the resolved packages. After failures, only packages
// reachable from a successful top-level requirement are kept.
func (r *resolver) buildPlan() *Plan {
	g := r.builder.Build()

	var keep map[string]bool
	if len(r.failedTops) > 0 {
		keep = make(map[string]bool)
		for i, t := range r.tops {
			if r.failedTops[i] || t.name == "" {
				continue
			}
			if st := r.states[t.name]; st == nil || st.node == nil {
				continue
			}
			keep[t.name] = true
			for _, dep := range g.TransitiveDeps(t.name) {
				keep[dep] = true
			}
		}
	}

	plan := &Plan{Warnings: r.warnings, graph: g}
	for _, name := range g.Order() {
		if keep != nil && !keep[name] {
			continue
		}
		st := r.states[name]
		node := st.node
		node.Dependencies = nil
		for _, dep := range g.DirectDeps(name) {
			if dep != name && (keep == nil || keep[dep]) {
				node.Dependencies = append(node.Dependencies, dep)
			}
		}
		node.RequiredBy = nil
		for _, edge := range st.edges {
			if edge.From != constraintOrigin {
				node.RequiredBy = append(node.RequiredBy, edge)
			}
		}
		plan.Nodes = append(plan.Nodes, node)
	}
	plan.summarize()
	return plan
}

func (r *resolver) progress(ev ProgressEvent) {
	if r.cfg.onProgress != nil {
		r.cfg.onProgress(ev)
	}
}
