package pyresolve

import (
	"slices"
	"strings"

	"github.com/albertocavalcante/go-pyresolve/selection/version"
)

// PackageChange is a package a plan installs that was not installed.
type PackageChange struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Source  Source `json:"source"`
}

// PackageUpgrade is a package whose installed version a plan replaces.
type PackageUpgrade struct {
	Name       string `json:"name"`
	OldVersion string `json:"old_version"`
	NewVersion string `json:"new_version"`
}

// PlanDiff describes what installing a plan would change.
//
//	plan, _ := pyresolve.Resolve(ctx, reqs, pyresolve.WithInstalled(state))
//	diff := pyresolve.DiffPlan(state, plan)
//	fmt.Printf("%d added, %d upgraded\n", len(diff.Added), len(diff.Upgraded))
type PlanDiff struct {
	Added      []PackageChange  `json:"added,omitempty"`
	Upgraded   []PackageUpgrade `json:"upgraded,omitempty"`
	Downgraded []PackageUpgrade `json:"downgraded,omitempty"`
	// Reinstalled holds packages resolved from an index at the version
	// already installed, which happens with WithForceReinstall.
	Reinstalled []PackageChange `json:"reinstalled,omitempty"`
}

// IsEmpty reports whether installing the plan changes nothing.
func (d *PlanDiff) IsEmpty() bool {
	return d.TotalChanges() == 0
}

// TotalChanges returns the number of packages the plan would touch.
func (d *PlanDiff) TotalChanges() int {
	return len(d.Added) + len(d.Upgraded) + len(d.Downgraded) + len(d.Reinstalled)
}

// DiffPlan compares a plan against the installed state. Packages the plan
// takes from the installed state or from mocks are not changes. Both
// arguments may be nil. Results are sorted by name.
func DiffPlan(installed InstalledState, plan *Plan) *PlanDiff {
	diff := &PlanDiff{}
	if plan == nil {
		return diff
	}
	if installed == nil {
		installed = noInstalled{}
	}

	for _, n := range plan.Nodes {
		if !n.NeedsInstall() {
			continue
		}
		old, ok := installed.InstalledVersion(n.Name)
		if !ok {
			diff.Added = append(diff.Added, PackageChange{Name: n.Name, Version: n.Version, Source: n.Source})
			continue
		}
		switch c := version.Compare(n.Version, old); {
		case c > 0:
			diff.Upgraded = append(diff.Upgraded, PackageUpgrade{Name: n.Name, OldVersion: old, NewVersion: n.Version})
		case c < 0:
			diff.Downgraded = append(diff.Downgraded, PackageUpgrade{Name: n.Name, OldVersion: old, NewVersion: n.Version})
		default:
			diff.Reinstalled = append(diff.Reinstalled, PackageChange{Name: n.Name, Version: n.Version, Source: n.Source})
		}
	}

	byName := func(a, b PackageChange) int { return strings.Compare(a.Name, b.Name) }
	upgradeByName := func(a, b PackageUpgrade) int { return strings.Compare(a.Name, b.Name) }
	slices.SortFunc(diff.Added, byName)
	slices.SortFunc(diff.Reinstalled, byName)
	slices.SortFunc(diff.Upgraded, upgradeByName)
	slices.SortFunc(diff.Downgraded, upgradeByName)
	return diff
}
