package snapshot

import (
	"errors"
	"sort"
)

type DeploymentFailure struct {
	DeploymentID string
	TenantID     string
	Err          error
}

// RunReport summarises one billing period. A failed deployment never stops
// the others from being billed.
type RunReport struct {
	Period    Period
	LeaseHeld bool
	Billed    []string
	Skipped   []string
	Failed    []DeploymentFailure
}

// Err joins the per-deployment failures.
func (r RunReport) Err() error {
	var err error
	for _, f := range r.Failed {
		err = errors.Join(err, f.Err)
	}
	return err
}

func (r *RunReport) sort() {
	sort.Strings(r.Billed)
	sort.Strings(r.Skipped)
	sort.Slice(r.Failed, func(i, j int) bool {
		return r.Failed[i].DeploymentID < r.Failed[j].DeploymentID
	})
}
