package retention

import (
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Store applies decisions to wherever the artifacts live
type Store interface {
	Delete(a Artifact) error
	Rename(a Artifact, to Tag) error
}

// Result counts what a pass did
type Result struct {
	Kept    int
	Renamed int
	Deleted int
	Failed  int
}

// Pruner runs retention passes against a Store
type Pruner struct {
	policy *Policy
	log    *zap.Logger
}

// NewPruner returns a pruner for the given policy
func NewPruner(policy *Policy, log *zap.Logger) *Pruner {
	if policy == nil {
		policy = &Policy{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	policy.SetDefaults()
	return &Pruner{policy: policy, log: log}
}

// Prune plans & applies a pass over one subject's artifacts.
//
// A failing delete or rename is logged and the pass carries on; all failures are
// returned together.
func (p *Pruner) Prune(store Store, in []Artifact) (*Result, error) {
	result := &Result{}
	var errs error

	for _, d := range Plan(p.policy, in) {
		var err error
		switch d.Action {
		case ActionDelete:
			err = store.Delete(d.Artifact)
			if err == nil {
				result.Deleted++
			}
		case ActionRename:
			err = store.Rename(d.Artifact, d.Tag)
			if err == nil {
				result.Renamed++
			}
		default:
			result.Kept++
		}
		if err != nil {
			result.Failed++
			errs = multierror.Append(errs, err)
			p.log.Warn("retention action failed",
				zap.String("artifact", d.Artifact.Name),
				zap.String("action", string(d.Action)),
				zap.String("tag", string(d.Tag)),
				zap.Error(err),
			)
		}
	}

	p.log.Debug("retention pass",
		zap.Int("kept", result.Kept),
		zap.Int("renamed", result.Renamed),
		zap.Int("deleted", result.Deleted),
		zap.Int("failed", result.Failed),
	)
	return result, errs
}
