package signals

import (
	"github.com/capgate-project/capgate/pkg/config"
)

// EnvironmentExtractor maps flags of the caller-supplied environment
// snapshot to per-category confidences via the configured rule table.
// It performs no I/O; the snapshot is fetched by the caller before the
// request enters the pipeline.
type EnvironmentExtractor struct {
	rules []config.EnvironmentRule
}

func NewEnvironmentExtractor(cfg config.SignalConfig) *EnvironmentExtractor {
	return &EnvironmentExtractor{rules: cfg.EnvironmentRules}
}

func (e *EnvironmentExtractor) Name() string { return SignalEnvironment }

func (e *EnvironmentExtractor) Extract(req *Request) (ConfidenceMap, error) {
	out := make(ConfidenceMap)
	env := req.Environment

	for _, rule := range e.rules {
		var set bool
		switch rule.Flag {
		case "dirty_worktree":
			set = env.DirtyWorktree
		case "merge_conflict":
			set = env.MergeConflict
		case "failing_tests":
			set = env.FailingTests
		case "has_test_dir":
			set = env.HasTestDir
		case "has_security_dir":
			set = env.HasSecurityDir
		case "has_infra_dir":
			set = env.HasInfraDir
		}
		if set {
			out.merge(rule.Category, rule.Confidence)
		}
	}
	return out, nil
}
