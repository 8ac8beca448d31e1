package decision_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/capgate-project/capgate/pkg/config"
	"github.com/capgate-project/capgate/pkg/decision"
	"github.com/capgate-project/capgate/pkg/signals"
)

func TestDecisionSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Decision Engine Suite")
}

func suiteConfig() *config.EngineConfig {
	cfg := &config.EngineConfig{
		Categories: []config.Category{
			{ID: "core", Tier: 1, DefaultSafe: true},
			{
				ID: "git", Tier: 2, DefaultSafe: true,
				Keywords: config.KeywordTiers{
					Direct:     []string{"git", "branch", "commit", "merge"},
					Contextual: []string{"repository", "conflict"},
					Action:     []string{"push", "revert"},
				},
			},
			{
				ID: "test", Tier: 2, DefaultSafe: true,
				Keywords: config.KeywordTiers{
					Direct:     []string{"test", "tests", "unit tests", "coverage"},
					Contextual: []string{"assertion", "flaky"},
					Action:     []string{"verify"},
				},
			},
			{
				ID: "debug", Tier: 2,
				Keywords: config.KeywordTiers{
					Direct:     []string{"debug", "breakpoint", "stacktrace"},
					Contextual: []string{"crash", "panic"},
				},
			},
			{
				ID: "security", Tier: 3,
				Keywords: config.KeywordTiers{
					Direct: []string{"security", "vulnerability", "secret"},
				},
			},
		},
		Signals: config.SignalConfig{
			ContextClues: []config.ContextClue{
				{Kind: "error", Pattern: "panic", Category: "debug", Confidence: 0.85},
			},
			EnvironmentRules: []config.EnvironmentRule{
				{Flag: "merge_conflict", Category: "git", Confidence: 0.8},
				{Flag: "failing_tests", Category: "test", Confidence: 0.7},
			},
		},
		Fallback: config.FallbackConfig{
			ErrorContextDefaults: []string{"debug", "test"},
			DirtyTreeDefaults:    []string{"git"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

var _ = Describe("Decision engine scenarios", func() {
	var engine *decision.Engine

	BeforeEach(func() {
		var err error
		engine, err = decision.New(suiteConfig())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("query-driven loading", func() {
		It("loads git and test precisely for a clear multi-domain request", func() {
			d := engine.Decide(&signals.Request{
				Query: "update the git branch and run the unit tests",
			})

			Expect(d.Level).To(Equal(decision.LevelHighConfidence))
			Expect(d.Categories).To(ContainElements("git", "test", "core"))
			Expect(d.Categories).NotTo(ContainElements("security", "debug"))
		})

		It("withholds tier-3 categories without strong evidence", func() {
			d := engine.Decide(&signals.Request{Query: "commit the changes"})

			Expect(d.Categories).To(ContainElement("git"))
			Expect(d.Categories).NotTo(ContainElement("security"))
		})

		It("loads tier-3 security only on a decisive signal", func() {
			d := engine.Decide(&signals.Request{Query: "rotate the leaked secret"})

			Expect(d.Categories).To(ContainElement("security"))
		})
	})

	Describe("environment-driven loading", func() {
		It("surfaces debugging from recent panic output on a vague query", func() {
			d := engine.Decide(&signals.Request{
				Query: "fix this please",
				Environment: signals.EnvironmentSnapshot{
					RecentErrorOutput: "goroutine 1: panic: nil dereference",
				},
			})

			Expect(d.Categories).To(ContainElement("debug"))
		})

		It("adds git during a merge conflict", func() {
			d := engine.Decide(&signals.Request{
				Query:       "help me finish this",
				Environment: signals.EnvironmentSnapshot{MergeConflict: true},
			})

			Expect(d.Categories).To(ContainElement("git"))
		})
	})

	Describe("degraded inputs", func() {
		It("answers an empty query with the conservative defaults", func() {
			d := engine.Decide(&signals.Request{Query: ""})

			Expect(d.Level).To(Equal(decision.LevelLowConfidence))
			Expect(d.Categories).To(ConsistOf("core", "git", "test"))
		})

		It("never returns an empty category set", func() {
			for _, q := range []string{"", "x", "completely unrelated nonsense", "panic merge test secret"} {
				d := engine.Decide(&signals.Request{Query: q})
				Expect(d.Categories).NotTo(BeEmpty(), "query %q", q)
				Expect(d.Categories).To(ContainElement("core"))
			}
		})
	})

	Describe("session continuity", func() {
		It("keeps recently used categories warm on a follow-up", func() {
			d := engine.Decide(&signals.Request{
				Query: "now do the same for the other module",
				History: []signals.HistoryEntry{
					{Query: "run the tests in module a", Categories: []string{"test"}, At: time.Now()},
				},
			})

			Expect(d.Scores["test"]).To(BeNumerically(">", 0))
		})
	})
})
