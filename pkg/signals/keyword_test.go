package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capgate-project/capgate/pkg/config"
)

func testSignalConfig() config.SignalConfig {
	return config.SignalConfig{
		DirectConfidence:     0.9,
		ContextualConfidence: 0.7,
		ActionConfidence:     0.5,
	}
}

func testCatalog() []config.Category {
	return []config.Category{
		{
			ID:   "git",
			Tier: 2,
			Keywords: config.KeywordTiers{
				Direct:     []string{"git", "branch", "commit", "pull request"},
				Contextual: []string{"repository", "conflict"},
				Action:     []string{"push", "revert"},
			},
		},
		{
			ID:   "test",
			Tier: 2,
			Keywords: config.KeywordTiers{
				Direct:     []string{"test", "unit test"},
				Contextual: []string{"assertion", "flaky"},
				Action:     []string{"run", "verify"},
			},
		},
	}
}

func TestKeywordExtractor(t *testing.T) {
	ke, err := NewKeywordExtractor(testCatalog(), testSignalConfig())
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		want  ConfidenceMap
	}{
		{
			name:  "direct match wins",
			query: "create a new git branch",
			want:  ConfidenceMap{"git": 0.9},
		},
		{
			name:  "direct beats contextual and action in same category",
			query: "git push to the repository",
			want:  ConfidenceMap{"git": 0.9},
		},
		{
			name:  "contextual and action take max not sum",
			query: "push the repository changes",
			want:  ConfidenceMap{"git": 0.7},
		},
		{
			name:  "action only",
			query: "push it",
			want:  ConfidenceMap{"git": 0.5},
		},
		{
			name:  "multi word direct keyword",
			query: "open a pull request for me",
			want:  ConfidenceMap{"git": 0.9},
		},
		{
			name:  "two categories",
			query: "commit the code and run the unit test suite",
			want:  ConfidenceMap{"git": 0.9, "test": 0.9},
		},
		{
			name:  "word boundary prevents substring match",
			query: "testing the protester",
			want:  ConfidenceMap{},
		},
		{
			name:  "case insensitive",
			query: "GIT Branch",
			want:  ConfidenceMap{"git": 0.9},
		},
		{
			name:  "empty query",
			query: "",
			want:  ConfidenceMap{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ke.Extract(&Request{Query: tt.query})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeywordExtractorName(t *testing.T) {
	ke, err := NewKeywordExtractor(nil, testSignalConfig())
	require.NoError(t, err)
	assert.Equal(t, SignalKeyword, ke.Name())
}
