package matching

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/regwatch/regwatch/internal/regwatch"
)

var capitalUpdate = regwatch.RegulatoryUpdate{
	ID:            "u",
	Headline:      "PRA consults on capital buffers",
	ImpactSummary: "Banks may need to raise CET1 ratios.",
	FocusArea:     "Prudential",
	Authority:     "Prudential Regulation Authority (PRA)",
	Sector:        regwatch.SectorBanking,
}

// TestEvaluateEmptyWatchListScoresZero scores an unconfigured watch list as zero.
func TestEvaluateEmptyWatchListScoresZero(t *testing.T) {
	t.Parallel()

	s := Evaluate(regwatch.WatchList{Keywords: []string{" ", ""}}, capitalUpdate)
	require.Zero(t, s.Value)
	require.Empty(t, s.Reasons)
	require.False(t, s.Qualifies(0))
}

// TestEvaluateComponents checks each dimension's contribution.
func TestEvaluateComponents(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		wl      regwatch.WatchList
		want    float64
		reasons []string
	}{
		{
			name:    "one of two keywords",
			wl:      regwatch.WatchList{Keywords: []string{"capital", "liquidity"}},
			want:    0.5,
			reasons: []string{"keyword: capital"},
		},
		{
			name:    "keywords saturate at three",
			wl:      regwatch.WatchList{Keywords: []string{"capital", "buffers", "CET1", "pensions"}},
			want:    1,
			reasons: []string{"keyword: capital", "keyword: buffers", "keyword: CET1"},
		},
		{
			name:    "whole words only",
			wl:      regwatch.WatchList{Keywords: []string{"capita", "buffer"}},
			want:    0,
			reasons: nil,
		},
		{
			name:    "authority containment",
			wl:      regwatch.WatchList{Keywords: []string{"liquidity"}, Authorities: []string{"pra"}},
			want:    0.3333,
			reasons: []string{"authority: pra"},
		},
		{
			name:    "authority full name",
			wl:      regwatch.WatchList{Authorities: []string{"prudential regulation authority"}},
			want:    1,
			reasons: []string{"authority: prudential regulation authority"},
		},
		{
			name:    "authority partial word",
			wl:      regwatch.WatchList{Keywords: []string{"liquidity"}, Authorities: []string{"Prudential Reg"}},
			want:    0,
			reasons: nil,
		},
		{
			name:    "sector case-insensitive",
			wl:      regwatch.WatchList{Sectors: []string{"banking"}, Authorities: []string{"FCA"}},
			want:    0.5,
			reasons: []string{"sector: banking"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := Evaluate(tc.wl, capitalUpdate)
			require.InDelta(t, tc.want, s.Value, 1e-9)
			require.Equal(t, tc.reasons, s.Reasons)
		})
	}
}

// TestEvaluateShortAuthorityDoesNotMatchLongerName ensures an update naming a
// fragment of a configured authority does not count as that authority.
func TestEvaluateShortAuthorityDoesNotMatchLongerName(t *testing.T) {
	t.Parallel()

	wl := regwatch.WatchList{Authorities: []string{"Bank of England"}}
	short := regwatch.RegulatoryUpdate{ID: "u", Headline: "notice", Authority: "Bank"}
	require.Zero(t, Evaluate(wl, short).Value)

	full := regwatch.RegulatoryUpdate{ID: "u", Headline: "notice", Authority: "Bank of England (PRA)"}
	s := Evaluate(wl, full)
	require.InDelta(t, 1, s.Value, 1e-9)
	require.Equal(t, []string{"authority: Bank of England"}, s.Reasons)
}

// TestEvaluateKeywordMonotonic ensures adding a matching keyword never lowers the score.
func TestEvaluateKeywordMonotonic(t *testing.T) {
	t.Parallel()

	bases := []regwatch.WatchList{
		{},
		{Keywords: []string{"liquidity"}},
		{Keywords: []string{"capital", "liquidity", "solvency"}},
		{Authorities: []string{"FCA"}},
		{Authorities: []string{"PRA"}, Sectors: []string{"Insurance"}},
	}
	for _, base := range bases {
		before := Evaluate(base, capitalUpdate).Value
		with := base
		with.Keywords = append(append([]string(nil), base.Keywords...), "buffers")
		after := Evaluate(with, capitalUpdate).Value
		require.GreaterOrEqual(t, after, before, "%+v", base)
	}
}

// TestQualifiesRespectsThreshold applies the threshold and the zero-score rule.
func TestQualifiesRespectsThreshold(t *testing.T) {
	t.Parallel()

	require.True(t, Score{Value: 0.5}.Qualifies(0.5))
	require.False(t, Score{Value: 0.49}.Qualifies(0.5))
	require.True(t, Score{Value: 0.01}.Qualifies(0))
	require.False(t, Score{}.Qualifies(0))
}
