package score

import "testing"

func TestAnalysisScore(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 100},
		{1, 90},
		{2, 80},
		{9, 10},
		{10, 0},
		{25, 0},
		{-3, 100},
	}
	for _, tt := range tests {
		if got := AnalysisScore(tt.n); got != tt.want {
			t.Errorf("AnalysisScore(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestAnalysisScore_MonotonicAndBounded(t *testing.T) {
	prev := AnalysisScore(0)
	for n := 1; n <= 50; n++ {
		cur := AnalysisScore(n)
		if cur > prev {
			t.Fatalf("score increased from %d to %d at n=%d", prev, cur, n)
		}
		if cur < 0 || cur > 100 {
			t.Fatalf("score %d out of bounds at n=%d", cur, n)
		}
		prev = cur
	}
}

func TestAggregateScore(t *testing.T) {
	if got := AggregateScore(nil, DefaultAggregateScore); got != 85 {
		t.Fatalf("empty history = %d, want 85", got)
	}
	if got := AggregateScore([]int{90, 80, 75}, DefaultAggregateScore); got != 82 {
		t.Fatalf("mean of 90,80,75 = %d, want 82", got)
	}
	if got := AggregateScore([]int{90, 81}, DefaultAggregateScore); got != 86 {
		t.Fatalf("mean of 90,81 rounds to %d, want 86", got)
	}
	if got := AggregateScore([]int{150, -20}, DefaultAggregateScore); got != 50 {
		t.Fatalf("clamped mean = %d, want 50", got)
	}
	if got := AggregateScore(nil, 140); got != 100 {
		t.Fatalf("default is capped, got %d", got)
	}
}

func TestUserStatsUpdate(t *testing.T) {
	tests := []struct {
		n          int
		wantPoints int
		wantScore  int
	}{
		{0, 10, 100},
		{1, 15, 97},
		{4, 30, 88},
		{34, 180, 0},
	}
	for _, tt := range tests {
		got := UserStatsUpdate(tt.n)
		if got.PointsGained != tt.wantPoints || got.SecurityScore != tt.wantScore {
			t.Errorf("UserStatsUpdate(%d) = %+v, want points=%d score=%d", tt.n, got, tt.wantPoints, tt.wantScore)
		}
	}
}

func TestFormulasDiffer(t *testing.T) {
	if AnalysisScore(2) == UserStatsUpdate(2).SecurityScore {
		t.Fatal("per-analysis and profile formulas must stay distinct")
	}
}

func TestComputeAggregateStats(t *testing.T) {
	empty := ComputeAggregateStats(nil, nil, DefaultAggregateScore)
	if empty.AverageScore != 85 || empty.TotalAnalyses != 0 || empty.TotalFindings != 0 || empty.Trend != TrendNone {
		t.Fatalf("unexpected empty stats %+v", empty)
	}

	tests := []struct {
		name   string
		scores []int
		counts []int
		avg    int
		trend  Trend
	}{
		{"single", []int{70}, []int{3}, 70, TrendNone},
		{"improving", []int{60, 70, 90}, []int{4, 3, 1}, 73, TrendImproving},
		{"declining", []int{100, 90, 50}, []int{0, 1, 5}, 80, TrendDeclining},
		{"stable", []int{80, 80}, []int{2, 2}, 80, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAggregateStats(tt.scores, tt.counts, DefaultAggregateScore)
			if got.AverageScore != tt.avg || got.Trend != tt.trend || got.TotalAnalyses != len(tt.scores) {
				t.Fatalf("unexpected stats %+v", got)
			}
			sum := 0
			for _, c := range tt.counts {
				sum += c
			}
			if got.TotalFindings != sum {
				t.Fatalf("total findings = %d, want %d", got.TotalFindings, sum)
			}
		})
	}
}
