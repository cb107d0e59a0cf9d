package domain

import "testing"

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name      string
		active    int
		total     int
		target    int
		targetSet bool
		want      Progress
	}{
		{
			name:   "no target configured",
			active: 3, total: 4,
			want: Progress{ActiveReferrals: 3, TotalReferrals: 4},
		},
		{
			name:   "zero target treated as unset",
			active: 3, total: 4, target: 0, targetSet: true,
			want: Progress{ActiveReferrals: 3, TotalReferrals: 4},
		},
		{
			name:   "partial progress",
			active: 2, total: 5, target: 5, targetSet: true,
			want: Progress{
				ActiveReferrals: 2, TotalReferrals: 5,
				Target: 5, TargetSet: true, Remaining: 3, Percent: 40,
			},
		},
		{
			name:   "target exactly reached",
			active: 5, total: 5, target: 5, targetSet: true,
			want: Progress{
				ActiveReferrals: 5, TotalReferrals: 5,
				Target: 5, TargetSet: true, TargetReached: true, Percent: 100,
			},
		},
		{
			name:   "overshoot clamps percent",
			active: 8, total: 9, target: 5, targetSet: true,
			want: Progress{
				ActiveReferrals: 8, TotalReferrals: 9,
				Target: 5, TargetSet: true, TargetReached: true, Percent: 100,
			},
		},
		{
			name:   "no referrals yet",
			active: 0, total: 0, target: 10, targetSet: true,
			want: Progress{Target: 10, TargetSet: true, Remaining: 10},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeProgress(tc.active, tc.total, tc.target, tc.targetSet)
			if got != tc.want {
				t.Fatalf("ComputeProgress = %+v, want %+v", got, tc.want)
			}
		})
	}
}
