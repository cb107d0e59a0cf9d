package domain

// Progress describes one referrer's standing against the active target.
//
// When no active target is configured TargetSet is false and Remaining,
// TargetReached and Percent all stay at their zero values.
type Progress struct {
	ActiveReferrals int
	TotalReferrals  int
	Target          int
	TargetSet       bool
	Remaining       int
	TargetReached   bool
	Percent         float64
}

// ComputeProgress derives progress from edge counters and the active
// target level. Only active referrals count toward the target.
func ComputeProgress(active int, total int, target int, targetSet bool) Progress {
	progress := Progress{
		ActiveReferrals: active,
		TotalReferrals:  total,
	}
	if !targetSet || target <= 0 {
		return progress
	}
	progress.Target = target
	progress.TargetSet = true
	progress.TargetReached = active >= target
	if remaining := target - active; remaining > 0 {
		progress.Remaining = remaining
	}
	percent := float64(active) / float64(target) * 100
	if percent > 100 {
		percent = 100
	}
	progress.Percent = percent
	return progress
}
