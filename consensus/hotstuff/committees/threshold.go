package committees

// QuorumThreshold is the smallest weight strictly above two thirds of
// totalWeight. Votes or timeouts of that weight form a QC or a TC.
func QuorumThreshold(totalWeight uint64) uint64 {
	// 2*total/3 < t  <=>  t = 2*floor(total/3) + max(1, total mod 3)
	third, rest := totalWeight/3, totalWeight%3
	if rest == 0 {
		rest = 1
	}
	return 2*third + rest
}

// TimeoutThreshold is the smallest weight strictly above one third of
// totalWeight. Any set of timeouts that heavy contains an honest replica.
func TimeoutThreshold(totalWeight uint64) uint64 {
	return totalWeight/3 + 1
}
