package insight

// Summary condenses a ranked insight list.
type Summary struct {
	Total int `json:"total"`
	Gains int `json:"gains"`
	Drops int `json:"drops"`
	// TopMover is the highest-ranked insight.
	TopMover *Insight `json:"top_mover"`
	// BiggestGain has the largest positive delta_pct, BiggestDrop the most
	// negative. Insights without a delta_pct are not candidates.
	BiggestGain *Insight `json:"biggest_gain"`
	BiggestDrop *Insight `json:"biggest_drop"`
}

// Summarize computes a Summary over ranked. Ties keep the earlier-ranked
// insight.
func Summarize(ranked []Insight) Summary {
	s := Summary{Total: len(ranked)}
	for i := range ranked {
		in := &ranked[i]
		if i == 0 {
			s.TopMover = in
		}
		switch in.Direction {
		case Up:
			s.Gains++
		case Down:
			s.Drops++
		}
		if in.DeltaPct == nil {
			continue
		}
		if p := *in.DeltaPct; p > 0 && (s.BiggestGain == nil || p > *s.BiggestGain.DeltaPct) {
			s.BiggestGain = in
		}
		if p := *in.DeltaPct; p < 0 && (s.BiggestDrop == nil || p < *s.BiggestDrop.DeltaPct) {
			s.BiggestDrop = in
		}
	}
	return s
}
