package model

// Metrics holds the four-way confusion counters partitioned by
// (ground truth is attacker) x (match decision). Counters only increment;
// FAR/FRR are derived on read, never stored.
type Metrics struct {
	TrueAccepts  uint64 `json:"trueAccepts"`
	FalseRejects uint64 `json:"falseRejects"`
	TrueRejects  uint64 `json:"trueRejects"`
	FalseAccepts uint64 `json:"falseAccepts"`
}

// FAR returns the false acceptance rate: the fraction of impostor attempts
// wrongly accepted. Zero when no impostor attempts were observed.
func (m Metrics) FAR() float64 {
	total := m.FalseAccepts + m.TrueRejects
	if total == 0 {
		return 0
	}
	return float64(m.FalseAccepts) / float64(total)
}

// FRR returns the false rejection rate: the fraction of genuine attempts
// wrongly rejected. Zero when no genuine attempts were observed.
func (m Metrics) FRR() float64 {
	total := m.FalseRejects + m.TrueAccepts
	if total == 0 {
		return 0
	}
	return float64(m.FalseRejects) / float64(total)
}
