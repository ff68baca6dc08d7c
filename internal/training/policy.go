package training

// BestMetricPolicy decides when a validation metric earns a checkpoint: strictly below the best
// seen so far, starting from an initial threshold
type BestMetricPolicy struct {
	best float64
}

// NewBestMetricPolicy starts from initial; a run that never beats it writes nothing
func NewBestMetricPolicy(initial float64) *BestMetricPolicy {
	return &BestMetricPolicy{best: initial}
}

// Observe records metric and reports whether it is a new best
func (p *BestMetricPolicy) Observe(metric float64) bool {
	if metric < p.best {
		p.best = metric
		return true
	}
	return false
}

// Best returns the current threshold
func (p *BestMetricPolicy) Best() float64 {
	return p.best
}
