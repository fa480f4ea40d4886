package types

// PerformanceMarker is one stripe's progress report from a third-party copy.
// Times are unix seconds.
type PerformanceMarker struct {
	Index           int
	Count           int
	Begin           int64
	Latest          int64
	Transferred     int64
	TransferAvg     int64
	TransferInstant int64
}

// PerformanceData aggregates markers across all stripes of one transfer.
type PerformanceData struct {
	Begin   int64
	Latest  int64
	Markers []PerformanceMarker
}

// Update folds a marker into the aggregate. Markers with an out of range
// index are dropped.
func (p *PerformanceData) Update(in PerformanceMarker) {
	if in.Count < 0 {
		return
	}
	if len(p.Markers) != in.Count {
		resized := make([]PerformanceMarker, in.Count)
		copy(resized, p.Markers)
		p.Markers = resized
	}
	if in.Index < 0 || in.Index >= len(p.Markers) {
		return
	}

	m := &p.Markers[in.Index]
	if m.Begin == 0 {
		m.Begin = in.Latest
	}

	absElapsed := in.Latest - m.Begin
	diffElapsed := in.Latest - m.Latest
	diffSize := in.Transferred - m.Transferred

	m.Index = in.Index
	m.Count = in.Count
	m.Latest = in.Latest
	m.Transferred = in.Transferred
	if absElapsed != 0 {
		m.TransferAvg = m.Transferred / absElapsed
	}
	if diffElapsed != 0 {
		m.TransferInstant = diffSize / diffElapsed
	}

	if p.Begin == 0 || p.Begin < m.Begin {
		p.Begin = m.Begin
	}
	if p.Latest < m.Latest {
		p.Latest = m.Latest
	}
}

// AbsElapsed is the number of seconds covered by the markers.
func (p *PerformanceData) AbsElapsed() int64 {
	return p.Latest - p.Begin
}

// AvgTransfer sums the average rate of every stripe, in bytes per second.
func (p *PerformanceData) AvgTransfer() int64 {
	var total int64
	for _, m := range p.Markers {
		total += m.TransferAvg
	}
	return total
}

// DiffTransfer sums the instantaneous rate of every stripe.
func (p *PerformanceData) DiffTransfer() int64 {
	var total int64
	for _, m := range p.Markers {
		total += m.TransferInstant
	}
	return total
}

// TotalTransferred sums bytes moved across stripes.
func (p *PerformanceData) TotalTransferred() int64 {
	var total int64
	for _, m := range p.Markers {
		total += m.Transferred
	}
	return total
}
