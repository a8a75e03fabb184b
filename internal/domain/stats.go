package domain

// StatusCounts summarizes the record set by overall status in a single pass.
type StatusCounts struct {
	Total   int64
	Normal  int64
	Failure int64
	Machine int64
}

// FailureModeTotals carries the per-mode failure sums across all records.
type FailureModeTotals struct {
	TWF int64
	HDF int64
	PWF int64
	OSF int64
	RNF int64
}
