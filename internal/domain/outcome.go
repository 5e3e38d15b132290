package domain

// ItemFailure records why the input at Index was not created
type ItemFailure struct {
	Index  int               `json:"index"`
	Issues []ValidationIssue `json:"issues"`
}

// BulkOutcome aggregates the result of one submission.
// Every input index lands in exactly one of Created or Failures; Created keeps
// input order, so the i-th created record belongs to the i-th index that is
// not listed in Failures.
type BulkOutcome struct {
	Created  []*User       `json:"created"`
	Failures []ItemFailure `json:"failures"`
}

// OutcomeStatus summarizes a BulkOutcome for the boundary layer
type OutcomeStatus int

const (
	AllCreated OutcomeStatus = iota
	PartiallyCreated
	NoneCreated
)

func (s OutcomeStatus) String() string {
	switch s {
	case AllCreated:
		return "all_created"
	case PartiallyCreated:
		return "partially_created"
	default:
		return "none_created"
	}
}

// NewBulkOutcome returns an outcome with non-nil slices so it always
// serializes both sequences.
func NewBulkOutcome(size int) *BulkOutcome {
	return &BulkOutcome{
		Created:  make([]*User, 0, size),
		Failures: make([]ItemFailure, 0),
	}
}

// Status reports whether all, some, or none of the inputs were created.
func (o *BulkOutcome) Status() OutcomeStatus {
	switch {
	case len(o.Failures) == 0:
		return AllCreated
	case len(o.Created) == 0:
		return NoneCreated
	default:
		return PartiallyCreated
	}
}

// Fail records a failure for the input at index.
func (o *BulkOutcome) Fail(index int, issues ...ValidationIssue) {
	o.Failures = append(o.Failures, ItemFailure{Index: index, Issues: issues})
}

// CreatedIndexes maps each created record back to its input index.
func (o *BulkOutcome) CreatedIndexes() []int {
	failed := make(map[int]struct{}, len(o.Failures))
	for _, f := range o.Failures {
		failed[f.Index] = struct{}{}
	}
	total := len(o.Created) + len(o.Failures)
	out := make([]int, 0, len(o.Created))
	for i := 0; i < total; i++ {
		if _, ok := failed[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}
