package types

// SelectedOption is the immutable record of one chosen menu option. It is
// written once when the cart line is priced and copied verbatim into order
// snapshots, never mutated in place.
type SelectedOption struct {
	GroupID         string `json:"group_id"`
	OptionID        string `json:"option_id"`
	Name            string `json:"name"`
	PriceDeltaCents int64  `json:"price_delta_cents"`
}

// SelectedOptions is stored as a jsonb column.
type SelectedOptions []SelectedOption

// DeltaSum returns the combined price delta of all selected options.
func (s SelectedOptions) DeltaSum() int64 {
	var sum int64
	for _, opt := range s {
		sum += opt.PriceDeltaCents
	}
	return sum
}
