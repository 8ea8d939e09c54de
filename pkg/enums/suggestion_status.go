package enums

// SuggestionStatus marks whether a ranked candidate may still be offered.
type SuggestionStatus string

const (
	SuggestionStatusSuggested SuggestionStatus = "suggested"
	SuggestionStatusSelected  SuggestionStatus = "selected"
	SuggestionStatusWithdrawn SuggestionStatus = "withdrawn"
)

// OfferableSuggestionStatuses are the statuses the candidate pool draws from.
var OfferableSuggestionStatuses = []SuggestionStatus{
	SuggestionStatusSuggested,
	SuggestionStatusSelected,
}
