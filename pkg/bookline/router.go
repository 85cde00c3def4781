package bookline

// Node identifiers in the workflow graph.
const (
	NodeGather = "gather"
	NodeMatch  = "match"
	NodeBook   = "book"
)

// StopTurn is the router outcome for stages that wait on the user: slots
// have been presented or a booking just completed, so no further node runs
// this turn.
const StopTurn = "stop"

// Route maps the current stage and missing-field set to the next node, or
// StopTurn. It is the single place transition policy lives; every stage
// must be handled here explicitly. Returning NodeGather after the
// gathering node has already run this turn also ends the turn.
//
// Route is pure: same inputs, same answer, no side effects.
func Route(stage Stage, missingFields []string) string {
	// Unfilled required fields always go back to gathering, whatever
	// the stage says.
	if len(missingFields) > 0 {
		return NodeGather
	}

	switch stage {
	case StageProceedToFetchSlots:
		return NodeMatch
	case StageSlotsFetched:
		return StopTurn
	case StageProceedToBooking, StageCancelling:
		return NodeBook
	case StageBookingComplete:
		return StopTurn
	default:
		return NodeGather
	}
}
