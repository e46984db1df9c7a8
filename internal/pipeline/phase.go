package pipeline

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseGrouping
	PhaseAggregating
	PhaseRanking
	PhasePersisting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseGrouping:
		return "grouping"
	case PhaseAggregating:
		return "aggregating"
	case PhaseRanking:
		return "ranking"
	case PhasePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}
