package directory

const (
	JoinableStateJoinable = "joinable"
	GameTypeBattle        = "Battle"
)

// Filter returns, in input order, the entries that are joinable Battle
// servers with at least minimumPlayers players and an address to probe.
func Filter(entries []Entry, minimumPlayers int) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if Eligible(e, minimumPlayers) {
			out = append(out, e)
		}
	}
	return out
}

func Eligible(e Entry, minimumPlayers int) bool {
	if e.Error || e.JoinableState == nil || e.GameType == nil || e.Players == nil || e.Address == nil {
		return false
	}
	return *e.JoinableState == JoinableStateJoinable &&
		*e.GameType == GameTypeBattle &&
		*e.Players >= minimumPlayers
}
