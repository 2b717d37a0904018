package conversation

// DefaultKeepTurns is how many non-system turns survive a trim.
const DefaultKeepTurns = 6

// Trim returns the first system turn (if any) followed by the last keepTurns
// non-system turns in chronological order. The input is not modified.
// Trimming an already trimmed log with the same keepTurns is a no-op.
func Trim(turns []Turn, keepTurns int) []Turn {
	if keepTurns < 0 {
		keepTurns = 0
	}

	var system *Turn
	rest := make([]Turn, 0, len(turns))
	for i := range turns {
		if turns[i].Role == RoleSystem {
			if system == nil {
				system = &turns[i]
			}
			continue
		}
		rest = append(rest, turns[i])
	}
	if len(rest) > keepTurns {
		rest = rest[len(rest)-keepTurns:]
	}

	out := make([]Turn, 0, len(rest)+1)
	if system != nil {
		out = append(out, *system)
	}
	return append(out, rest...)
}
