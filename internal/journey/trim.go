package journey

import "slices"

// TrimPositions drops positions within trimStart milliseconds of the first
// position and within trimEnd milliseconds of the last. Positions must be
// sorted by timestamp. The input slice is not modified.
func TrimPositions(positions []Position, trimStart, trimEnd int64) []Position {
	out := slices.Clone(positions)
	if len(out) == 0 {
		return out
	}

	endCutoff := out[len(out)-1].Timestamp - trimEnd
	if i := slices.IndexFunc(out, func(p Position) bool { return p.Timestamp > endCutoff }); i >= 0 {
		out = out[:i]
	}
	if len(out) == 0 {
		return out
	}

	startCutoff := out[0].Timestamp + trimStart
	if i := slices.IndexFunc(out, func(p Position) bool { return p.Timestamp >= startCutoff }); i >= 0 {
		out = out[i:]
	}

	return out
}

// Trim returns a journey without its first trimStart and last trimEnd
// milliseconds, as TrimPositions does. Chapters that end before the new
// start or begin after the new end are dropped; the chapter in progress at
// the new start is moved to it.
func (j *Journey) Trim(trimStart, trimEnd int64) (*Journey, error) {
	positions := TrimPositions(j.positions, trimStart, trimEnd)
	if len(positions) < 2 {
		return nil, ErrInsufficientPositions
	}
	start, end := positions[0].Timestamp, positions[len(positions)-1].Timestamp

	var marks []ChapterMark
	for _, c := range j.chapters {
		if c.Time > end || (c.Time < start && c.End() <= start) {
			continue
		}
		marks = append(marks, ChapterMark{Time: max(c.Time, start), Description: c.Description})
	}
	return New(positions, marks...)
}
