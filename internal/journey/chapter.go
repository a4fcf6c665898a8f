package journey

import (
	"cmp"
	"slices"
)

// ChapterMark names the instant a chapter begins. Time is epoch milliseconds.
type ChapterMark struct {
	Time        int64
	Description string
}

// Chapter is a named sub-interval of a journey. It runs from Time until the
// next chapter begins, or until the end of the journey for the last one.
type Chapter struct {
	Time        int64  `json:"time"`
	OffsetTime  int64  `json:"offsetTime"`
	Duration    int64  `json:"duration"`
	Description string `json:"description"`
}

// End returns the epoch time at which the chapter ends.
func (c Chapter) End() int64 { return c.Time + c.Duration }

func buildChapters(marks []ChapterMark, startTime, endTime int64) []Chapter {
	if len(marks) == 0 {
		return nil
	}

	sorted := slices.Clone(marks)
	slices.SortStableFunc(sorted, func(a, b ChapterMark) int {
		return cmp.Compare(a.Time, b.Time)
	})

	chapters := make([]Chapter, len(sorted))
	for i, m := range sorted {
		next := endTime
		if i+1 < len(sorted) {
			next = sorted[i+1].Time
		}
		chapters[i] = Chapter{
			Time:        m.Time,
			OffsetTime:  m.Time - startTime,
			Duration:    next - m.Time,
			Description: m.Description,
		}
	}
	return chapters
}

// Chapters returns a copy of the journey's chapters, sorted by time.
func (j *Journey) Chapters() []Chapter { return slices.Clone(j.chapters) }

// ChapterAtTime returns the chapter whose half-open interval contains time.
// The end of the journey belongs to the last chapter.
func (j *Journey) ChapterAtTime(time float64) (Chapter, bool) {
	if len(j.chapters) == 0 {
		return Chapter{}, false
	}
	if time == float64(j.EndTime()) {
		return j.chapters[len(j.chapters)-1], true
	}
	for _, c := range j.chapters {
		if time >= float64(c.Time) && time < float64(c.End()) {
			return c, true
		}
	}
	return Chapter{}, false
}

// ChapterAtOffsetTime returns the chapter containing the given offset.
func (j *Journey) ChapterAtOffsetTime(offsetTime float64) (Chapter, bool) {
	return j.ChapterAtTime(j.OffsetTimeToTime(offsetTime))
}
