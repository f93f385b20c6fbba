package session

import "chatsync/pkg/models"

// DayGroup is one rendered block of the log: every message stamped on the
// same calendar day (UTC), in arrival order. Position comes from arrival
// order, never from re-sorting by timestamp; the design assumes arrival
// is monotonic enough for the day blocks to stay coherent.
type DayGroup struct {
	Date     string // "2006-01-02", empty for unparseable stamps
	Messages []models.Message
}

// GroupedLog returns the day-grouped view model the rendering layer
// consumes. Consecutive messages sharing a date form one group.
func (s *Session) GroupedLog() []DayGroup {
	var groups []DayGroup
	s.do(func() {
		for _, m := range s.log {
			date := ""
			if at, ok := models.ParseStamp(m.At); ok {
				date = at.UTC().Format("2006-01-02")
			}
			if len(groups) == 0 || groups[len(groups)-1].Date != date {
				groups = append(groups, DayGroup{Date: date})
			}
			g := &groups[len(groups)-1]
			g.Messages = append(g.Messages, m)
		}
	})
	return groups
}
