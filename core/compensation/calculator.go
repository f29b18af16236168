// Package compensation turns a teacher's attendance ledger into a payable amount.
package compensation

import (
	"math"
	"time"

	"github.com/imusici/accademia/core/attendance"
)

// Summary is the outcome of a calculation. Counts and total are returned together so the
// arithmetic can be checked against the ledger.
type Summary struct {
	TeacherID    string    `json:"teacher_id"`
	CourseID     string    `json:"course_id,omitempty"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Present      int       `json:"present"`
	Absent       int       `json:"absent"`
	Justified    int       `json:"justified"` // every justified record, with or without makeup
	Makeups      int       `json:"makeups"`   // justified records with a makeup date
	PayableUnits int       `json:"payable_units"`
	Rate         float64   `json:"rate"`
	Total        float64   `json:"total"`
	Courses      []Summary `json:"courses,omitempty"` // per course parts when priced at different rates
}

// Compute classifies records and prices them at rate.
//
// Present and Absent are both payable: the lesson slot was held either way.
// A Justified record is not payable, but one carrying a makeup date adds one payable unit
// for the makeup lesson.
func Compute(records []attendance.Attendance, rate float64) Summary {
	var s Summary
	for _, a := range records {
		switch a.Status {
		case attendance.StatusPresent:
			s.Present++
		case attendance.StatusAbsent:
			s.Absent++
		case attendance.StatusJustified:
			s.Justified++
			if a.HasMakeup() {
				s.Makeups++
			}
		}
	}
	s.PayableUnits = s.Present + s.Absent + s.Makeups
	s.Rate = rate
	s.Total = float64(s.PayableUnits) * rate
	return s
}

// Merge adds up per course summaries. Rate is the common rate of the parts, or the
// average rate per payable unit when they differ.
func Merge(parts []Summary) Summary {
	if len(parts) == 1 {
		s := parts[0]
		s.CourseID = ""
		return s
	}
	var s Summary
	sameRate := true
	for i, p := range parts {
		s.Present += p.Present
		s.Absent += p.Absent
		s.Justified += p.Justified
		s.Makeups += p.Makeups
		s.PayableUnits += p.PayableUnits
		s.Total += p.Total
		if i > 0 && p.Rate != parts[0].Rate {
			sameRate = false
		}
	}
	switch {
	case len(parts) == 0:
	case sameRate:
		s.Rate = parts[0].Rate
	case s.PayableUnits > 0:
		s.Rate = math.Round(s.Total/float64(s.PayableUnits)*100) / 100
	}
	if !sameRate {
		s.Courses = parts
	}
	return s
}
