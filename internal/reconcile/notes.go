package reconcile

import "time"

// Unlock reasons.
const (
	ReasonFree        = "free"
	ReasonPaid        = "paid"
	ReasonCredit      = "credit"
	ReasonUnpaid      = "unpaid"
	ReasonNoClasses   = "no-classes"
	ReasonUnmapped    = "unmapped"
	ReasonInvalidDate = "invalid-date"
)

// Note is the part of a content item the gate looks at.
type Note struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	RequiresPayment bool       `json:"requires_payment"`
	ClassDate       string     `json:"class_date,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// PostedAt returns updated_at, falling back to created_at.
func (n Note) PostedAt() (time.Time, bool) {
	switch {
	case n.UpdatedAt != nil && !n.UpdatedAt.IsZero():
		return *n.UpdatedAt, true
	case n.CreatedAt != nil && !n.CreatedAt.IsZero():
		return *n.CreatedAt, true
	default:
		return time.Time{}, false
	}
}

// NoteUnlockDecision is the gate's verdict for one (note, student) pair.
type NoteUnlockDecision struct {
	NoteID           string `json:"note_id"`
	Unlocked         bool   `json:"unlocked"`
	Reason           string `json:"reason"`
	MatchedClassDate *Date  `json:"matched_class_date,omitempty"`
}

// MapNoteToClassDate assigns a posting date to the latest class on or before it,
// or to the first class when it precedes them all. classDates must be sorted.
func MapNoteToClassDate(posted Date, classDates []Date) (Date, bool) {
	if len(classDates) == 0 {
		return Date{}, false
	}
	mapped := classDates[0]
	for _, d := range classDates {
		if d.After(posted) {
			break
		}
		mapped = d
	}
	return mapped, true
}

// ShouldUnlockNote decides whether a student may open a note.
//
// Notes with an explicit class date are judged on that date; an unreadable
// class date matches nothing and stays locked. Otherwise the
// posting time, read in loc, is mapped onto that month's classes; a month with
// no classes unlocks the note rather than hiding it indefinitely.
func ShouldUnlockNote(note Note, acct *Account, s Schedule, today Date, loc *time.Location) NoteUnlockDecision {
	decision := NoteUnlockDecision{NoteID: note.ID}
	if !note.RequiresPayment {
		decision.Unlocked = true
		decision.Reason = ReasonFree
		return decision
	}
	if acct == nil {
		acct = &Account{}
	}

	if note.ClassDate != "" {
		d, err := ParseDate(note.ClassDate)
		if err != nil {
			decision.Reason = ReasonInvalidDate
			return decision
		}
		return judgeDate(decision, acct, d, today)
	}

	posted, ok := note.PostedAt()
	if !ok {
		decision.Unlocked = true
		decision.Reason = ReasonUnmapped
		return decision
	}
	if loc == nil {
		loc = time.UTC
	}
	postedDate := DateOf(posted.In(loc))

	classDates := ExpandMonth(s, postedDate.Year, postedDate.Month)
	mapped, ok := MapNoteToClassDate(postedDate, classDates)
	if !ok {
		decision.Unlocked = true
		decision.Reason = ReasonNoClasses
		return decision
	}
	return judgeDate(decision, acct, mapped, today)
}

func judgeDate(decision NoteUnlockDecision, acct *Account, d Date, today Date) NoteUnlockDecision {
	decision.MatchedClassDate = &d
	if match, ok := MatchPayment(d, acct.Payments, today); ok && match.Amount.IsPositive() {
		decision.Unlocked = true
		decision.Reason = ReasonPaid
		return decision
	}
	if NewDateSet(acct.CreditDates...).Has(d) {
		decision.Unlocked = true
		decision.Reason = ReasonCredit
		return decision
	}
	decision.Reason = ReasonUnpaid
	return decision
}

// NoteAccess evaluates a batch of notes for one student, keyed by note id.
func NoteAccess(notes []Note, acct *Account, s Schedule, today Date, loc *time.Location) map[string]NoteUnlockDecision {
	out := make(map[string]NoteUnlockDecision, len(notes))
	for _, n := range notes {
		out[n.ID] = ShouldUnlockNote(n, acct, s, today, loc)
	}
	return out
}
