package models

import "time"

// Group is a class group with a shared weekly timetable.
type Group struct {
	GroupName string `db:"group_name" json:"group_name"`
	// Schedule is the JSON timetable {"Monday": ["17:00"], ...}.
	Schedule  []byte     `db:"schedule" json:"schedule"`
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// GroupSession is a one-off (makeup or extra) session of a group.
type GroupSession struct {
	ID        string    `db:"id" json:"id"`
	GroupName string    `db:"group_name" json:"group_name"`
	Date      time.Time `db:"date" json:"date"`
	Note      *string   `db:"note" json:"note,omitempty"`
}
