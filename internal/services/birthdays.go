package services

import (
	"cmp"
	"slices"
	"time"

	"github.com/contactbook/apiserver/types"
)

type birthdayMatch struct {
	contact types.Contact
	in      int
}

// upcomingBirthdays keeps contacts whose next birthday is at most days
// after today's date and orders them by that distance.
func upcomingBirthdays(contacts []types.Contact, now time.Time, days int) []types.Contact {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	matches := make([]birthdayMatch, 0, len(contacts))
	for _, c := range contacts {
		in := daysUntilBirthday(c.BirthDate, today)
		if in <= days {
			matches = append(matches, birthdayMatch{contact: c, in: in})
		}
	}

	slices.SortFunc(matches, func(a, b birthdayMatch) int {
		return cmpOr(
			cmp.Compare(a.in, b.in),
			cmp.Compare(a.contact.LastName, b.contact.LastName),
			cmp.Compare(a.contact.FirstName, b.contact.FirstName),
			cmp.Compare(a.contact.ID, b.contact.ID),
		)
	})

	out := make([]types.Contact, len(matches))
	for i, m := range matches {
		out[i] = m.contact
	}
	return out
}

// daysUntilBirthday counts whole days from today to the next anniversary
// of birth, 0 when it is today.
func daysUntilBirthday(birth types.Date, today time.Time) int {
	next := anniversary(birth, today.Year())
	if next.Before(today) {
		next = anniversary(birth, today.Year()+1)
	}
	return int(next.Sub(today).Hours() / 24)
}

// anniversary places birth in year. Feb 29 maps to Feb 28 outside leap
// years.
func anniversary(birth types.Date, year int) time.Time {
	month, day := birth.Month(), birth.Day()
	if month == time.February && day == 29 && !isLeap(year) {
		day = 28
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// cmpOr returns the first non-zero comparison result, matching cmp.Or
// from Go 1.22 for toolchains that predate it.
func cmpOr(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
