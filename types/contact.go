package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time component.
type Date struct {
	time.Time
}

// NewDate returns the date at midnight UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", value)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Contact is an address-book entry owned by exactly one user.
type Contact struct {
	// ID is the unique identifier of the contact.
	ID int `json:"id" db:"id"`

	FirstName   string `json:"first_name" db:"first_name"`
	LastName    string `json:"last_name" db:"last_name"`
	Email       string `json:"email" db:"email"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// BirthDate is the contact's date of birth.
	BirthDate Date `json:"birth_date" db:"birth_date"`

	// Note is an optional free-form remark. Empty when unset.
	Note string `json:"note,omitempty" db:"note"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is touched on every update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// UserID identifies the owner. Never exposed; ownership is implicit in the caller.
	UserID int `json:"-" db:"user_id"`
}

// ContactFilter narrows a contact search. Empty fields are ignored.
type ContactFilter struct {
	FirstName string
	LastName  string
	Email     string
}

// Empty reports whether no filter field is set.
func (f ContactFilter) Empty() bool {
	return f.FirstName == "" && f.LastName == "" && f.Email == ""
}
