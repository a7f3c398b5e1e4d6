package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contactInput(first, last, email string, birth types.Date) ContactInput {
	return ContactInput{
		FirstName:   first,
		LastName:    last,
		Email:       email,
		PhoneNumber: "+380501234567",
		BirthDate:   birth,
	}
}

func newContactFixture(t *testing.T, today time.Time) (*ContactService, *memContacts) {
	t.Helper()
	repo := newMemContacts()
	svc := NewContactService(repo)
	svc.now = func() time.Time { return today }
	return svc, repo
}

func TestContactCRUDIsOwnerScoped(t *testing.T) {
	svc, _ := newContactFixture(t, time.Now())
	ctx := context.Background()
	const alice, bob = 1, 2

	c, err := svc.Create(ctx, alice, contactInput(" Ann ", "Lee", "ann@example.com", types.NewDate(1990, time.March, 3)))
	require.NoError(t, err)
	assert.Equal(t, "Ann", c.FirstName)
	assert.Equal(t, alice, c.UserID)

	_, err = svc.Get(ctx, bob, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Update(ctx, bob, c.ID, contactInput("Mallory", "X", "m@example.com", types.NewDate(1990, time.March, 3)))
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.Delete(ctx, bob, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	got, err := svc.Get(ctx, alice, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FirstName)

	in := contactInput("Anna", "Lee", "anna@example.com", types.NewDate(1991, time.April, 4))
	in.Note = "met at conf"
	updated, err := svc.Update(ctx, alice, c.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Anna", updated.FirstName)
	assert.Equal(t, "met at conf", updated.Note)
	assert.Equal(t, types.NewDate(1991, time.April, 4), updated.BirthDate)

	deleted, err := svc.Delete(ctx, alice, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Anna", deleted.FirstName)
	_, err = svc.Get(ctx, alice, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestContactDuplicateEmail(t *testing.T) {
	svc, _ := newContactFixture(t, time.Now())
	ctx := context.Background()
	birth := types.NewDate(1990, time.January, 1)

	_, err := svc.Create(ctx, 1, contactInput("A", "B", "dup@example.com", birth))
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, contactInput("C", "D", "dup@example.com", birth))
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.Create(ctx, 2, contactInput("E", "F", "dup@example.com", birth))
	require.ErrorIs(t, err, store.ErrConflict)
	assert.NotContains(t, err.Error(), "dup@example.com")
	assert.Contains(t, err.Error(), "contact email already in use")
}

func TestContactValidation(t *testing.T) {
	svc, repo := newContactFixture(t, time.Now())
	ctx := context.Background()
	birth := types.NewDate(1990, time.January, 1)

	tests := map[string]ContactInput{
		"missing first name": contactInput("", "B", "a@example.com", birth),
		"long last name":     contactInput("A", strings.Repeat("b", 51), "a@example.com", birth),
		"bad email":          contactInput("A", "B", "nope", birth),
		"missing birth date": contactInput("A", "B", "a@example.com", types.Date{}),
	}
	long := contactInput("A", "B", "a@example.com", birth)
	long.PhoneNumber = strings.Repeat("1", 21)
	tests["long phone"] = long
	note := contactInput("A", "B", "a@example.com", birth)
	note.Note = strings.Repeat("n", 251)
	tests["long note"] = note

	for name, in := range tests {
		_, err := svc.Create(ctx, 1, in)
		assert.ErrorIs(t, err, ErrValidation, name)
	}
	assert.Empty(t, repo.contacts)
}

func TestListPagination(t *testing.T) {
	svc, _ := newContactFixture(t, time.Now())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, 1, contactInput("A", "B", strings.Repeat("x", i+1)+"@example.com", types.NewDate(1990, time.May, 5)))
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, 1, Page{Skip: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 2, page[0].ID)

	all, err := svc.List(ctx, 1, Page{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = svc.List(ctx, 1, Page{Skip: -1})
	assert.ErrorIs(t, err, ErrValidation)

	normalized, err := normalizePage(Page{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageLimit, normalized.Limit)
}

func TestSearch(t *testing.T) {
	svc, _ := newContactFixture(t, time.Now())
	ctx := context.Background()
	birth := types.NewDate(1990, time.May, 5)
	for _, in := range []ContactInput{
		contactInput("John", "Smith", "john@example.com", birth),
		contactInput("Johnny", "Walker", "jw@corp.io", birth),
		contactInput("Alice", "Smithson", "alice@corp.io", birth),
	} {
		_, err := svc.Create(ctx, 1, in)
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, 2, contactInput("John", "Other", "other@example.com", birth))
	require.NoError(t, err)

	got, err := svc.Search(ctx, 1, types.ContactFilter{FirstName: "JOHN"}, Page{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.Search(ctx, 1, types.ContactFilter{FirstName: "john", LastName: "smith"}, Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Smith", got[0].LastName)

	got, err = svc.Search(ctx, 1, types.ContactFilter{Email: "corp"}, Page{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.Search(ctx, 1, types.ContactFilter{FirstName: "  "}, Page{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func birthdayNames(contacts []types.Contact) []string {
	names := make([]string, len(contacts))
	for i, c := range contacts {
		names[i] = c.FirstName
	}
	return names
}

func TestUpcomingBirthdaysWrapsYear(t *testing.T) {
	today := time.Date(2025, time.December, 28, 15, 0, 0, 0, time.UTC)
	svc, _ := newContactFixture(t, today)
	ctx := context.Background()

	for i, c := range []struct {
		name  string
		birth types.Date
	}{
		{"jan2", types.NewDate(1990, time.January, 2)},
		{"dec20", types.NewDate(1985, time.December, 20)},
		{"dec28", types.NewDate(2000, time.December, 28)},
		{"jan4", types.NewDate(1970, time.January, 4)},
		{"jan5", types.NewDate(1970, time.January, 5)},
		{"dec31", types.NewDate(1999, time.December, 31)},
	} {
		_, err := svc.Create(ctx, 1, contactInput(c.name, "X", strings.Repeat("e", i+1)+"@example.com", c.birth))
		require.NoError(t, err)
	}

	got, err := svc.UpcomingBirthdays(ctx, 1, 7, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"dec28", "dec31", "jan2", "jan4"}, birthdayNames(got))

	got, err = svc.UpcomingBirthdays(ctx, 1, 0, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"dec28"}, birthdayNames(got))

	got, err = svc.UpcomingBirthdays(ctx, 1, 7, Page{Skip: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"dec31", "jan2"}, birthdayNames(got))
}

func TestUpcomingBirthdaysTieBreak(t *testing.T) {
	today := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := newContactFixture(t, today)
	ctx := context.Background()
	birth := types.NewDate(1990, time.June, 3)

	for _, in := range []ContactInput{
		contactInput("Zed", "Brown", "1@example.com", birth),
		contactInput("Amy", "Brown", "2@example.com", birth),
		contactInput("Bob", "Adams", "3@example.com", birth),
	} {
		_, err := svc.Create(ctx, 1, in)
		require.NoError(t, err)
	}

	got, err := svc.UpcomingBirthdays(ctx, 1, DefaultBirthdayDays, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Amy", "Zed"}, birthdayNames(got))
}

func TestUpcomingBirthdaysValidation(t *testing.T) {
	svc, _ := newContactFixture(t, time.Now())
	ctx := context.Background()

	_, err := svc.UpcomingBirthdays(ctx, 1, -1, Page{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.UpcomingBirthdays(ctx, 1, 367, Page{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDaysUntilBirthday(t *testing.T) {
	tests := []struct {
		name  string
		birth types.Date
		today time.Time
		want  int
	}{
		{"today", types.NewDate(1990, time.March, 1), time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), 0},
		{"tomorrow", types.NewDate(1990, time.March, 2), time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), 1},
		{"passed this year", types.NewDate(1990, time.February, 28), time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), 364},
		{"leap day in common year", types.NewDate(2000, time.February, 29), time.Date(2025, time.February, 27, 0, 0, 0, 0, time.UTC), 1},
		{"leap day in leap year", types.NewDate(2000, time.February, 29), time.Date(2028, time.February, 27, 0, 0, 0, 0, time.UTC), 2},
		{"leap day passed", types.NewDate(2000, time.February, 29), time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC), 365},
		{"across new year", types.NewDate(1990, time.January, 2), time.Date(2025, time.December, 28, 0, 0, 0, 0, time.UTC), 5},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, daysUntilBirthday(tc.birth, tc.today), tc.name)
	}
}
