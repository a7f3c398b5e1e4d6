package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 100

	DefaultBirthdayDays = 7
	MaxBirthdayDays     = 366

	maxNameLen  = 50
	maxPhoneLen = 20
	maxNoteLen  = 250
)

// ContactRepository defines persistence operations for contacts. Every
// method is scoped to an owner.
type ContactRepository interface {
	List(ctx context.Context, ownerID, offset, limit int) ([]types.Contact, error)
	ListAll(ctx context.Context, ownerID int) ([]types.Contact, error)
	Search(ctx context.Context, ownerID int, filter types.ContactFilter, offset, limit int) ([]types.Contact, error)
	Get(ctx context.Context, ownerID, id int) (types.Contact, error)
	Create(ctx context.Context, contact types.Contact) (types.Contact, error)
	Update(ctx context.Context, contact types.Contact) (types.Contact, error)
	Delete(ctx context.Context, ownerID, id int) (types.Contact, error)
}

// ContactInput is the create and update payload.
type ContactInput struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	BirthDate   types.Date `json:"birth_date"`
	Note        string     `json:"note"`
}

// Page is a skip/limit window over a result list.
type Page struct {
	Skip  int
	Limit int
}

// ContactService encapsulates contact use-cases.
type ContactService struct {
	repo ContactRepository
	now  func() time.Time
}

func NewContactService(repo ContactRepository) *ContactService {
	return &ContactService{repo: repo, now: time.Now}
}

func (s *ContactService) List(ctx context.Context, ownerID int, page Page) ([]types.Contact, error) {
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, ownerID, page.Skip, page.Limit)
}

func (s *ContactService) Get(ctx context.Context, ownerID, id int) (types.Contact, error) {
	return s.repo.Get(ctx, ownerID, id)
}

func (s *ContactService) Create(ctx context.Context, ownerID int, in ContactInput) (types.Contact, error) {
	in = in.trimmed()
	if err := in.validate(); err != nil {
		return types.Contact{}, err
	}
	contact := in.contact()
	contact.UserID = ownerID
	created, err := s.repo.Create(ctx, contact)
	if err != nil {
		return types.Contact{}, emailConflict(err)
	}
	return created, nil
}

// Update replaces every editable field of the contact.
func (s *ContactService) Update(ctx context.Context, ownerID, id int, in ContactInput) (types.Contact, error) {
	in = in.trimmed()
	if err := in.validate(); err != nil {
		return types.Contact{}, err
	}
	contact := in.contact()
	contact.ID = id
	contact.UserID = ownerID
	updated, err := s.repo.Update(ctx, contact)
	if err != nil {
		return types.Contact{}, emailConflict(err)
	}
	return updated, nil
}

// Delete removes the contact and returns it as it was.
func (s *ContactService) Delete(ctx context.Context, ownerID, id int) (types.Contact, error) {
	return s.repo.Delete(ctx, ownerID, id)
}

// Search matches every non-empty filter field as a case-insensitive
// substring. An empty filter lists all contacts.
func (s *ContactService) Search(ctx context.Context, ownerID int, filter types.ContactFilter, page Page) ([]types.Contact, error) {
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}
	filter = types.ContactFilter{
		FirstName: strings.TrimSpace(filter.FirstName),
		LastName:  strings.TrimSpace(filter.LastName),
		Email:     strings.TrimSpace(filter.Email),
	}
	if filter.Empty() {
		return s.repo.List(ctx, ownerID, page.Skip, page.Limit)
	}
	return s.repo.Search(ctx, ownerID, filter, page.Skip, page.Limit)
}

// UpcomingBirthdays returns contacts whose next birthday falls within
// days of today, soonest first.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, ownerID, days int, page Page) ([]types.Contact, error) {
	if days < 0 || days > MaxBirthdayDays {
		return nil, invalid("days", "must be between 0 and %d", MaxBirthdayDays)
	}
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}

	contacts, err := s.repo.ListAll(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	upcoming := upcomingBirthdays(contacts, s.now(), days)
	return paginate(upcoming, page), nil
}

func (in ContactInput) trimmed() ContactInput {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Note = strings.TrimSpace(in.Note)
	return in
}

func (in ContactInput) validate() error {
	var errs []error
	required := func(field, value string, max int) {
		switch {
		case value == "":
			errs = append(errs, invalid(field, "is required"))
		case utf8.RuneCountInString(value) > max:
			errs = append(errs, invalid(field, "must be at most %d characters", max))
		}
	}
	required("first_name", in.FirstName, maxNameLen)
	required("last_name", in.LastName, maxNameLen)
	required("phone_number", in.PhoneNumber, maxPhoneLen)
	if err := validateEmail("email", in.Email); err != nil {
		errs = append(errs, err)
	}
	if in.BirthDate.IsZero() {
		errs = append(errs, invalid("birth_date", "is required"))
	}
	if utf8.RuneCountInString(in.Note) > maxNoteLen {
		errs = append(errs, invalid("note", "must be at most %d characters", maxNoteLen))
	}
	return errors.Join(errs...)
}

func (in ContactInput) contact() types.Contact {
	return types.Contact{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		BirthDate:   in.BirthDate,
		Note:        in.Note,
	}
}

func emailConflict(err error) error {
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("%w: contact email already in use", store.ErrConflict)
	}
	return err
}

func normalizePage(page Page) (Page, error) {
	if page.Skip < 0 {
		return Page{}, invalid("skip", "must not be negative")
	}
	if page.Limit < 0 {
		return Page{}, invalid("limit", "must not be negative")
	}
	if page.Limit == 0 {
		page.Limit = DefaultPageLimit
	}
	if page.Limit > MaxPageLimit {
		page.Limit = MaxPageLimit
	}
	return page, nil
}

func paginate(contacts []types.Contact, page Page) []types.Contact {
	if page.Skip >= len(contacts) {
		return []types.Contact{}
	}
	end := page.Skip + page.Limit
	if end > len(contacts) {
		end = len(contacts)
	}
	return contacts[page.Skip:end]
}
