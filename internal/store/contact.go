package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/contactbook/apiserver/types"
)

const contactColumns = `id, first_name, last_name, email, phone_number, birth_date, note, created_at, updated_at, user_id`

// ContactRepository handles persistence for contacts. Every query is
// scoped to the owning user.
type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) List(ctx context.Context, ownerID, offset, limit int) ([]types.Contact, error) {
	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		ORDER BY id
		OFFSET $2 LIMIT $3`
	return r.query(ctx, query, ownerID, offset, limit)
}

// ListAll returns every contact of the owner, ordered by id.
func (r *ContactRepository) ListAll(ctx context.Context, ownerID int) ([]types.Contact, error) {
	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		ORDER BY id`
	return r.query(ctx, query, ownerID)
}

// Search matches every non-empty filter field as a case-insensitive substring.
func (r *ContactRepository) Search(ctx context.Context, ownerID int, filter types.ContactFilter, offset, limit int) ([]types.Contact, error) {
	conditions := []string{"user_id = $1"}
	args := []any{ownerID}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, "%"+escapeLike(value)+"%")
		conditions = append(conditions, fmt.Sprintf("%s ILIKE $%d", column, len(args)))
	}
	add("first_name", filter.FirstName)
	add("last_name", filter.LastName)
	add("email", filter.Email)

	args = append(args, offset, limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM contacts
		WHERE %s
		ORDER BY id
		OFFSET $%d LIMIT $%d`,
		contactColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	return r.query(ctx, query, args...)
}

func (r *ContactRepository) Get(ctx context.Context, ownerID, id int) (types.Contact, error) {
	const query = `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE id = $1 AND user_id = $2`
	return r.queryOne(ctx, query, id, ownerID)
}

func (r *ContactRepository) Create(ctx context.Context, contact types.Contact) (types.Contact, error) {
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.UpdatedAt = now

	const query = `
		INSERT INTO contacts (first_name, last_name, email, phone_number, birth_date, note, created_at, updated_at, user_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.PhoneNumber,
		contact.BirthDate.Time,
		nullString(contact.Note),
		contact.CreatedAt,
		contact.UpdatedAt,
		contact.UserID,
	).Scan(&contact.ID); err != nil {
		return types.Contact{}, translate(err)
	}
	return contact, nil
}

// Update replaces the editable fields of a contact owned by contact.UserID.
func (r *ContactRepository) Update(ctx context.Context, contact types.Contact) (types.Contact, error) {
	const query = `
		UPDATE contacts
		SET first_name = $1,
			last_name = $2,
			email = $3,
			phone_number = $4,
			birth_date = $5,
			note = $6,
			updated_at = $7
		WHERE id = $8 AND user_id = $9
		RETURNING ` + contactColumns
	updated, err := r.queryOne(
		ctx,
		query,
		contact.FirstName,
		contact.LastName,
		contact.Email,
		contact.PhoneNumber,
		contact.BirthDate.Time,
		nullString(contact.Note),
		time.Now().UTC(),
		contact.ID,
		contact.UserID,
	)
	if err != nil {
		return types.Contact{}, translate(err)
	}
	return updated, nil
}

// Delete removes the contact and returns it as it was.
func (r *ContactRepository) Delete(ctx context.Context, ownerID, id int) (types.Contact, error) {
	const query = `
		DELETE FROM contacts
		WHERE id = $1 AND user_id = $2
		RETURNING ` + contactColumns
	return r.queryOne(ctx, query, id, ownerID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (types.Contact, error) {
	var (
		contact types.Contact
		birth   time.Time
		note    sql.NullString
	)
	if err := row.Scan(
		&contact.ID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.PhoneNumber,
		&birth,
		&note,
		&contact.CreatedAt,
		&contact.UpdatedAt,
		&contact.UserID,
	); err != nil {
		return types.Contact{}, err
	}
	contact.BirthDate = types.NewDate(birth.Year(), birth.Month(), birth.Day())
	contact.Note = note.String
	return contact, nil
}

func (r *ContactRepository) queryOne(ctx context.Context, query string, args ...any) (types.Contact, error) {
	contact, err := scanContact(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Contact{}, ErrNotFound
		}
		return types.Contact{}, err
	}
	return contact, nil
}

func (r *ContactRepository) query(ctx context.Context, query string, args ...any) ([]types.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]types.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contacts, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
