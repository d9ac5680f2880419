package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// MaxContactSearchLimit caps SearchContacts.
const MaxContactSearchLimit = 50

// FindContactByName looks a contact up by exact, case-insensitive full name.
// It returns nil when there is no such contact.
func (s *Store) FindContactByName(ctx context.Context, fullName string) (*Contact, error) {
	s.logger.Debug().Str("method", "FindContactByName").Str("full_name", fullName).Msg("called")

	queryStr, args, err := contactSelect().
		Where("c.full_name = ? COLLATE NOCASE", strings.TrimSpace(fullName)).
		ToSql()
	if err != nil {
		return nil, storeErr("find contact", err)
	}
	c, err := scanContact(s.db.QueryRowContext(ctx, queryStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find contact", err)
	}
	return &c, nil
}

// InsertContact creates a contact with the supplied optional fields.
func (s *Store) InsertContact(ctx context.Context, fullName string, patch ContactPatch) (Contact, error) {
	s.logger.Debug().Str("method", "InsertContact").Str("full_name", fullName).Msg("called")

	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return Contact{}, storeErr("insert contact", errors.New("full_name is empty"))
	}
	stamp := s.stamp()
	queryStr, args, err := StatementBuilder().
		Insert("contacts").
		Columns("full_name", "preferred_name", "email", "phone", "notes", "created_at", "updated_at").
		Values(fullName, nullable(patch.PreferredName), nullable(patch.Email), nullable(patch.Phone),
			nullable(patch.Notes), stamp, stamp).
		ToSql()
	if err != nil {
		return Contact{}, storeErr("insert contact", fmt.Errorf("build insert query: %w", err))
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Str("method", "InsertContact").Err(err).Msg("Failed to insert contact")
		return Contact{}, storeErr("insert contact", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Contact{}, storeErr("insert contact", err)
	}
	s.logger.Info().Str("method", "InsertContact").Int64("id", id).Msg("Contact created")
	return Contact{
		ID:            id,
		FullName:      fullName,
		PreferredName: patch.PreferredName,
		Email:         patch.Email,
		Phone:         patch.Phone,
		Notes:         patch.Notes,
		CreatedAt:     parseTime(stamp),
		UpdatedAt:     parseTime(stamp),
	}, nil
}

// UpdateContact writes only the fields present in patch.
func (s *Store) UpdateContact(ctx context.Context, id int64, patch ContactPatch) error {
	if patch.Empty() {
		return nil
	}
	s.logger.Debug().Str("method", "UpdateContact").Int64("id", id).Msg("called")

	query := StatementBuilder().Update("contacts").Set("updated_at", s.stamp()).Where(sq.Eq{"id": id})
	if patch.PreferredName != nil {
		query = query.Set("preferred_name", *patch.PreferredName)
	}
	if patch.Email != nil {
		query = query.Set("email", *patch.Email)
	}
	if patch.Phone != nil {
		query = query.Set("phone", *patch.Phone)
	}
	if patch.Notes != nil {
		query = query.Set("notes", *patch.Notes)
	}
	queryStr, args, err := query.ToSql()
	if err != nil {
		return storeErr("update contact", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return storeErr("update contact", err)
	}
	return nil
}

// UpsertContactRelation sets the single relation row for a contact.
func (s *Store) UpsertContactRelation(ctx context.Context, contactID int64, relation string) error {
	s.logger.Debug().Str("method", "UpsertContactRelation").Int64("contact_id", contactID).Str("relation", relation).Msg("called")

	queryStr, args, err := StatementBuilder().
		Insert("contact_relations").
		Columns("contact_id", "relation", "updated_at").
		Values(contactID, relation, s.stamp()).
		Suffix("ON CONFLICT (contact_id) DO UPDATE SET relation = excluded.relation, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return storeErr("upsert relation", err)
	}
	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return storeErr("upsert relation", err)
	}
	return nil
}

// InsertKeyDate appends a key date to a contact.
func (s *Store) InsertKeyDate(ctx context.Context, in NewKeyDate) (KeyDate, error) {
	s.logger.Debug().
		Str("method", "InsertKeyDate").
		Int64("contact_id", in.ContactID).
		Str("kind", string(in.Kind)).
		Msg("called")

	created := s.stamp()
	queryStr, args, err := StatementBuilder().
		Insert("contact_key_dates").
		Columns("contact_id", "kind", "the_date", "label", "created_at").
		Values(in.ContactID, string(in.Kind), in.TheDate.Format(DateLayout), nullable(in.Label), created).
		ToSql()
	if err != nil {
		return KeyDate{}, storeErr("insert key date", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Str("method", "InsertKeyDate").Err(err).Msg("Failed to insert key date")
		return KeyDate{}, storeErr("insert key date", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return KeyDate{}, storeErr("insert key date", err)
	}
	return KeyDate{
		ID:        id,
		ContactID: in.ContactID,
		Kind:      in.Kind,
		TheDate:   in.TheDate,
		Label:     in.Label,
		CreatedAt: parseTime(created),
	}, nil
}

// ListKeyDates returns every key date with its contact's name.
func (s *Store) ListKeyDates(ctx context.Context) ([]KeyDate, error) {
	queryStr, args, err := StatementBuilder().
		Select("k.id", "k.contact_id", "k.kind", "k.the_date", "k.label", "k.created_at", "c.full_name").
		From("contact_key_dates k").
		Join("contacts c ON c.id = k.contact_id").
		OrderBy("k.the_date ASC", "k.id ASC").
		ToSql()
	if err != nil {
		return nil, storeErr("list key dates", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, storeErr("list key dates", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	dates := []KeyDate{}
	for rows.Next() {
		var (
			k       KeyDate
			kind    string
			theDate string
			label   sql.NullString
			created string
		)
		if err := rows.Scan(&k.ID, &k.ContactID, &kind, &theDate, &label, &created, &k.FullName); err != nil {
			return nil, storeErr("list key dates", err)
		}
		k.Kind = KeyDateKind(kind)
		k.Label = strPtr(label)
		k.CreatedAt = parseTime(created)
		if d := parseDate(sql.NullString{String: theDate, Valid: true}); d != nil {
			k.TheDate = *d
		}
		dates = append(dates, k)
	}
	return dates, storeErr("list key dates", rows.Err())
}

// SearchContacts filters contacts by name fragment and relation.
func (s *Store) SearchContacts(ctx context.Context, q ContactQuery) ([]Contact, error) {
	s.logger.Debug().
		Str("method", "SearchContacts").
		Str("name_contains", q.NameContains).
		Str("relation", q.Relation).
		Msg("called")

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxContactSearchLimit {
		limit = MaxContactSearchLimit
	}
	query := contactSelect().OrderBy("c.full_name ASC").Limit(uint64(limit))
	if q.NameContains != "" {
		query = query.Where(likeExpr("c.full_name", q.NameContains))
	}
	if q.Relation != "" {
		query = query.Where(sq.Eq{"r.relation": q.Relation})
	}
	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, storeErr("search contacts", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, storeErr("search contacts", err)
	}
	defer rows.Close() //nolint:errcheck // read-only

	contacts := []Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, storeErr("search contacts", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, storeErr("search contacts", rows.Err())
}

// CountContacts returns the number of stored contacts.
func (s *Store) CountContacts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contacts").Scan(&n); err != nil {
		return 0, storeErr("count contacts", err)
	}
	return n, nil
}

func contactSelect() sq.SelectBuilder {
	return StatementBuilder().
		Select(contactColumns()...).
		From("contacts c").
		LeftJoin("contact_relations r ON r.contact_id = c.id")
}

func scanContact(row rowScanner) (Contact, error) {
	var (
		c         Contact
		preferred sql.NullString
		email     sql.NullString
		phone     sql.NullString
		notes     sql.NullString
		relation  sql.NullString
		birthday  sql.NullString
		created   string
		updated   string
	)
	if err := row.Scan(&c.ID, &c.FullName, &preferred, &email, &phone, &notes, &relation,
		&birthday, &created, &updated); err != nil {
		return Contact{}, err
	}
	c.PreferredName = strPtr(preferred)
	c.Email = strPtr(email)
	c.Phone = strPtr(phone)
	c.Notes = strPtr(notes)
	c.Relation = strPtr(relation)
	c.Birthday = parseDate(birthday)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return c, nil
}
