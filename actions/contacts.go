package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/JamesWemyss/psyclone/memory"
)

// ContactsOutcome lists matching contacts.
type ContactsOutcome struct {
	Count int              `json:"count"`
	Items []memory.Contact `json:"items"`
}

// UpsertContact finds a contact by case-insensitive full name, creating it if
// absent. Only supplied fields are written to an existing contact, and the
// relation row is inserted or updated, never duplicated.
func (e *Executors) UpsertContact(ctx context.Context, p UpsertContactParams) (Outcome, error) {
	p.FullName = strings.TrimSpace(p.FullName)
	if err := e.validateStruct(p); err != nil {
		return Outcome{}, err
	}
	patch := memory.ContactPatch{
		PreferredName: trimmedPtr(p.PreferredName),
		Email:         trimmedPtr(p.Email),
		Phone:         trimmedPtr(p.Phone),
		Notes:         trimmedPtr(p.Notes),
	}

	contact, created, err := e.findOrCreateContact(ctx, p.FullName, patch)
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		if err := e.store.UpdateContact(ctx, contact.ID, patch); err != nil {
			return Outcome{}, err
		}
	}

	relation := strings.ToLower(strings.TrimSpace(p.Relation))
	if relation != "" {
		if err := e.store.UpsertContactRelation(ctx, contact.ID, relation); err != nil {
			return Outcome{}, err
		}
		contact.Relation = &relation
	}
	if !created {
		fresh, err := e.store.FindContactByName(ctx, contact.FullName)
		if err != nil {
			return Outcome{}, err
		}
		if fresh != nil {
			contact = fresh
		}
	}

	status, verb := StatusUpdated, "Updated"
	if created {
		status, verb = StatusCreated, "Added"
	}
	return Outcome{
		Status:  status,
		ID:      contact.ID,
		Summary: fmt.Sprintf("%s contact: “%s”.", verb, contact.FullName),
		Entity:  contact,
	}, nil
}

// AddContactKeyDate appends a key date, creating a minimal contact when the
// named one does not exist yet.
func (e *Executors) AddContactKeyDate(ctx context.Context, p KeyDateParams) (Outcome, error) {
	p.FullName = strings.TrimSpace(p.FullName)
	if err := e.validateStruct(p); err != nil {
		return Outcome{}, err
	}
	if p.ContactID == nil && p.FullName == "" {
		return Outcome{}, invalid("full_name", "is required when contact_id is not given")
	}
	theDate, err := ParseDate(p.TheDate, e.loc)
	if err != nil || theDate == nil {
		return Outcome{}, invalid("the_date", "must be a date (YYYY-MM-DD)")
	}
	kind := memory.KeyDateKind(p.Kind)
	if kind == "" {
		kind = memory.KeyDateOther
	}

	contactID, name := int64(0), p.FullName
	if p.ContactID != nil {
		contactID = *p.ContactID
	} else {
		contact, _, err := e.findOrCreateContact(ctx, p.FullName, memory.ContactPatch{})
		if err != nil {
			return Outcome{}, err
		}
		contactID, name = contact.ID, contact.FullName
	}

	kd, err := e.store.InsertKeyDate(ctx, memory.NewKeyDate{
		ContactID: contactID,
		Kind:      kind,
		TheDate:   *theDate,
		Label:     optional(p.Label),
	})
	if err != nil {
		return Outcome{}, err
	}
	kd.FullName = name
	return Outcome{
		Status:  StatusCreated,
		ID:      kd.ID,
		Summary: fmt.Sprintf("Noted %s for %s: %s.", kd.Kind, name, kd.TheDate.Format(memory.DateLayout)),
		Entity:  kd,
	}, nil
}

// SearchContacts filters contacts by name fragment and relation.
func (e *Executors) SearchContacts(ctx context.Context, p SearchContactsParams) (ContactsOutcome, error) {
	contacts, err := e.store.SearchContacts(ctx, memory.ContactQuery{
		NameContains: strings.TrimSpace(p.NameContains),
		Relation:     strings.ToLower(strings.TrimSpace(p.Relation)),
		Limit:        ClampLimit(p.Limit, memory.MaxContactSearchLimit),
	})
	if err != nil {
		return ContactsOutcome{}, err
	}
	return ContactsOutcome{Count: len(contacts), Items: contacts}, nil
}

// findOrCreateContact runs the lookup before the insert. If a concurrent call
// inserted the same name first, the unique index rejects ours and the
// existing row is used.
func (e *Executors) findOrCreateContact(ctx context.Context, fullName string, patch memory.ContactPatch) (*memory.Contact, bool, error) {
	existing, err := e.store.FindContactByName(ctx, fullName)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	created, insertErr := e.store.InsertContact(ctx, fullName, patch)
	if insertErr == nil {
		return &created, true, nil
	}
	existing, err = e.store.FindContactByName(ctx, fullName)
	if err == nil && existing != nil {
		return existing, false, nil
	}
	return nil, false, insertErr
}
