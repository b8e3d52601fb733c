package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/clinic-messaging/internal/phone"
)

// FindPatientByPhone matches a patient whose stored phone equals any of the
// candidates. When none match exactly it falls back to comparing the last
// phone.SuffixLength digits of the stored phone with suffix; a shorter suffix
// never matches. More than one distinct patient on that fallback is reported
// as ErrAmbiguous.
func (s *Store) FindPatientByPhone(ctx context.Context, candidates []string, suffix string) (*Patient, error) {
	candidates = nonEmpty(candidates)
	if len(candidates) > 0 {
		var p Patient
		err := s.db.QueryRow(ctx, `
			SELECT id, name, phone
			FROM patients
			WHERE phone = ANY($1)
			ORDER BY created_at ASC
			LIMIT 1`, candidates).Scan(&p.ID, &p.Name, &p.Phone)
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store: find patient by phone: %w", err)
		}
	}
	if len(suffix) != phone.SuffixLength || phone.Digits(suffix) != suffix {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, name, phone
		FROM patients
		WHERE regexp_replace(phone, '\D', '', 'g') LIKE '%' || $1
		ORDER BY created_at ASC
		LIMIT 2`, suffix)
	if err != nil {
		return nil, fmt.Errorf("store: find patient by phone suffix: %w", err)
	}
	defer rows.Close()
	var matches []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone); err != nil {
			return nil, fmt.Errorf("store: scan patient: %w", err)
		}
		matches = append(matches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: find patient by phone suffix: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		return nil, ErrAmbiguous
	}
}

// BirthdayPatients lists patients with a phone whose birthday falls on month/day.
func (s *Store) BirthdayPatients(ctx context.Context, month, day int) ([]Patient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, phone
		FROM patients
		WHERE birth_date IS NOT NULL
			AND EXTRACT(MONTH FROM birth_date) = $1
			AND EXTRACT(DAY FROM birth_date) = $2
			AND COALESCE(phone, '') <> ''
		ORDER BY name ASC`, month, day)
	if err != nil {
		return nil, fmt.Errorf("store: birthday patients: %w", err)
	}
	defer rows.Close()
	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone); err != nil {
			return nil, fmt.Errorf("store: scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nonEmpty(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
