package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const customerColumns = "id, name, phone, email, phone_option, carrier_option, privacy_consent, marketing_consent, created_at"

func (s *Store) InsertCustomer(ctx context.Context, in CustomerCreate) (*Customer, error) {
	c := &Customer{
		ID:               uuid.NewString(),
		Name:             NormalizeText(in.Name),
		Phone:            NormalizeText(in.Phone),
		Email:            NormalizeText(in.Email),
		PhoneOption:      NormalizeText(in.PhoneOption),
		CarrierOption:    NormalizeText(in.CarrierOption),
		PrivacyConsent:   in.PrivacyConsent,
		MarketingConsent: in.MarketingConsent,
		CreatedAt:        s.now(),
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO customers (`+customerColumns+`)
	VALUES (:id, :name, :phone, :email, :phone_option, :carrier_option, :privacy_consent, :marketing_consent, :created_at)`, c)
	if err != nil {
		return nil, wrap("insert customer", err)
	}
	return c, nil
}

// ListCustomers returns all leads, newest first.
func (s *Store) ListCustomers(ctx context.Context) ([]Customer, error) {
	customers := []Customer{}
	err := s.db.SelectContext(ctx, &customers, "SELECT "+customerColumns+" FROM customers ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, wrap("list customers", err)
	}
	return customers, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", id)
	if err != nil {
		return wrap("delete customer", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CustomersVersion changes whenever a lead is added or removed.
func (s *Store) CustomersVersion(ctx context.Context) (string, error) {
	var row struct {
		Count   int64          `db:"n"`
		Created sql.NullString `db:"created"`
	}
	err := s.db.GetContext(ctx, &row, "SELECT COUNT(*) AS n, MAX(created_at) AS created FROM customers")
	if err != nil {
		return "", wrap("customers version", err)
	}
	return fmt.Sprintf("%d:%s", row.Count, row.Created.String), nil
}
