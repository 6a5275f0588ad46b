package store

import "time"

type Image struct {
	ID             string    `db:"id" json:"id"`
	Content        string    `db:"content" json:"url"`
	Alt            string    `db:"alt" json:"alt"`
	OrderKey       int64     `db:"order_key" json:"orderIndex"`
	FileName       string    `db:"file_name" json:"fileName"`
	SourceFileName string    `db:"source_file_name" json:"sourceFileName"`
	SizeBytes      int64     `db:"size_bytes" json:"fileSize"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"-"`
}

type ImageCreate struct {
	Content        string
	Alt            string
	OrderKey       int64
	FileName       string
	SourceFileName string
	SizeBytes      int64
}

// OrderUpdate assigns a new order key to one image.
type OrderUpdate struct {
	ID       string
	OrderKey int64
}

type Customer struct {
	ID               string    `db:"id" json:"id"`
	Name             string    `db:"name" json:"name"`
	Phone            string    `db:"phone" json:"phone"`
	Email            string    `db:"email" json:"email"`
	PhoneOption      string    `db:"phone_option" json:"phoneOption"`
	CarrierOption    string    `db:"carrier_option" json:"carrierOption"`
	PrivacyConsent   bool      `db:"privacy_consent" json:"privacyConsent"`
	MarketingConsent bool      `db:"marketing_consent" json:"marketingConsent"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

type CustomerCreate struct {
	Name             string
	Phone            string
	Email            string
	PhoneOption      string
	CarrierOption    string
	PrivacyConsent   bool
	MarketingConsent bool
}
