package model

import "time"

// MixEntry is the canonical mapping from a company's product to the site it
// ships from. SELL records are enriched with site identity through this table.
//
// Two identities coexist: the optional product code, and the
// (product name, site name) pair. Within a company each identity is unique.
type MixEntry struct {
	ID          string    `json:"id" yaml:"id"`
	CompanyID   string    `json:"company_id" yaml:"company_id"`
	ProductCode string    `json:"product_code,omitempty" yaml:"product_code,omitempty"`
	ProductName string    `json:"product_name" yaml:"product_name"`
	SiteName    string    `json:"site_name" yaml:"site_name"`
	SiteCode    string    `json:"site_code" yaml:"site_code"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}
