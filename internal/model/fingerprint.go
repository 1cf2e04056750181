package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// FingerprintVersion identifies the current fingerprint scheme. The version
// is part of the digest input and stored alongside each record, so changing
// the algorithm or field set later can never silently collide with rows
// hashed under an older scheme.
const FingerprintVersion = 1

// quantityScale fixes the decimal precision fed into the digest so that
// "12.5" and "12.500" fingerprint identically.
const quantityScale = 3

// Fingerprint computes the dedup digest over a row's business-meaningful
// fields. Field order and normalization are load-bearing: re-ingesting the
// same source file must reproduce byte-identical input to the hash.
//
// Deliberately excluded: unit (fixed display value), siteCode (derived from
// siteName via the registry), sourceExcel (provenance, not identity), and the
// raw timestamp (dateKey scopes dedup to the reporting day).
func Fingerprint(companyID string, weighType WeighType, productName, productCode string, quantityTon, rawWeightKg decimal.Decimal, dateKey, siteName string) string {
	fields := []string{
		"v1",
		companyID,
		string(weighType),
		productName,
		productCode,
		quantityTon.StringFixed(quantityScale),
		rawWeightKg.StringFixed(quantityScale),
		dateKey,
		siteName,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}
