package ingest

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/graintrack/weighbridge-cli/internal/model"
)

// ColumnMap names the spreadsheet headers each row field is read from.
// Matching is case-insensitive and trims whitespace, so differently cased
// weighbridge exports bind without configuration changes.
type ColumnMap struct {
	Company     string `yaml:"company" mapstructure:"company"`
	WeighType   string `yaml:"weigh_type" mapstructure:"weigh_type"`
	ProductName string `yaml:"product_name" mapstructure:"product_name"`
	ProductCode string `yaml:"product_code" mapstructure:"product_code"`
	QuantityTon string `yaml:"quantity_ton" mapstructure:"quantity_ton"`
	RawWeightKg string `yaml:"raw_weight_kg" mapstructure:"raw_weight_kg"`
	Date        string `yaml:"date" mapstructure:"date"`
	SiteName    string `yaml:"site_name" mapstructure:"site_name"`
}

// DefaultColumnMap matches the header row of the standard weighbridge export.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		Company:     "Company",
		WeighType:   "Type",
		ProductName: "Product",
		ProductCode: "Product Code",
		QuantityTon: "Quantity (ton)",
		RawWeightKg: "Raw Weight (kg)",
		Date:        "Date",
		SiteName:    "Site",
	}
}

// RowMapper converts positional spreadsheet cells into WeighRows using a
// header row bound once per file.
type RowMapper struct {
	idx         map[string]int
	cm          ColumnMap
	companyID   string
	sourceExcel string
}

// NewRowMapper binds the column map against a header row. WeighType,
// ProductName, QuantityTon, and Date are required; the rest are optional.
// Company comes from the column when present, else from the companyID
// argument (exports are usually per-company files without a company column).
func NewRowMapper(header []string, cm ColumnMap, companyID, sourceExcel string) (*RowMapper, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[normalizeHeader(h)] = i
	}

	m := &RowMapper{idx: idx, cm: cm, companyID: companyID, sourceExcel: sourceExcel}

	var missing []string
	for _, req := range []struct {
		label string
		name  string
	}{
		{cm.WeighType, "weigh type"},
		{cm.ProductName, "product name"},
		{cm.QuantityTon, "quantity"},
		{cm.Date, "date"},
	} {
		if _, ok := m.lookup(req.label); !ok {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("mapping: header is missing required columns: %s", strings.Join(missing, ", "))
	}
	return m, nil
}

// Map builds a WeighRow from a cell slice. Short rows yield empty fields;
// validation happens later in the ingest pipeline so a bad row rejects
// instead of aborting the file.
func (m *RowMapper) Map(cells []string) model.WeighRow {
	row := model.WeighRow{
		CompanyID:   m.cell(cells, m.cm.Company),
		WeighType:   m.cell(cells, m.cm.WeighType),
		ProductName: m.cell(cells, m.cm.ProductName),
		ProductCode: m.cell(cells, m.cm.ProductCode),
		QuantityTon: m.cell(cells, m.cm.QuantityTon),
		RawWeightKg: m.cell(cells, m.cm.RawWeightKg),
		Date:        m.cell(cells, m.cm.Date),
		SiteName:    m.cell(cells, m.cm.SiteName),
		SourceExcel: m.sourceExcel,
	}
	if row.CompanyID == "" {
		row.CompanyID = m.companyID
	}
	return row
}

func (m *RowMapper) lookup(label string) (int, bool) {
	i, ok := m.idx[normalizeHeader(label)]
	return i, ok
}

func (m *RowMapper) cell(cells []string, label string) string {
	if label == "" {
		return ""
	}
	i, ok := m.lookup(label)
	if !ok || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
