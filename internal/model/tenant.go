package model

// DefaultConfidenceThreshold is the auto-posting threshold applied when a
// tenant has no explicit configuration.
const DefaultConfidenceThreshold = 85

// PostingRules are the tenant-configured counterpart accounts the voucher
// builder uses when mapping a proposal to balanced lines.
type PostingRules struct {
	TaxInputAccount  string `json:"tax_input_account"`  // input VAT on purchases
	TaxOutputAccount string `json:"tax_output_account"` // output VAT on sales
	TradePayables    string `json:"trade_payables"`
	TradeReceivables string `json:"trade_receivables"`
}

// TenantSettings holds per-tenant pipeline configuration. Thresholds are
// always passed explicitly into the decision gate, never read from
// process-wide state.
type TenantSettings struct {
	TenantID            string       `json:"tenant_id"`
	VoucherSeries       string       `json:"voucher_series"`
	Currency            string       `json:"currency"`
	Rules               PostingRules `json:"rules"`
	ConfidenceThreshold int          `json:"confidence_threshold"`
	MinorUnits          int          `json:"minor_units"` // decimal places of the tenant currency
}

// DefaultTenantSettings returns the settings applied to a tenant with no
// stored configuration.
func DefaultTenantSettings(tenantID string) *TenantSettings {
	return &TenantSettings{
		TenantID:            tenantID,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		VoucherSeries:       "A",
		Currency:            "NOK",
		MinorUnits:          2,
		Rules: PostingRules{
			TaxInputAccount:  "2740",
			TaxOutputAccount: "2700",
			TradePayables:    "2400",
			TradeReceivables: "1500",
		},
	}
}
