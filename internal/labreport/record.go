package labreport

// Record is the validated result of one model response. Every leaf is either a
// string or nil; nil means the model did not report the field, "" means it
// reported an empty value.
type Record struct {
	ReportInfo      ReportInfo       `json:"report_info"`
	ClientInfo      ClientInfo       `json:"client_info"`
	SampleInfo      SampleInfo       `json:"sample_info"`
	AnalysisResults []AnalysisResult `json:"analysis_results"` // nil when absent, empty when reported empty
	Conclusion      *string          `json:"conclusion"`
}

type ReportInfo struct {
	LabName        *string `json:"lab_name"`
	ReportID       *string `json:"report_id"`
	IssueDate      *string `json:"issue_date"`
	ValidationDate *string `json:"validation_date"`
	ValidatorName  *string `json:"validator_name"`
}

type ClientInfo struct {
	ClientName    *string `json:"client_name"`
	ClientAddress *string `json:"client_address"`
	ClientID      *string `json:"client_id"`
}

type SampleInfo struct {
	ProductName    *string `json:"product_name"`
	LotNumber      *string `json:"lot_number"`
	SampleID       *string `json:"sample_id"`
	DateReceived   *string `json:"date_received"`
	DateAnalyzed   *string `json:"date_analyzed"`
	DateCollected  *string `json:"date_collected"`
	ProductFormat  *string `json:"product_format"`
	BestBeforeDate *string `json:"best_before_date"`
	Supplier       *string `json:"supplier"`
	EANCode        *string `json:"ean_code"`
}

// AnalysisResult is one row of the report's results tables.
type AnalysisResult struct {
	Parameter     *string `json:"parameter"`
	Result        *string `json:"result"`
	Unit          *string `json:"unit"`
	Specification *string `json:"specification"`
	Uncertainty   *string `json:"uncertainty"`
	Method        *string `json:"method"`
}

// Field is a read-only view of one leaf, used by renderers.
type Field struct {
	Key   string
	Label string
	Value *string
}

// Section groups the fields of one top-level object.
type Section struct {
	Key    string
	Label  string
	Fields []Field
}

type binding struct {
	key string
	dst **string
}

func (r *ReportInfo) bindings() []binding {
	return []binding{
		{"lab_name", &r.LabName},
		{"report_id", &r.ReportID},
		{"issue_date", &r.IssueDate},
		{"validation_date", &r.ValidationDate},
		{"validator_name", &r.ValidatorName},
	}
}

func (c *ClientInfo) bindings() []binding {
	return []binding{
		{"client_name", &c.ClientName},
		{"client_address", &c.ClientAddress},
		{"client_id", &c.ClientID},
	}
}

func (s *SampleInfo) bindings() []binding {
	return []binding{
		{"product_name", &s.ProductName},
		{"lot_number", &s.LotNumber},
		{"sample_id", &s.SampleID},
		{"date_received", &s.DateReceived},
		{"date_analyzed", &s.DateAnalyzed},
		{"date_collected", &s.DateCollected},
		{"product_format", &s.ProductFormat},
		{"best_before_date", &s.BestBeforeDate},
		{"supplier", &s.Supplier},
		{"ean_code", &s.EANCode},
	}
}

func (a *AnalysisResult) bindings() []binding {
	return []binding{
		{"parameter", &a.Parameter},
		{"result", &a.Result},
		{"unit", &a.Unit},
		{"specification", &a.Specification},
		{"uncertainty", &a.Uncertainty},
		{"method", &a.Method},
	}
}

// Sections returns the three info sections in display order.
func (r *Record) Sections() []Section {
	return []Section{
		{Key: "report_info", Label: sectionLabels["report_info"], Fields: fieldsOf(r.ReportInfo.bindings())},
		{Key: "client_info", Label: sectionLabels["client_info"], Fields: fieldsOf(r.ClientInfo.bindings())},
		{Key: "sample_info", Label: sectionLabels["sample_info"], Fields: fieldsOf(r.SampleInfo.bindings())},
	}
}

// Fields returns the row's cells in column order.
func (a AnalysisResult) Fields() []Field {
	return fieldsOf(a.bindings())
}

// ResultColumns lists the analysis_results column keys in order.
func ResultColumns() []Field {
	var zero AnalysisResult
	return zero.Fields()
}

func fieldsOf(bs []binding) []Field {
	out := make([]Field, 0, len(bs))
	for _, b := range bs {
		out = append(out, Field{Key: b.key, Label: fieldLabels[b.key], Value: *b.dst})
	}
	return out
}

// Value dereferences an optional leaf, returning "" when absent.
func Value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
