package event

// Audit bus sources and detail types. Unrelated subsystems tag their error
// events with these so the correlator can match on (source, detailType,
// detail.<field>) triples.
const (
	SourceOrder   = "app.order"
	SourceInvoice = "app.invoice"

	DetailTypeOrder   = "order"
	DetailTypeInvoice = "invoice"
)

// Well-known detail values matched by correlator rules.
const (
	ReasonProductNotFound = "PRODUCT_NOT_FOUND"
	ErrorNoInvoiceNumber  = "FAIL_NO_INVOICE_NUMBER"
	ErrorInvoiceTimeout   = "TIMEOUT"
)

// AuditEvent is an error-classified event published on the audit bus.
// Detail carries the structured fields rules match on (reason, errorDetail)
// plus whatever context the emitting subsystem attaches.
type AuditEvent struct {
	Source     string         `json:"source"`
	DetailType string         `json:"detailType"`
	Detail     map[string]any `json:"detail"`
}
