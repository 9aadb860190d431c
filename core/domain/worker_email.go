package domain

// RawEmail is an inbound email as handed over by the ingestion side.
// Every field is optional; nil and "" both mean "absent".
type RawEmail struct {
	ID           string  `json:"id,omitempty"`
	Subject      *string `json:"subject,omitempty"`
	Body         *string `json:"body,omitempty"`
	SenderDomain *string `json:"sender_domain,omitempty"`
	CustomerType *string `json:"customer_type,omitempty"`
}

// CanonicalInput is the single text blob fed to the classifier, at training
// time and at inference time alike.
type CanonicalInput string

// ModelInputTemplateVersion identifies the layout of CanonicalInput.
// Bump it whenever the template changes; models trained on an older version
// must not score inputs rendered with a newer one.
const ModelInputTemplateVersion = 1

// Text returns a pointer to s, for building RawEmail literals.
func Text(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "" when p is nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// SenderDomainOr returns the sender domain, or fallback when absent.
func (e *RawEmail) SenderDomainOr(fallback string) string {
	if e == nil || e.SenderDomain == nil || *e.SenderDomain == "" {
		return fallback
	}
	return *e.SenderDomain
}
