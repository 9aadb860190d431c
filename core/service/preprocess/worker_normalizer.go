// Package preprocess turns raw email fields into the canonical model input.
//
// Pipeline per text field (order matters):
//
//	StripSignature      → cut at the first signature marker
//	MaskSensitiveTokens → [POLICY_ID] first, then [AMOUNT]
//	NormalizeWhitespace → single spaces, trimmed
//	lower-case          → last, policy-ID detection needs upper case
//
// The same functions run at training time and at inference time. Any change
// to their output or to the template invalidates trained models and must bump
// domain.ModelInputTemplateVersion.
package preprocess

import (
	"regexp"
	"strings"

	"triage_worker/core/domain"
)

// =============================================================================
// Patterns
// =============================================================================

var (
	// signaturePattern matches the leftmost signature marker. "best regards"
	// precedes "regards" so a match starting at the same offset keeps the
	// longer marker; offsets are taken on the original text.
	signaturePattern = regexp.MustCompile(`(?im)best regards|regards|thank you|thanks|sincerely|^--[ \t\r]*$`)

	// policyIDPattern matches policy numbers and reference ids.
	policyIDPattern = regexp.MustCompile(`\b[A-Z0-9]{8,}\b`)

	// amountPattern matches amounts with an optional currency symbol,
	// comma grouping and decimal fraction.
	amountPattern = regexp.MustCompile(`(?:[₹$€]\s?)?\b\d+(?:,\d+)*(?:\.\d+)?\b`)
)

// Placeholders written by MaskSensitiveTokens.
const (
	PlaceholderPolicyID = "[POLICY_ID]"
	PlaceholderAmount   = "[AMOUNT]"
)

// UnknownField replaces an absent sender domain or customer type.
const UnknownField = "unknown"

// =============================================================================
// Text cleaning
// =============================================================================

// StripSignature truncates text at the first signature marker.
// Text without a marker is returned unchanged. The heuristic also cuts
// legitimate body text containing a marker word.
func StripSignature(text string) string {
	loc := signaturePattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[:loc[0]]
}

// MaskSensitiveTokens replaces policy ids and then amounts with placeholders.
func MaskSensitiveTokens(text string) string {
	text = policyIDPattern.ReplaceAllLiteralString(text, PlaceholderPolicyID)
	text = amountPattern.ReplaceAllLiteralString(text, PlaceholderAmount)
	return text
}

// NormalizeWhitespace collapses whitespace runs to one space and trims.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// CleanText runs the full cleaning pipeline on an optional field.
func CleanText(text *string) string {
	if text == nil {
		return ""
	}
	return CleanString(*text)
}

// CleanString is CleanText for a present value.
func CleanString(text string) string {
	if text == "" {
		return ""
	}

	text = StripSignature(text)
	text = MaskSensitiveTokens(text)
	text = NormalizeWhitespace(text)
	return strings.ToLower(text)
}

// =============================================================================
// Model input
// =============================================================================

// BuildModelInput renders the canonical classifier input.
//
//	Subject: <subject>
//	Sender: <sender domain>
//	Customer Type: <customer type>
//
//	Email Body:
//	<body>
func BuildModelInput(subject, body, senderDomain, customerType *string) domain.CanonicalInput {
	var b strings.Builder

	b.WriteString("Subject: ")
	b.WriteString(CleanText(subject))
	b.WriteString("\nSender: ")
	b.WriteString(orUnknown(senderDomain))
	b.WriteString("\nCustomer Type: ")
	b.WriteString(orUnknown(customerType))
	b.WriteString("\n\nEmail Body:\n")
	b.WriteString(CleanText(body))

	return domain.CanonicalInput(b.String())
}

// BuildFromEmail is BuildModelInput over a RawEmail. A nil email renders the
// template with every field absent.
func BuildFromEmail(email *domain.RawEmail) domain.CanonicalInput {
	if email == nil {
		return BuildModelInput(nil, nil, nil, nil)
	}
	return BuildModelInput(email.Subject, email.Body, email.SenderDomain, email.CustomerType)
}

// ContentText returns the cleaned subject and body, one per line. Keyword
// evidence is taken from this text only; the sender domain and customer type
// lines of the model input never carry evidence.
func ContentText(email *domain.RawEmail) string {
	if email == nil {
		return ""
	}
	subject := CleanText(email.Subject)
	body := CleanText(email.Body)
	switch {
	case subject == "":
		return body
	case body == "":
		return subject
	}
	return subject + "\n" + body
}

func orUnknown(s *string) string {
	if s == nil || *s == "" {
		return UnknownField
	}
	return *s
}

// =============================================================================
// Normalizer
// =============================================================================

// Normalizer exposes the pipeline behind the in.Normalizer port.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize renders the canonical input for email.
func (n *Normalizer) Normalize(email *domain.RawEmail) domain.CanonicalInput {
	return BuildFromEmail(email)
}

// EvidenceText returns the cleaned content fields of email.
func (n *Normalizer) EvidenceText(email *domain.RawEmail) string {
	return ContentText(email)
}

// Version returns the template version of the rendered input.
func (n *Normalizer) Version() int {
	return domain.ModelInputTemplateVersion
}
