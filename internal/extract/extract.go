// Package extract turns raw payment-alert text and OCR voucher text into
// structured fields. Each provider variant owns an ordered list of pattern
// rules per field; the first rule that matches wins. Extraction is pure and
// never fails: malformed input degrades to missing fields, and callers
// decide what to do with an incomplete result.
package extract

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// UnknownPayer is the fallback payer name when no rule matched.
const UnknownPayer = "Unknown"

// Fields is the best-effort structured result of one extraction. Boolean
// presence flags accompany values that have no natural zero sentinel.
type Fields struct {
	Amount       decimal.Decimal `json:"amount"`
	HasAmount    bool            `json:"has_amount"`
	PayerName    string          `json:"payer_name"`
	SecurityCode string          `json:"security_code"`
	OperationID  string          `json:"operation_id"`
	PaidAt       time.Time       `json:"paid_at"`
	PaidAtParsed bool            `json:"paid_at_parsed"`
}

// Usable reports whether the result can drive the automatic matching path.
// Amount and operation id are the two fields nothing downstream can
// substitute; everything else degrades gracefully.
func (f Fields) Usable() bool {
	return f.HasAmount && f.OperationID != ""
}

// Extractor is one provider-specific rule engine.
type Extractor interface {
	// Method identifies the provider variant this extractor handles.
	Method() domain.PaymentMethod
	// Extract parses text into Fields. now supplies the fallback timestamp
	// when no date grammar matches, so PaidAt is never the zero value.
	Extract(text string, now time.Time) Fields
}

// wordmark maps a provider wordmark found in alert or voucher text to the
// payment method it identifies. Matching is case-insensitive substring,
// first hit wins.
type wordmark struct {
	keyword string
	method  domain.PaymentMethod
}

var wordmarks = []wordmark{
	{"yape", domain.MethodWalletA},
	{"plin", domain.MethodWalletB},
	{"bcp", domain.MethodBank1},
	{"banco de credito", domain.MethodBank1},
	{"banco de crédito", domain.MethodBank1},
	{"interbank", domain.MethodBank2},
}

// Classify picks the payment method for a piece of text. Unrecognized text
// is not an error: it routes the record to manual review downstream.
func Classify(text string) domain.PaymentMethod {
	lower := strings.ToLower(text)
	for _, w := range wordmarks {
		if strings.Contains(lower, w.keyword) {
			return w.method
		}
	}
	return domain.MethodUnrecognized
}

// ForMethod returns the extractor for a payment method. Unrecognized (or
// unknown) methods fall back to the generic bank extractor, which knows the
// widest set of label synonyms; its output will usually be incomplete and
// that is the signal callers act on.
func ForMethod(m domain.PaymentMethod) Extractor {
	switch m {
	case domain.MethodWalletA:
		return walletAExtractor{}
	case domain.MethodWalletB:
		return walletBExtractor{}
	case domain.MethodBank1:
		return bankExtractor{method: domain.MethodBank1}
	case domain.MethodBank2:
		return bankExtractor{method: domain.MethodBank2}
	default:
		return bankExtractor{method: domain.MethodUnrecognized}
	}
}

// FromText classifies and extracts in one step, returning both the detected
// method and the parsed fields.
func FromText(text string, now time.Time) (domain.PaymentMethod, Fields) {
	m := Classify(text)
	return m, ForMethod(m).Extract(text, now)
}
