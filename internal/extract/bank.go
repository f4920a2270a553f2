package extract

import (
	"time"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// bankExtractor parses bank transfer alerts. Banks use a wider set of
// operation-id label synonyms ("Referencia", "ID transacción") and never
// print a security code, so a bank-sourced record cannot pass the
// completeness gate of the automatic path and is left for manual handling.
// It doubles as the generic fallback for unrecognized text.
type bankExtractor struct {
	method domain.PaymentMethod
}

func (b bankExtractor) Method() domain.PaymentMethod { return b.method }

func (b bankExtractor) Extract(text string, now time.Time) Fields {
	var f Fields
	f.Amount, f.HasAmount = parseAmount(text)
	f.OperationID = parseOperationID(text, bankOperationRules)
	f.PaidAt, f.PaidAtParsed = parseTimestamp(text, now)
	if f.PayerName = parseNameByLabel(text); f.PayerName == "" {
		f.PayerName = parseNameByShape(text)
	}
	if f.PayerName == "" {
		f.PayerName = UnknownPayer
	}
	return f
}
