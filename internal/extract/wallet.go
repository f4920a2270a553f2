package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/andeanpay/go-recon-backend/internal/domain"
)

// walletAExtractor parses the card-style wallet notification:
//
//	S/100
//	Maria Q. Flores
//	22 nov. 2025 | 11:34 a.m.
//	CÓDIGO DE SEGURIDAD
//	5 0 2
//	Nro. de operación
//	03443217
//
// It is the only variant that carries a security code.
type walletAExtractor struct{}

func (walletAExtractor) Method() domain.PaymentMethod { return domain.MethodWalletA }

// amountLineNameRE captures the line right below the amount, where the
// wallet card prints the payer name.
var amountLineNameRE = regexp.MustCompile(`(?i)S/\s*[\d,]+(?:\.\d+)?\s*\n\s*([^\n]+)`)

// labelLineRE recognizes card label lines that can sit where the payer name
// usually is when the name line is missing.
var labelLineRE = regexp.MustCompile(`(?i)^(?:nro\b|n[uú]mero\b|operaci[oó]n\b|c[óo]digo\b|seguridad\b)`)

func (walletAExtractor) Extract(text string, now time.Time) Fields {
	var f Fields
	f.Amount, f.HasAmount = parseAmount(text)
	f.SecurityCode = parseSecurityCode(text)
	f.OperationID = parseOperationID(text, operationRules)
	f.PaidAt, f.PaidAtParsed = parseTimestamp(text, now)
	f.PayerName = walletAName(text)
	if f.PayerName == "" {
		f.PayerName = UnknownPayer
	}
	return f
}

// walletAName prefers the amount-line position, then labels, then the
// capitalized-words fallback. A candidate that is itself a timestamp line
// is discarded (the name line is absent on some card layouts).
func walletAName(text string) string {
	if m := amountLineNameRE.FindStringSubmatch(text); m != nil {
		cand := strings.TrimSpace(m[1])
		if cand != "" && !localizedTimeRE.MatchString(cand) && !numericTimeRE.MatchString(cand) &&
			!labelLineRE.MatchString(cand) {
			return cand
		}
	}
	if name := parseNameByLabel(text); name != "" {
		return name
	}
	return parseNameByShape(text)
}

// walletBExtractor parses the second wallet variant. Its alerts label the
// sender explicitly and omit the security code.
type walletBExtractor struct{}

func (walletBExtractor) Method() domain.PaymentMethod { return domain.MethodWalletB }

func (walletBExtractor) Extract(text string, now time.Time) Fields {
	var f Fields
	f.Amount, f.HasAmount = parseAmount(text)
	f.OperationID = parseOperationID(text, operationRules)
	f.PaidAt, f.PaidAtParsed = parseTimestamp(text, now)
	if f.PayerName = parseNameByLabel(text); f.PayerName == "" {
		f.PayerName = parseNameByShape(text)
	}
	if f.PayerName == "" {
		f.PayerName = UnknownPayer
	}
	return f
}
