// Shared field rules used by all provider extractors. Every field follows
// the same shape: an ordered slice of regexps, first match wins, and a
// parse failure counts as "not found" rather than an error.
package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// --- amount ---

// amountRules recognize a currency marker followed by digits with optional
// thousands separators ("S/ 1,500.00", "PEN 100", "100 soles", "monto: 50").
var amountRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)S/\s*([\d,]+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)\bPEN\s*([\d,]+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?)\s*soles?\b`),
	regexp.MustCompile(`(?i)\bmonto[:\s]+([\d,]+(?:\.\d+)?)`),
}

// parseAmount returns the first strictly positive decimal amount in text.
// Zero, negative, and non-numeric captures are treated as "not found".
func parseAmount(text string) (decimal.Decimal, bool) {
	for _, re := range amountRules {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		d, err := decimal.NewFromString(raw)
		if err != nil || !d.IsPositive() {
			continue
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

// --- security code ---

// securityCodeRules capture the 3-digit confirmation code, tolerating
// space-separated digit groups as rendered on wallet notification cards
// ("5 0 2" and "502" both yield "502").
var securityCodeRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)c[óo]digo\s+de\s+seguridad[\s:]*((?:\d\s*){3})(?:\D|$)`),
	regexp.MustCompile(`(?i)\bseguridad[\s:]*((?:\d\s*){3})(?:\D|$)`),
}

func parseSecurityCode(text string) string {
	for _, re := range securityCodeRules {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		code := strings.Join(strings.Fields(m[1]), "")
		if len(code) == 3 {
			return code
		}
	}
	return ""
}

// --- operation id ---

// operationRules capture the numeric transaction id after a recognized
// label phrase, tolerant of accent variants.
var operationRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)nro\.?\s*de\s*operaci[oó]n[\s:]*(\d+)`),
	regexp.MustCompile(`(?i)n[uú]mero\s+de\s+operaci[oó]n[\s:]*(\d+)`),
	regexp.MustCompile(`(?i)\boperaci[oó]n[\s:]*(\d+)`),
}

// bankOperationRules add the label synonyms seen on bank transfer alerts.
var bankOperationRules = append(operationRules[:len(operationRules):len(operationRules)],
	regexp.MustCompile(`(?i)\breferencia[\s:]*(\d+)`),
	regexp.MustCompile(`(?i)\bid\s*(?:de\s*)?transacci[oó]n[\s:]*(\d+)`),
)

func parseOperationID(text string, rules []*regexp.Regexp) string {
	for _, re := range rules {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// --- payer name ---

// nameLabelRules capture a free-text name following a from/name label.
var nameLabelRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:de|desde|remitente)[:\s]+([^\n]+)`),
	regexp.MustCompile(`(?i)\b(?:nombre|titular)[:\s]+([^\n]+)`),
}

// capitalizedNameRE is the fallback heuristic: two or more consecutive
// capitalized words ("Maria Q. Flores").
var capitalizedNameRE = regexp.MustCompile(`\p{Lu}[\p{Ll}.]+(?:\s+\p{Lu}[\p{Ll}.]*)+`)

func parseNameByLabel(text string) string {
	for _, re := range nameLabelRules {
		if m := re.FindStringSubmatch(text); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	return ""
}

func parseNameByShape(text string) string {
	return strings.TrimSpace(capitalizedNameRE.FindString(text))
}

// --- timestamp ---

// Two date grammar families are supported: the localized wallet card form
// "22 nov. 2025 | 11:34 a.m." and the numeric form "22/11/2025 11:34".
var (
	localizedTimeRE = regexp.MustCompile(`(?i)(\d{1,2})\s+(ene|feb|mar|abr|may|jun|jul|ago|sep|oct|nov|dic)\.?\s+(\d{4})\s*\|\s*(\d{1,2}):(\d{2})\s*([ap])\.?\s?m\.?`)
	numericTimeRE   = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})\s+(\d{1,2}):(\d{2})`)
)

var monthAbbrev = map[string]time.Month{
	"ene": time.January, "feb": time.February, "mar": time.March,
	"abr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "ago": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dic": time.December,
}

// parseTimestamp extracts the payment timestamp. When neither grammar
// matches, it falls back to now so downstream time-window checks always
// have a value.
func parseTimestamp(text string, now time.Time) (time.Time, bool) {
	if m := localizedTimeRE.FindStringSubmatch(text); m != nil {
		day := atoi(m[1])
		month := monthAbbrev[strings.ToLower(m[2])]
		year := atoi(m[3])
		hour := atoi(m[4])
		minute := atoi(m[5])
		switch strings.ToLower(m[6]) {
		case "p":
			if hour != 12 {
				hour += 12
			}
		case "a":
			if hour == 12 {
				hour = 0
			}
		}
		if valid := day >= 1 && day <= 31 && hour < 24 && minute < 60; valid {
			return time.Date(year, month, day, hour, minute, 0, 0, time.Local), true
		}
	}
	if m := numericTimeRE.FindStringSubmatch(text); m != nil {
		day, month := atoi(m[1]), atoi(m[2])
		year, hour, minute := atoi(m[3]), atoi(m[4]), atoi(m[5])
		if day >= 1 && day <= 31 && month >= 1 && month <= 12 && hour < 24 && minute < 60 {
			return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.Local), true
		}
	}
	return now, false
}

// atoi is safe here: every input already matched \d+ in a rule.
func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
