package coerce

import "regexp"

var (
	// day.month.year, e.g. 5.3.2024 or 05.03.2024.
	dateFormatRe = regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`)
	// digits, one comma, digits, e.g. 12,5.
	decimalCommaRe = regexp.MustCompile(`^\d+,\d+$`)
)

// IsDateFormat reports whether s is shaped like a day.month.year date.
// Calendar validity is not checked.
func IsDateFormat(s string) bool {
	return dateFormatRe.MatchString(s)
}

// IsDecimalComma reports whether s is a decimal number written with a comma
// separator.
func IsDecimalComma(s string) bool {
	return decimalCommaRe.MatchString(s)
}
