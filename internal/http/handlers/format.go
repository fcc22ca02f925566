package handlers

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout     = "Jan 2, 2006"
	dateTimeLayout = "Jan 2, 2006 15:04 MST"
)

// FormatDate formats t for tables on the dashboard and admin pages.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

// FormatDateTime is FormatDate with the time of day, for responses and
// payment settlements.
func FormatDateTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeLayout)
}

// FormatMoney renders minor units, e.g. 2900 "usd" as "29.00 USD" and -50
// as "-0.50 USD".
func FormatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, strings.ToUpper(currency))
}
