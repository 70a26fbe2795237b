package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// OCCSymbol derives the standardized OPRA-style option symbol:
// TICKER + YYMMDD + C|P + strike*1000 zero-padded to 8 digits.
// Example: SPY 2024-03-15 put @ 450 -> SPY240315P00450000.
func OCCSymbol(underlying string, expiration time.Time, kind OptionKind, strike float64) string {
	letter := "C"
	if kind == OptionPut {
		letter = "P"
	}
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(strings.TrimSpace(underlying)),
		expiration.Format("060102"),
		letter,
		int(math.Round(strike*1000)))
}
