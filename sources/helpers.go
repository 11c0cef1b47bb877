package sources

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	reNumber     = regexp.MustCompile(`[\d]+(?:\.\d+)?`)
	reDigits     = regexp.MustCompile(`\d+`)
	reRelative   = regexp.MustCompile(`(?i)(\d+)\s*(day|month|year)s?\s+ago`)
	reReviewedOn = regexp.MustCompile(`(?i)^reviewed in .+? on\s+`)
)

// cleanText collapses runs of whitespace into single spaces and trims.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseRating pulls the leading number out of strings like
// "4.3 out of 5 stars" or "4.3". Returns nil when no number is present
// or the value falls outside [0, 5].
func parseRating(s string) *float64 {
	m := reNumber.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// parsePriceMinor converts a display price like "₹1,299.50" into minor
// currency units (129950). Returns nil when no usable number remains.
func parsePriceMinor(s string) *int64 {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" || cleaned == "." {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	minor := int64(math.Round(v * 100))
	return &minor
}

// parseCount extracts the first integer from text like
// "1,234 Ratings & 567 Reviews" or "3 people found this helpful".
func parseCount(s string) int {
	m := reDigits.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// parseReviewDate handles both absolute dates ("15 January 2024",
// "2024-01-15") and the relative forms review pages favor
// ("15 days ago", "2 months ago"). Returns nil when nothing parses;
// an unparseable date is a dropped optional field, not a failure.
func parseReviewDate(s string, now time.Time) *time.Time {
	s = cleanText(reReviewedOn.ReplaceAllString(s, ""))
	if s == "" {
		return nil
	}

	if m := reRelative.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		var t time.Time
		switch strings.ToLower(m[2]) {
		case "day":
			t = now.AddDate(0, 0, -n)
		case "month":
			t = now.AddDate(0, -n, 0)
		case "year":
			t = now.AddDate(-n, 0, 0)
		}
		return &t
	}

	if t, err := dateparse.ParseAny(s); err == nil {
		return &t
	}
	return nil
}

// firstMatch returns the regexp submatch of the first pattern that hits,
// honoring pattern priority order.
func firstMatch(s string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}
