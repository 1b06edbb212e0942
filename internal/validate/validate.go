// Package validate holds field and form validators for clinic records.
package validate

import (
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"clinic-admin-api/internal/model"
)

var ErrValidation = errors.New("validation failed")

// Error lists every problem found in one record.
type Error struct {
	Messages []string
}

func (e *Error) Error() string { return strings.Join(e.Messages, "; ") }

func (e *Error) Unwrap() error { return ErrValidation }

// Messages returns the messages of a validation error, or nil.
func Messages(err error) []string {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Messages
	}
	return nil
}

type checker struct {
	msgs []string
}

func (c *checker) check(ok bool, msg string) {
	if !ok {
		c.msgs = append(c.msgs, msg)
	}
}

func (c *checker) err() error {
	if len(c.msgs) == 0 {
		return nil
	}
	return &Error{Messages: c.msgs}
}

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	phoneStrip = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\t", "")
	timeRe     = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)
	dosageRe   = regexp.MustCompile(`(?i)^[0-9]+(\.[0-9]+)?\s*(mg|g|ml|tablet|cap|drops|puff|patch|injection)?$`)
	durationRe = regexp.MustCompile(`(?i)^[0-9]+\s*(day|week|month|year)s?$`)
	numberRe   = regexp.MustCompile(`^[A-Z]{3,5}-[0-9]{4}-[0-9]{3,5}$`)
	digitsRe   = regexp.MustCompile(`^[0-9]+$`)
)

var frequencies = []string{
	"once", "daily", "bid", "tid", "qid", "weekly", "monthly", "as_needed",
	"every_hour", "every_2_hours", "every_4_hours", "every_6_hours",
	"every_8_hours", "every_12_hours",
}

func Email(s string) bool { return emailRe.MatchString(s) }

// Phone accepts 10 to 15 digits with an optional leading +, ignoring spaces,
// dashes and parentheses.
func Phone(s string) bool { return phoneRe.MatchString(phoneStrip.Replace(s)) }

func luhn10(id string) bool {
	if len(id) != 10 || !digitsRe.MatchString(id) {
		return false
	}
	sum := 0
	for i := 0; i < 10; i++ {
		d := int(id[i] - '0')
		if i%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// SaudiID checks a national id: ten digits starting with 1 or 2.
func SaudiID(id string) bool {
	return luhn10(id) && (id[0] == '1' || id[0] == '2')
}

// Iqama checks a residency number: ten digits starting with 2.
func Iqama(id string) bool {
	return luhn10(id) && id[0] == '2'
}

func Date(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func Time(s string) bool { return timeRe.MatchString(s) }

// BirthDate rejects future dates and ages over 150 years.
func BirthDate(s string, now time.Time) bool {
	t, ok := model.ParseTime(s)
	if !ok || t.After(now) {
		return false
	}
	return now.Year()-t.Year() <= 150
}

func number(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return model.Float(v)
}

func between(v any, lo, hi float64) bool {
	f, ok := number(v)
	return ok && f >= lo && f <= hi
}

// Amount accepts money values from 0 to one million.
func Amount(v any) bool { return between(v, 0, 1_000_000) }

func Quantity(v any) bool { return between(v, 0, 10_000) }

func Percentage(v any) bool { return between(v, 0, 100) }

// Password requires eight characters with an upper case letter, a lower case
// letter and a digit.
func Password(pw string) bool {
	if len(pw) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

// PasswordStrength scores pw from 0 to 100.
func PasswordStrength(pw string) int {
	if pw == "" {
		return 0
	}
	score := 0
	if len(pw) >= 8 {
		score += 20
	}
	if len(pw) >= 12 {
		score += 10
	}
	var upper, lower, digit, other bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			other = true
		}
	}
	for _, ok := range []bool{upper, lower, digit, other} {
		if ok {
			score += 20
		}
	}
	if !hasRun(pw, 3) {
		score += 10
	}
	return min(score, 100)
}

// hasRun reports whether some character repeats n times in a row.
func hasRun(s string, n int) bool {
	rs := []rune(s)
	run := 1
	for i := 1; i < len(rs); i++ {
		if rs[i] == rs[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func Dosage(s string) bool { return dosageRe.MatchString(strings.TrimSpace(s)) }

func Frequency(s string) bool { return slices.Contains(frequencies, strings.ToLower(s)) }

func Duration(s string) bool { return durationRe.MatchString(strings.TrimSpace(s)) }

func Diagnosis(s string) bool {
	n := len([]rune(strings.TrimSpace(s)))
	return n >= 3 && n <= 500
}

func Notes(s string) bool { return len([]rune(s)) <= 2000 }

// DocumentNumber matches prescription and invoice numbers like INV-2024-001.
func DocumentNumber(s string) bool { return numberRe.MatchString(s) }

func BloodPressure(s string) bool {
	sys, dia, ok := strings.Cut(s, "/")
	if !ok {
		return false
	}
	a, err1 := strconv.Atoi(strings.TrimSpace(sys))
	b, err2 := strconv.Atoi(strings.TrimSpace(dia))
	return err1 == nil && err2 == nil &&
		a >= 60 && a <= 250 && b >= 40 && b <= 150 && a > b
}

// present mirrors a truthy form value: empty strings, zero and false are absent.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	}
	if f, ok := model.Float(v); ok {
		return f != 0
	}
	return true
}

func str(r model.Record, field string) string {
	return strings.TrimSpace(r.String(field))
}

func nameOK(s string) bool { return len([]rune(strings.TrimSpace(s))) >= 2 }
