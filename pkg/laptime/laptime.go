// Package laptime converts lap time strings to seconds and back.
//
// Two decode policies exist. The detail policy (Decode) maps anything unparseable to 0 so that
// downstream lap validation drops it. The list policy (DecodeForList) maps it to +Inf so that
// unknown times sort last.
package laptime

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// "00:034" style values are seconds written with a zero minute and leading zero
	zeroMinutePaddedRegex = regexp.MustCompile(`^00:0(\d+)$`)
	zeroMinuteRegex       = regexp.MustCompile(`^0:(\d+)$`)

	// leading numeric prefixes, so "45.000s" reads as 45
	floatPrefixRegex = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	intPrefixRegex   = regexp.MustCompile(`^[+-]?\d+`)
)

// Decode converts a lap time to seconds using the detail policy. Accepted inputs are numbers
// (returned as is), "M:SS[.mmm]" and "SS[.mmm]". Anything else decodes to 0.
func Decode(raw interface{}) float64 {
	return decode(raw, 0)
}

// DecodeForList converts a lap time to seconds using the list policy: unparseable input is +Inf.
func DecodeForList(raw interface{}) float64 {
	return decode(raw, math.Inf(1))
}

func decode(raw interface{}, sentinel float64) float64 {
	var out float64

	switch v := raw.(type) {
	case nil:
		return sentinel
	case float64:
		out = v
	case float32:
		out = float64(v)
	case int:
		out = float64(v)
	case int64:
		out = float64(v)
	case json.Number:
		f, err := v.Float64()

		if err != nil {
			return sentinel
		}

		out = f
	case Value:
		out = float64(v)
	case string:
		out = decodeString(v, sentinel)
	default:
		return sentinel
	}

	if math.IsNaN(out) || (math.IsInf(out, 0) && !math.IsInf(sentinel, 0)) {
		return sentinel
	}

	return out
}

func decodeString(s string, sentinel float64) float64 {
	s = strings.TrimSpace(s)

	if s == "" {
		return sentinel
	}

	if m := zeroMinutePaddedRegex.FindStringSubmatch(s); m != nil {
		return parseIntOr(m[1], sentinel)
	}

	if m := zeroMinuteRegex.FindStringSubmatch(s); m != nil {
		return parseIntOr(m[1], sentinel)
	}

	if strings.Contains(s, ":") {
		parts := strings.SplitN(s, ":", 2)

		minutes, minErr := parseIntPrefix(parts[0])
		seconds, secErr := parseFloatPrefix(parts[1])

		if minErr != nil && secErr != nil {
			return sentinel
		}

		if minErr != nil {
			minutes = 0
		}

		if secErr != nil || math.IsNaN(seconds) {
			seconds = 0
		}

		return float64(minutes)*60 + seconds
	}

	f, err := parseFloatPrefix(s)

	if err != nil {
		return sentinel
	}

	return f
}

func parseFloatPrefix(s string) (float64, error) {
	return strconv.ParseFloat(floatPrefixRegex.FindString(strings.TrimSpace(s)), 64)
}

func parseIntPrefix(s string) (int, error) {
	return strconv.Atoi(intPrefixRegex.FindString(strings.TrimSpace(s)))
}

func parseIntOr(s string, fallback float64) float64 {
	i, err := strconv.Atoi(s)

	if err != nil {
		return fallback
	}

	return float64(i)
}

// Format renders seconds as "M:SS.mmm", or "SS.mmms" under a minute. Non-finite values
// render as "N/A".
func Format(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "N/A"
	}

	if seconds < 0 {
		seconds = 0
	}

	// round to the millisecond first so 59.9996 becomes 1:00.000 rather than 0:60.000
	millis := math.Round(seconds * 1000)
	minutes := int(millis / 60000)
	secs := (millis - float64(minutes)*60000) / 1000

	if minutes > 0 {
		return fmt.Sprintf("%d:%06.3f", minutes, secs)
	}

	return fmt.Sprintf("%.3fs", secs)
}

// FormatForList is Format for the session list, where unknown times render as "-".
func FormatForList(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return "-"
	}

	return Format(seconds)
}

// FormatPadded renders seconds as "MM:SS.mmm", the form stored in the session index.
func FormatPadded(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}

	millis := math.Round(seconds * 1000)
	minutes := int(millis / 60000)
	secs := (millis - float64(minutes)*60000) / 1000

	return fmt.Sprintf("%02d:%06.3f", minutes, secs)
}

// Value is a number of seconds which unmarshals from either a JSON number or a lap time string.
type Value float64

func (v *Value) UnmarshalJSON(b []byte) error {
	var raw interface{}

	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*v = Value(Decode(raw))

	return nil
}

func (v Value) Seconds() float64 {
	return float64(v)
}
