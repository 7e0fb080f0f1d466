package laptime

import (
	"encoding/json"
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	testCases := []struct {
		in       interface{}
		expected float64
	}{
		{"45", 45},
		{"1:23.456", 83.456},
		{"01:05.5", 65.5},
		{"00:034", 34},
		{"0:34", 34},
		{"", 0},
		{nil, 0},
		{"abc", 0},
		{"NaN", 0},
		{"x:y", 0},
		{"1:abc", 60},
		{42.5, 42.5},
		{7, 7},
		{json.Number("12.25"), 12.25},
	}

	for _, testCase := range testCases {
		actual := Decode(testCase.in)

		if math.Abs(actual-testCase.expected) > 1e-9 {
			t.Errorf("Decode(%#v): expected %f, got %f", testCase.in, testCase.expected, actual)
		}
	}
}

func TestDecodeForList(t *testing.T) {
	for _, in := range []interface{}{"", nil, "abc", "NaN", "x:y"} {
		if !math.IsInf(DecodeForList(in), 1) {
			t.Errorf("DecodeForList(%#v) should be +Inf, got %f", in, DecodeForList(in))
		}
	}

	if DecodeForList("1:00.5") != 60.5 {
		t.Error("DecodeForList should parse valid times")
	}
}

func TestFormat(t *testing.T) {
	testCases := []struct {
		in       float64
		expected string
	}{
		{45, "45.000s"},
		{83.456, "1:23.456"},
		{60, "1:00.000"},
		{61.05, "1:01.050"},
		{599.999, "9:59.999"},
		{59.9996, "1:00.000"},
		{-3, "0.000s"},
		{math.NaN(), "N/A"},
		{math.Inf(1), "N/A"},
	}

	for _, testCase := range testCases {
		if actual := Format(testCase.in); actual != testCase.expected {
			t.Errorf("Format(%f): expected %s, got %s", testCase.in, testCase.expected, actual)
		}
	}

	if FormatForList(math.Inf(1)) != "-" {
		t.Error("FormatForList(+Inf) should be -")
	}

	if FormatPadded(65.5) != "01:05.500" {
		t.Errorf("unexpected padded format: %s", FormatPadded(65.5))
	}
}

func TestRoundTrip(t *testing.T) {
	for x := 0.001; x < 599.999; x += 0.7919 {
		decoded := Decode(Format(x))

		if math.Abs(decoded-x) > 0.001 {
			t.Errorf("round trip of %f gave %f (%s)", x, decoded, Format(x))
		}
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var out struct {
		A Value `json:"a"`
		B Value `json:"b"`
		C Value `json:"c"`
	}

	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "1:02.000", "c": "nope"}`), &out); err != nil {
		t.Fatal(err)
	}

	if out.A != 12.5 || out.B != 62 || out.C != 0 {
		t.Errorf("unexpected values: %+v", out)
	}
}
