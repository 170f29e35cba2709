// Package formfields maps raw driver-application form keys to display labels
// and a canonical display order.
package formfields

import (
	"slices"
	"strings"
	"unicode"
)

// Entry is a single form key and its raw submitted value.
type Entry struct {
	Key   string
	Value any
}

var labels = map[string]string{
	"names":      "Full Name",
	"email":      "Email",
	"phone":      "Phone Number",
	"address_1":  "Address",
	"input_text": "Age",
	"datetime_5": "Desired Start Date",

	"dropdown": "Rental Duration",

	"input_radio_1": "Has Other Job",
	"input_text_2":  "Job Title",

	"input_radio_2": "Has Vehicle Insurance",
	"input_text_8":  "Insurance Company",

	"input_text_3": "Driving Platform",
	"input_text_4": "Driving Experience",
	"input_text_5": "Weekly Income",

	"input_radio_3": "Had Accidents (Last 4 Years)",
	"dropdown_1":    "Number of Accidents",
	"input_radio_4": "Had Moving Violations",
	"dropdown_2":    "Number of Violations",

	"input_text_6": "Previous Rental Companies",

	"input_radio_5": "Has Security Deposit",
	"input_text_10": "Available Funds for Deposit",

	"image-upload":   "Driver License",
	"image-upload_1": "Proof of Income",

	"description_3": "Additional Notes",
}

var order = []string{
	"names", "email", "phone", "address_1",
	"input_text", "datetime_5", "dropdown",
	"input_radio_1", "input_text_2",
	"input_radio_2", "input_text_8",
	"input_text_3", "input_text_4", "input_text_5",
	"input_radio_3", "dropdown_1",
	"input_radio_4", "dropdown_2",
	"input_text_6",
	"input_radio_5", "input_text_10",
	"image-upload", "image-upload_1",
	"description_3",
}

var hidden = map[string]struct{}{
	"__submission":                  {},
	"_fluentform_3_fluentformnonce": {},
	"_wp_http_referer":              {},
}

var priority = buildPriority(order)

func buildPriority(keys []string) map[string]int {
	index := make(map[string]int, len(keys))
	for position, key := range keys {
		index[key] = position
	}
	return index
}

// LabelFor returns the human label for a form key. Unknown keys have
// separators replaced by spaces and each word capitalized.
func LabelFor(key string) string {
	if label, ok := labels[key]; ok {
		return label
	}
	return titleize(key)
}

func titleize(key string) string {
	var builder strings.Builder
	builder.Grow(len(key))
	startOfWord := true
	for _, character := range key {
		if character == '-' || character == '_' {
			builder.WriteRune(' ')
			startOfWord = true
			continue
		}
		isWordCharacter := unicode.IsLetter(character) || unicode.IsDigit(character)
		if startOfWord && isWordCharacter {
			builder.WriteRune(unicode.ToUpper(character))
		} else {
			builder.WriteRune(character)
		}
		startOfWord = !isWordCharacter
	}
	return builder.String()
}

// OrderEntries returns a copy of entries sorted by the canonical field order.
// Keys outside the order follow all known keys and keep their relative order.
func OrderEntries(entries []Entry) []Entry {
	ordered := slices.Clone(entries)
	slices.SortStableFunc(ordered, compareEntries)
	return ordered
}

func compareEntries(left Entry, right Entry) int {
	leftIndex, leftKnown := priority[left.Key]
	rightIndex, rightKnown := priority[right.Key]
	switch {
	case !leftKnown && !rightKnown:
		return 0
	case !leftKnown:
		return 1
	case !rightKnown:
		return -1
	default:
		return leftIndex - rightIndex
	}
}

// IsHidden reports whether key is an internal submission field that callers
// should not display.
func IsHidden(key string) bool {
	_, ok := hidden[key]
	return ok
}

// Order returns a copy of the canonical field order.
func Order() []string {
	return slices.Clone(order)
}

// DisplayEntries converts form data into ordered, labelled entries with hidden
// fields removed. Map keys are visited lexicographically so unknown keys have
// a deterministic relative order.
func DisplayEntries(formData map[string]any) []Entry {
	keys := make([]string, 0, len(formData))
	for key := range formData {
		if IsHidden(key) {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, Entry{Key: key, Value: formData[key]})
	}
	return OrderEntries(entries)
}
