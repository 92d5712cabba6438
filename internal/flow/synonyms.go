package flow

import (
	"strings"

	"github.com/yomakenya/smsbridge/internal/models"
)

// genderSynonyms maps common phrasings to the display names the provider
// uses. Unrecognized tokens pass through lowercased and are matched against
// the snapshot directly.
var genderSynonyms = map[string]string{
	"f":                 "female",
	"female":            "female",
	"m":                 "male",
	"male":              "male",
	"prefer not to say": "prefer not to say",
	"prefer not":        "prefer not to say",
	"other":             "prefer not to say",
	"none":              "prefer not to say",
}

// educationSynonyms maps common phrasings to the provider's education level
// names.
var educationSynonyms = map[string]string{
	"none":                "no formal education",
	"no education":        "no formal education",
	"no formal":           "no formal education",
	"no formal education": "no formal education",
	"primary":             "primary",
	"primary school":      "primary",
	"secondary":           "secondary",
	"secondary school":    "secondary",
	"high school":         "secondary",
	"tertiary":            "tertiary",
	"college":             "tertiary",
	"university":          "tertiary",
	"college/university":  "tertiary",
}

// normalizeAnswer lowercases and trims input, then applies the synonym table.
// Unknown inputs pass through lowercased.
func normalizeAnswer(input string, synonyms map[string]string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if mapped, ok := synonyms[normalized]; ok {
		return mapped
	}
	return normalized
}

// resolveOption matches a normalized answer against a reference list by
// case-insensitive exact display name. Returns the option id and whether a
// match was found.
func resolveOption(input string, synonyms map[string]string, options []models.ReferenceOption) (string, bool) {
	normalized := normalizeAnswer(input, synonyms)
	for _, opt := range options {
		if strings.ToLower(strings.TrimSpace(opt.Name)) == normalized {
			return opt.ID, true
		}
	}
	return "", false
}
