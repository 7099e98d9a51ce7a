// Package validate grades article files before any import may touch the
// dataset. The gate itself is coarse: required fields present and a
// resolvable slug. Dosage heuristics only add warnings and never fail a file.
package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/suptia/contentsync/internal/document"
)

// RequiredFields must all be present and non-empty for an article file to
// pass the gate.
var RequiredFields = []string{"name", "nameEn", "slug", "category", "description"}

// Issues counts problems found in one file.
type Issues struct {
	Critical int `json:"critical"`
	Warnings int `json:"warnings"`
}

// Result is the grade for a single article file. Validation never errors;
// read and parse failures fold into a failing Result.
type Result struct {
	File     string   `json:"file"`
	Passed   bool     `json:"passed"`
	Score    int      `json:"score"`
	Grade    string   `json:"grade"`
	Issues   Issues   `json:"issues"`
	Problems []string `json:"problems,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate reads and grades one article file.
func Validate(path string) Result {
	res := Result{File: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		return failed(res, fmt.Sprintf("read file: %v", err))
	}
	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return failed(res, fmt.Sprintf("parse JSON: %v", err))
	}

	var missing []string
	for _, field := range RequiredFields {
		if isEmpty(doc[field]) {
			missing = append(missing, field)
		}
	}
	if document.Slug(doc) == "" && !contains(missing, "slug") {
		missing = append(missing, "slug")
	}
	if len(missing) > 0 {
		res.Problems = []string{"missing required fields: " + strings.Join(missing, ", ")}
		res.Passed = false
		res.Grade = "D"
		res.Score = 0
		res.Issues.Critical = len(missing)
		return res
	}

	res.Warnings = dosageWarnings(doc)
	res.Issues.Warnings = len(res.Warnings)
	res.Passed = true
	res.Score = 100 - 5*len(res.Warnings)
	if res.Score < 60 {
		res.Score = 60
	}
	if res.Score == 100 {
		res.Grade = "S"
	} else {
		res.Grade = "A"
	}
	return res
}

func failed(res Result, problem string) Result {
	res.Passed = false
	res.Grade = "D"
	res.Score = 0
	res.Issues.Critical = 1
	res.Problems = []string{problem}
	return res
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// dosageFields are payload fields that commonly carry an amount statement.
var dosageFields = []string{"dosage", "recommendedDosage", "amount", "servingSize"}

var amountPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(mg|mcg|µg|g|iu)\b`)

// dosageWarnings extracts <number><unit> pairs from dosage-bearing text
// fields and flags implausible amounts. Heuristic only; a field without any
// recognizable amount is itself worth a warning since editors usually intend
// one.
func dosageWarnings(doc document.Document) []string {
	var warnings []string
	for _, field := range dosageFields {
		text, ok := doc[field].(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}
		matches := amountPattern.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: no dosage amount found in %q", field, text))
			continue
		}
		for _, m := range matches {
			value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
			if err != nil {
				continue
			}
			unit := strings.ToLower(m[2])
			if unit == "µg" {
				unit = "mcg"
			}
			if value <= 0 {
				warnings = append(warnings, fmt.Sprintf("%s: zero amount %q", field, m[0]))
				continue
			}
			if grams := toGrams(value, unit); grams > 100 {
				warnings = append(warnings, fmt.Sprintf("%s: implausibly large amount %q", field, m[0]))
			}
		}
	}
	return warnings
}

func toGrams(value float64, unit string) float64 {
	switch unit {
	case "g":
		return value
	case "mg":
		return value / 1e3
	case "mcg":
		return value / 1e6
	default: // IU has no fixed mass conversion; never flag it as too large
		return 0
	}
}
