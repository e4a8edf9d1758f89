// Package validator applies the quantitative validation rules and
// cross-source reconciliation described in the extraction pipeline's
// final stage.
package validator

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"mtextract/internal/model"
)

// Validate checks result against template's rules and, if previousTimes
// is non-nil, against the prior extraction. It returns a copy of result
// with ValidationStatus and Confidence set, and any issue descriptions
// appended to ChangesFromPrevious.
func Validate(result model.ExtractionResult, rules model.ValidationRules, previousTimes []model.MassTime) model.ExtractionResult {
	if len(result.Times) == 0 {
		result.ValidationStatus = model.StatusFlagged
		result.Confidence = 0.0
		return result
	}

	var issues []string

	if len(result.Times) < rules.MinWeeklyMasses {
		issues = append(issues, fmt.Sprintf("Only %d masses found (min: %d)", len(result.Times), rules.MinWeeklyMasses))
	}
	if len(result.Times) > rules.MaxWeeklyMasses {
		issues = append(issues, fmt.Sprintf("%d masses found (max: %d)", len(result.Times), rules.MaxWeeklyMasses))
	}

	if rules.ExpectedSundayCount > 0 {
		sundayCount := 0
		for _, t := range result.Times {
			if t.Day == "Sunday" {
				sundayCount++
			}
		}
		switch {
		case sundayCount == 0:
			issues = append(issues, "No Sunday masses found")
		case abs(sundayCount-rules.ExpectedSundayCount) > 1:
			issues = append(issues, fmt.Sprintf("Sunday count %d differs from expected %d", sundayCount, rules.ExpectedSundayCount))
		}
	}

	if len(previousTimes) > 0 {
		prevSet := keySet(previousTimes)
		currSet := keySet(result.Times)
		if len(prevSet) > 0 && len(currSet) > 0 {
			changed := symmetricDifference(prevSet, currSet)
			changeRatio := float64(len(changed)) / float64(maxInt(len(prevSet), len(currSet)))
			if changeRatio > 0.5 && rules.AlertIfAllChange {
				issues = append(issues, fmt.Sprintf("%d times changed (%.0f%%) — possible extraction error", len(changed), changeRatio*100))
			}
		}
	}

	switch {
	case len(issues) == 0:
		result.ValidationStatus = model.StatusConfirmed
	case len(issues) == 1 && strings.Contains(issues[0], "differs from expected"):
		result.ValidationStatus = model.StatusProvisional
		result.Confidence = minFloat(result.Confidence, 0.7)
	default:
		result.ValidationStatus = model.StatusFlagged
		result.Confidence = minFloat(result.Confidence, 0.3)
	}

	if len(issues) > 0 {
		log.Printf("validation issues for %s: %v", result.ParishID, issues)
		result.ChangesFromPrevious = append(result.ChangesFromPrevious, issues...)
	}

	return result
}

// CrossReference picks the best of several extraction results for the
// same parish, preferring higher source-type priority then higher
// confidence, and boosts the winner's confidence when the runner-up
// substantially agrees with it.
func CrossReference(results []model.ExtractionResult) *model.ExtractionResult {
	if len(results) == 0 {
		return nil
	}
	if len(results) == 1 {
		return &results[0]
	}

	sorted := make([]model.ExtractionResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].SourceType.Priority(), sorted[j].SourceType.Priority()
		if pi != pj {
			return pi < pj
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	best := sorted[0]

	timesA := keySet(best.Times)
	timesB := keySet(sorted[1].Times)
	if len(timesA) > 0 && len(timesB) > 0 {
		overlap := 0
		for k := range timesA {
			if timesB[k] {
				overlap++
			}
		}
		overlapRatio := float64(overlap) / float64(maxInt(len(timesA), len(timesB)))
		if overlapRatio > 0.8 {
			best.Confidence = minFloat(1.0, best.Confidence+0.1)
			best.ValidationStatus = model.StatusConfirmed
			log.Printf("cross-reference confirms %s: %.0f%% agreement between sources", best.ParishID, overlapRatio*100)
		}
	}

	return &best
}

func keySet(times []model.MassTime) map[[2]string]bool {
	set := make(map[[2]string]bool, len(times))
	for _, t := range times {
		set[t.Key()] = true
	}
	return set
}

func symmetricDifference(a, b map[[2]string]bool) map[[2]string]bool {
	diff := make(map[[2]string]bool)
	for k := range a {
		if !b[k] {
			diff[k] = true
		}
	}
	for k := range b {
		if !a[k] {
			diff[k] = true
		}
	}
	return diff
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

