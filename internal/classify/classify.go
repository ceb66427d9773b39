package classify

import (
	"strings"

	"github.com/mpetrov/jobpool/internal/model"
)

// Keyword sets checked in order; the first set with a hit wins. Entry
// runs before senior so "entry-level senior consultant" still lands in
// the entry bucket, and senior before executive so "senior director"
// stays senior.
var (
	entryKeywords = []string{
		"intern", "internship", "new graduate", "entry level", "entry-level",
	}
	seniorKeywords = []string{
		"senior", "sr.", "lead", "principal", "director", "vp", "vice president",
	}
	executiveKeywords = []string{
		"executive", "chief", "ceo", "cto", "cfo",
	}
)

// Level maps a title+description pair to a seniority bucket by
// case-insensitive substring matching. Pure; defaults to mid when
// nothing matches.
func Level(title, description string) model.Level {
	text := strings.ToLower(title + " " + description)

	if containsAny(text, entryKeywords) {
		return model.LevelEntry
	}
	if containsAny(text, seniorKeywords) {
		return model.LevelSenior
	}
	if containsAny(text, executiveKeywords) {
		return model.LevelExecutive
	}
	return model.LevelMid
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
