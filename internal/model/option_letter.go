package model

import (
	"sort"
	"strings"
)

// OptionLetter identifies one of the answer options on a question (A–E).
type OptionLetter string

const (
	OptionA OptionLetter = "A"
	OptionB OptionLetter = "B"
	OptionC OptionLetter = "C"
	OptionD OptionLetter = "D"
	OptionE OptionLetter = "E"
)

func isOptionLetter(s string) bool {
	switch OptionLetter(s) {
	case OptionA, OptionB, OptionC, OptionD, OptionE:
		return true
	}
	return false
}

// AnswerSet is a sorted, deduplicated set of option letters. Answers are
// compared as sets, never as raw strings, so "B, a" and "A,B" are the same
// answer.
type AnswerSet []OptionLetter

// ParseAnswerSet normalizes a comma separated letter string into an AnswerSet.
// Whitespace and case are ignored; tokens that are not valid option letters
// are dropped.
func ParseAnswerSet(raw string) AnswerSet {
	seen := make(map[OptionLetter]bool)
	var set AnswerSet
	for _, tok := range strings.Split(raw, ",") {
		letter := strings.ToUpper(strings.TrimSpace(tok))
		if !isOptionLetter(letter) {
			continue
		}
		l := OptionLetter(letter)
		if seen[l] {
			continue
		}
		seen[l] = true
		set = append(set, l)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

func (s AnswerSet) String() string {
	parts := make([]string, len(s))
	for i, l := range s {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}

func (s AnswerSet) Empty() bool {
	return len(s) == 0
}

func (s AnswerSet) Equal(other AnswerSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}
