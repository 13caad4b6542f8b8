package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/downstream"
)

// Matcher decides whether a rule applies to a message
type Matcher struct {
	Type          string `json:"type"`
	Pattern       string `json:"pattern"`
	CaseSensitive bool   `json:"case_sensitive"`
	Flags         string `json:"flags,omitempty"`
}

// Action is what happens to a matching message
type Action struct {
	DatabaseID    string       `json:"database_id"`
	FieldMapping  FieldMapping `json:"field_mapping"`
	RemovePattern bool         `json:"remove_pattern"`
}

type Rule struct {
	ID       uint    `json:"id"`
	Priority int     `json:"priority"`
	Matcher  Matcher `json:"matcher"`
	Action   Action  `json:"action"`
}

type MatchResult struct {
	Rule          Rule
	ProcessedText string
	Properties    downstream.Properties
}

// FromModel converts a stored rule. A malformed field mapping is an error so
// the caller can skip the rule instead of writing half-mapped records.
func FromModel(m models.Rule) (Rule, error) {
	var fm FieldMapping
	if strings.TrimSpace(m.FieldMapping) != "" {
		if err := json.Unmarshal([]byte(m.FieldMapping), &fm); err != nil {
			return Rule{}, fmt.Errorf("rule %d: invalid field mapping: %w", m.ID, err)
		}
	}
	return Rule{
		ID:       m.ID,
		Priority: m.Priority,
		Matcher: Matcher{
			Type:          m.MatcherType,
			Pattern:       m.Pattern,
			CaseSensitive: m.CaseSensitive,
			Flags:         m.RegexFlags,
		},
		Action: Action{
			DatabaseID:    m.DatabaseID,
			FieldMapping:  fm,
			RemovePattern: m.RemovePattern,
		},
	}, nil
}

// Match evaluates rules in ascending priority and returns the first hit.
// Rules after the winner are never evaluated.
func Match(text string, rules []Rule, now time.Time) (*MatchResult, bool) {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, r := range ordered {
		loc := r.Matcher.find(text)
		if loc == nil {
			continue
		}
		processed := text
		if r.Action.RemovePattern {
			processed = text[:loc[0]] + text[loc[1]:]
		}
		processed = strings.TrimSpace(processed)
		return &MatchResult{
			Rule:          r,
			ProcessedText: processed,
			Properties:    Project(processed, r.Action.FieldMapping, now),
		}, true
	}
	return nil, false
}

// find returns the byte span of the matched fragment, nil when not matching
func (m Matcher) find(text string) []int {
	re := m.compile()
	if re == nil {
		return nil
	}
	return re.FindStringIndex(text)
}

func (m Matcher) compile() *regexp.Regexp {
	var expr string
	switch m.Type {
	case models.MatcherPrefix:
		if m.Pattern == "" {
			return nil
		}
		expr = "^" + regexp.QuoteMeta(m.Pattern)
		if !m.CaseSensitive {
			expr = "(?i)" + expr
		}
	case models.MatcherKeyword, models.MatcherContains:
		if m.Pattern == "" {
			return nil
		}
		expr = "(?i)" + regexp.QuoteMeta(m.Pattern)
	case models.MatcherRegex:
		expr = regexFlags(m.Flags) + m.Pattern
	default:
		log.Warnf("[Rules] unknown matcher type %q", m.Type)
		return nil
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		log.Warnf("[Rules] invalid pattern %q: %v", m.Pattern, err)
		return nil
	}
	return re
}

// regexFlags keeps the flags RE2 understands (i, m, s)
func regexFlags(flags string) string {
	var kept []rune
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(string(kept), f) {
				kept = append(kept, f)
			}
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return "(?" + string(kept) + ")"
}
