package rules

import (
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/internal/pkg/downstream"
)

const (
	DefaultTitleProperty = "Name"
	UntitledText         = "Untitled"
	maxTitleRunes        = 2000
)

// FieldMapping describes how processed text becomes record properties
type FieldMapping struct {
	TitleProperty  string        `json:"title_property,omitempty"`
	DateProperty   string        `json:"date_property,omitempty"`
	StatusProperty string        `json:"status_property,omitempty"`
	StatusValue    string        `json:"status_value,omitempty"`
	TagsProperty   string        `json:"tags_property,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	TimeZone       string        `json:"time_zone,omitempty"`
	Custom         []CustomField `json:"custom,omitempty"`
}

// CustomField is a fixed-typed property. Value may reference {text} and {date}.
type CustomField struct {
	Property string `json:"property"`
	Type     string `json:"type"`
	Value    string `json:"value"`
}

// Project builds the property set for processedText. It is deterministic for
// the same inputs.
func Project(processedText string, m FieldMapping, now time.Time) downstream.Properties {
	props := downstream.Properties{}

	titleProp := m.TitleProperty
	if titleProp == "" {
		titleProp = DefaultTitleProperty
	}
	props[titleProp] = downstream.Title(title(processedText))

	date := now.In(location(m.TimeZone)).Format("2006-01-02")
	if m.DateProperty != "" {
		props[m.DateProperty] = downstream.Date(date)
	}
	if m.StatusProperty != "" && m.StatusValue != "" {
		props[m.StatusProperty] = downstream.Select(m.StatusValue)
	}
	if m.TagsProperty != "" && len(m.Tags) > 0 {
		props[m.TagsProperty] = downstream.MultiSelect(m.Tags...)
	}

	for _, f := range m.Custom {
		if f.Property == "" {
			continue
		}
		value := strings.NewReplacer("{text}", processedText, "{date}", date).Replace(f.Value)
		if p, ok := customProperty(f.Type, value); ok {
			props[f.Property] = p
		} else {
			log.Warnf("[Rules] skipping custom field %q: cannot use %q as %s", f.Property, value, f.Type)
		}
	}
	return props
}

func customProperty(typ, value string) (downstream.Property, bool) {
	switch typ {
	case "", "text":
		return downstream.RichText(value), true
	case "number":
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return downstream.Property{}, false
		}
		return downstream.Number(n), true
	case "select":
		if value == "" {
			return downstream.Property{}, false
		}
		return downstream.Select(value), true
	case "checkbox":
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return downstream.Property{}, false
		}
		return downstream.Checkbox(b), true
	case "url":
		if value == "" {
			return downstream.Property{}, false
		}
		return downstream.URL(value), true
	}
	return downstream.Property{}, false
}

func title(text string) string {
	if text == "" {
		return UntitledText
	}
	if utf8.RuneCountInString(text) <= maxTitleRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTitleRunes])
}

func location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warnf("[Rules] unknown time zone %q, using UTC", name)
		return time.UTC
	}
	return loc
}
