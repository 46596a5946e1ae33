// Package entity performs an ordered regex sweep over cleaned message
// text to recognize typed entities with confidence scores, plus a
// smaller pattern set for relationships between person entities.
package entity

import (
	"regexp"
	"sort"
	"strings"
)

// Entity is a single extracted entity occurrence.
type Entity struct {
	Text       string
	Type       string
	Confidence float64
	Start      int
	End        int
	Context    string
}

// Relationship is a detected connection between entities mentioned in
// the same text.
type Relationship struct {
	Type       string
	Entities   []string
	Context    string
	Confidence float64
}

type patternDef struct {
	re          *regexp.Regexp
	baseConf    float64
}

type typeConfig struct {
	patterns []patternDef
	exclude  map[string]struct{}
}

var Types = []string{"person", "organization", "location", "skill", "temporal", "technology", "food", "hobby", "financial"}

var excludePerson = set("Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
	"January", "February", "March", "April", "May", "June", "July", "August",
	"September", "October", "November", "December", "Google", "Microsoft", "Apple")

var excludeSkill = set("very", "really", "quite", "pretty", "being", "doing", "getting")
var excludeFood = set("good", "bad", "great", "terrible", "nice", "awful")
var excludeHobby = set("music", "games", "video", "board", "very", "really", "quite")

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func re(pattern string) *regexp.Regexp { return regexp.MustCompile(pattern) }

var typeConfigs = map[string]typeConfig{
	"person": {
		patterns: []patternDef{
			{re(`\b[A-Z][a-z]{1,15}(?:\s+[A-Z][a-z]{1,15}){1,3}\b`), 0.8},
			{re(`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+\b`), 0.9},
			{re(`\bI'm\s+([A-Z][a-z]+)\b`), 0.95},
			{re(`(?i)\bmy name is\s+([A-Z][a-z]+)\b`), 0.95},
			{re(`(?i)\bcalled\s+([A-Z][a-z]+)\b`), 0.7},
		},
		exclude: excludePerson,
	},
	"organization": {
		patterns: []patternDef{
			{re(`\b[A-Z][a-zA-Z\s&]{2,30}(?:Inc|Corp|Corporation|LLC|Ltd|Co|Company)\.?\b`), 0.9},
			{re(`\b(?:Google|Microsoft|Apple|Amazon|Facebook|Tesla|Netflix|Uber|Airbnb)\b`), 0.95},
			{re(`(?i)\bwork(?:s|ing)?\s+(?:at|for)\s+([A-Z][a-zA-Z\s&]{2,20})\b`), 0.8},
			{re(`\b([A-Z][a-zA-Z\s&]{2,20})\s+(?:company|corporation|inc)\b`), 0.7},
		},
		exclude: map[string]struct{}{},
	},
	"location": {
		patterns: []patternDef{
			{re(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*,?\s+[A-Z]{2}\b`), 0.9},
			{re(`(?i)\blive(?:s)?\s+in\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`), 0.85},
			{re(`(?i)\bfrom\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`), 0.7},
			{re(`\b(?:San Francisco|New York|Los Angeles|Chicago|Boston|Seattle|Denver|Austin|Miami|Dallas)\b`), 0.95},
			{re(`\b[A-Z][a-z]+\s+(?:Street|St|Avenue|Ave|Road|Rd|Drive|Dr|Boulevard|Blvd)\b`), 0.8},
		},
		exclude: map[string]struct{}{},
	},
	"skill": {
		patterns: []patternDef{
			{re(`(?i)\b(?:proficient|skilled|expert|experienced)\s+(?:in|with|at)\s+([A-Za-z\s+#.]{2,20})\b`), 0.9},
			{re(`(?i)\bknow(?:s)?\s+([A-Z][a-zA-Z\s+#.]{2,15})\b`), 0.6},
			{re(`(?i)\bcan\s+([a-z\s]{3,20})\b`), 0.5},
			{re(`\b(?:Python|JavaScript|Java|C\+\+|React|Angular|Node\.js|SQL|HTML|CSS)\b`), 0.9},
			{re(`(?i)\blearning\s+([A-Za-z\s+#.]{2,20})\b`), 0.7},
		},
		exclude: excludeSkill,
	},
	"temporal": {
		patterns: []patternDef{
			{re(`(?i)\b(?:yesterday|today|tomorrow|tonight)\b`), 0.95},
			{re(`(?i)\b(?:last|next|this)\s+(?:week|month|year|weekend|Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday)\b`), 0.9},
			{re(`\b\d{1,2}[:/]\d{1,2}(?:[:/]\d{2,4})?\b`), 0.8},
			{re(`(?i)\b\d{1,2}:\d{2}(?:\s?[ap]m)?\b`), 0.85},
			{re(`(?i)\b(?:at|on|in)\s+\d{1,2}(?::\d{2})?\s?(?:am|pm)\b`), 0.9},
			{re(`(?i)\b\d+\s+(?:days?|weeks?|months?|years?)\s+(?:ago|from now)\b`), 0.85},
		},
		exclude: map[string]struct{}{},
	},
	"technology": {
		patterns: []patternDef{
			{re(`\b(?:Python|JavaScript|Java|C\+\+|C#|PHP|Ruby|Go|Rust|Swift|Kotlin)\b`), 0.9},
			{re(`\b(?:React|Angular|Vue|Node\.js|Django|Flask|Spring|Laravel)\b`), 0.9},
			{re(`\b(?:AWS|Azure|GCP|Docker|Kubernetes|Git|GitHub|GitLab)\b`), 0.9},
			{re(`\b(?:SQL|MySQL|PostgreSQL|MongoDB|Redis|Elasticsearch)\b`), 0.9},
			{re(`(?i)\b(?:AI|ML|machine learning|deep learning|neural network)\b`), 0.8},
		},
		exclude: map[string]struct{}{},
	},
	"food": {
		patterns: []patternDef{
			{re(`(?i)\b(?:pizza|pasta|sushi|burger|sandwich|salad|soup|steak|chicken|fish)\b`), 0.8},
			{re(`(?i)\b(?:Italian|Chinese|Japanese|Mexican|Indian|Thai|French|American)\s+food\b`), 0.9},
			{re(`(?i)\b(?:restaurant|cafe|diner|bistro|eatery)\b`), 0.7},
			{re(`(?i)\b(?:love|like|enjoy|hate|dislike)\s+([a-z\s]{3,15}food|[a-z]{3,15})\b`), 0.6},
		},
		exclude: excludeFood,
	},
	"hobby": {
		patterns: []patternDef{
			{re(`(?i)\b(?:reading|writing|drawing|painting|photography|music|guitar|piano|singing)\b`), 0.8},
			{re(`(?i)\b(?:hiking|running|cycling|swimming|yoga|dancing|cooking|gardening)\b`), 0.8},
			{re(`(?i)\b(?:gaming|games|video games|board games|chess|poker)\b`), 0.7},
			{re(`(?i)\bplay(?:s|ing)?\s+([a-z\s]{3,15})\b`), 0.6},
			{re(`(?i)\bhobby|hobbies\b`), 0.5},
		},
		exclude: excludeHobby,
	},
	"financial": {
		patterns: []patternDef{
			{re(`\$\d{1,3}(?:,\d{3})*(?:\.\d{2})?\b`), 0.9},
			{re(`\b\d+(?:\.\d+)?%\b`), 0.8},
			{re(`(?i)\b(?:salary|income|revenue|profit|budget|cost|price|expense)\b`), 0.7},
			{re(`(?i)\b(?:million|billion|thousand|M|B|K)\b`), 0.6},
		},
		exclude: map[string]struct{}{},
	},
}

var relationshipPatterns = map[string][]*regexp.Regexp{
	"family": {
		re(`(?i)\bmy\s+(mother|father|mom|dad|sister|brother|son|daughter|wife|husband|parent|child)\b`),
		re(`(?i)\b(mother|father|mom|dad|sister|brother|son|daughter|wife|husband)\s+([A-Z][a-z]+)\b`),
	},
	"friend": {
		re(`(?i)\bmy\s+(?:best\s+)?friend\s+([A-Z][a-z]+)\b`),
		re(`(?i)\bfriend(?:s)?\s+([A-Z][a-z]+(?:\s+and\s+[A-Z][a-z]+)*)\b`),
	},
	"colleague": {
		re(`(?i)\bcolleague\s+([A-Z][a-z]+)\b`),
		re(`(?i)\bwork(?:s)?\s+with\s+([A-Z][a-z]+)\b`),
		re(`(?i)\bteam(?:mate)?\s+([A-Z][a-z]+)\b`),
	},
	"manager": {
		re(`(?i)\bmy\s+(?:manager|boss|supervisor)\s+([A-Z][a-z]+)\b`),
		re(`(?i)\bmanager\s+([A-Z][a-z]+)\b`),
	},
}

// Extract sweeps text for all known entity types, deduplicates
// overlapping matches (keeping the higher-confidence one), and returns
// the result sorted by start position. focusTypes, if non-empty,
// restricts the sweep to those types.
func Extract(text string, focusTypes []string) []Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	types := Types
	if len(focusTypes) > 0 {
		types = focusTypes
	}

	var entities []Entity
	for _, t := range types {
		cfg, ok := typeConfigs[t]
		if !ok {
			continue
		}
		entities = append(entities, extractType(text, t, cfg)...)
	}

	entities = deduplicate(entities)
	sort.Slice(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	return entities
}

func extractType(text, entityType string, cfg typeConfig) []Entity {
	var out []Entity
	for _, p := range cfg.patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			var start, end int
			if len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			} else {
				start, end = m[0], m[1]
			}
			entityText := strings.TrimSpace(text[start:end])
			if _, excluded := cfg.exclude[entityText]; excluded {
				continue
			}
			if len([]rune(entityText)) < 2 {
				continue
			}
			confidence := scoreConfidence(entityText, entityType, text, p.baseConf)
			if confidence < 0.3 {
				continue
			}
			out = append(out, Entity{
				Text:       entityText,
				Type:       entityType,
				Confidence: confidence,
				Start:      start,
				End:        end,
				Context:    context(text, start, end, 20),
			})
		}
	}
	return out
}

func scoreConfidence(entityText, entityType, fullText string, base float64) float64 {
	confidence := base
	n := len([]rune(entityText))
	switch {
	case n < 3:
		confidence *= 0.7
	case n > 20:
		confidence *= 0.8
	}

	if entityType == "person" || entityType == "organization" || entityType == "location" {
		if isTitleCase(entityText) {
			confidence *= 1.1
		} else if entityText == strings.ToLower(entityText) {
			confidence *= 0.7
		}
	}

	lower := strings.ToLower(fullText)
	switch entityType {
	case "person":
		if containsAny(lower, "my name", "i am", "i'm", "called") {
			confidence *= 1.2
		}
	case "organization":
		if containsAny(lower, "work at", "work for", "company", "job") {
			confidence *= 1.1
		}
	case "location":
		if containsAny(lower, "live in", "from", "located", "city") {
			confidence *= 1.1
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func isTitleCase(s string) bool {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		r := []rune(f)
		if len(r) == 0 || !isUpper(r[0]) {
			return false
		}
		for _, c := range r[1:] {
			if isUpper(c) {
				return false
			}
		}
	}
	return true
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func context(text string, start, end, window int) string {
	runes := []rune(text)
	s := start - window
	if s < 0 {
		s = 0
	}
	e := end + window
	if e > len(runes) {
		e = len(runes)
	}
	ctx := strings.TrimSpace(string(runes[s:e]))
	if s > 0 {
		ctx = "..." + ctx
	}
	if e < len(runes) {
		ctx = ctx + "..."
	}
	return ctx
}

func overlaps(a, b Entity) bool {
	return !(a.End <= b.Start || b.End <= a.Start)
}

func deduplicate(entities []Entity) []Entity {
	if len(entities) == 0 {
		return entities
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].End < entities[j].End
	})

	var out []Entity
	for _, e := range entities {
		replaced := false
		dropped := false
		for i, existing := range out {
			if !overlaps(e, existing) {
				continue
			}
			if e.Confidence > existing.Confidence {
				out = append(out[:i], out[i+1:]...)
				replaced = true
			} else {
				dropped = true
			}
			break
		}
		if dropped {
			continue
		}
		if replaced {
			out = append(out, e)
			sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
			continue
		}
		out = append(out, e)
	}
	return out
}

// ExtractRelationships finds explicit family/friend/colleague/manager
// patterns plus an implicit mentioned_together relation for person
// entities mentioned within 50 characters of each other.
func ExtractRelationships(text string, entities []Entity) []Relationship {
	var relationships []Relationship

	for relType, patterns := range relationshipPatterns {
		for _, p := range patterns {
			for _, m := range p.FindAllStringSubmatchIndex(text, -1) {
				var ents []string
				if len(m) >= 4 && m[2] >= 0 {
					ents = append(ents, text[m[2]:m[3]])
				}
				relationships = append(relationships, Relationship{
					Type:       relType,
					Entities:   ents,
					Context:    context(text, m[0], m[1], 20),
					Confidence: 0.8,
				})
			}
		}
	}

	var people []Entity
	for _, e := range entities {
		if e.Type == "person" {
			people = append(people, e)
		}
	}
	for i, p1 := range people {
		for _, p2 := range people[i+1:] {
			distance := p1.Start - p2.Start
			if distance < 0 {
				distance = -distance
			}
			if distance < 50 {
				conf := 0.8 - float64(distance)/100.0
				if conf < 0.3 {
					conf = 0.3
				}
				relationships = append(relationships, Relationship{
					Type:       "mentioned_together",
					Entities:   []string{p1.Text, p2.Text},
					Context:    "proximity",
					Confidence: conf,
				})
			}
		}
	}

	return relationships
}
