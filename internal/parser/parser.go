// Package parser turns free-text vehicle sale posts into structured listings.
//
// Parsing is a pure function of the input text: rule tables are compiled once
// and never change, and a result is always returned, even for garbage input.
package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	titleMaxRunes     = 200
	conditionMaxRunes = 500

	minYear, maxYear             = 1990, 2030
	minEngine, maxEngine         = 0.5, 10.0
	minHorsepower, maxHorsepower = 30, 2000
	minInlineMileage             = 100
	minPrice, maxPrice           = 10_000, 100_000_000
)

var (
	sharedRules     *ruleSet
	sharedRulesOnce sync.Once
)

func rules() *ruleSet {
	sharedRulesOnce.Do(func() {
		sharedRules = compileRules()
	})
	return sharedRules
}

// Parser extracts listing attributes from post text. It is safe for concurrent use.
type Parser struct {
	rules       *ruleSet
	defaultCity string
}

// Option configures a Parser.
type Option func(*Parser)

// WithDefaultCity sets the city assigned to every listing.
func WithDefaultCity(city string) Option {
	return func(p *Parser) {
		p.defaultCity = city
	}
}

// New returns a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		rules:       rules(),
		defaultCity: "Владивосток",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts every recognizable attribute from text.
func (p *Parser) Parse(text string) *ParsedListing {
	res := &ParsedListing{
		OriginalText: text,
		City:         p.defaultCity,
	}

	clean := p.normalize(text)
	if clean == "" {
		res.blocked = true
		res.Errors = append(res.Errors, ErrEmptyText)
		return res
	}

	p.extractBrand(clean, res)
	p.extractYear(clean, res)
	p.extractEngine(clean, res)
	p.extractHorsepower(clean, res)
	p.extractMileage(clean, res)
	p.extractPrice(clean, res)
	p.extractSecondary(clean, res)

	if res.Brand != "" {
		res.Title = strings.TrimSpace(res.Brand + " " + res.Model)
	} else {
		first, _, _ := strings.Cut(clean, "\n")
		res.Title = truncateRunes(first, titleMaxRunes)
	}

	return res
}

// normalize drops pictographs and collapses horizontal whitespace.
// Line breaks survive so line-anchored rules keep working.
func (p *Parser) normalize(text string) string {
	text = p.rules.pictographs.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func (p *Parser) extractBrand(text string, res *ParsedListing) {
	if m := p.rules.brand.FindStringSubmatch(text); m != nil {
		res.Brand = p.canonicalBrand(m[1])
		res.Model = trimToken(m[2])
	} else {
		for _, a := range p.rules.aliases {
			m := a.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			res.Brand = a.brand
			res.Model = trimToken(m[1])
			break
		}
	}

	if res.Brand == "" {
		res.Errors = append(res.Errors, "brand: not found")
	}
	if res.Model == "" {
		res.Errors = append(res.Errors, "model: not found")
	}
}

func (p *Parser) canonicalBrand(raw string) string {
	if name, ok := p.rules.canonical[strings.ToLower(raw)]; ok {
		return name
	}
	return raw
}

func (p *Parser) extractYear(text string, res *ParsedListing) {
	if m := p.rules.yearMonth.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 && year >= minYear && year <= maxYear {
			res.Month = &month
			res.Year = &year
			return
		}
	}

	if m := p.rules.yearOnly.FindStringSubmatch(text); m != nil {
		if year, _ := strconv.Atoi(m[1]); year >= minYear && year <= maxYear {
			res.Year = &year
			return
		}
	}

	if m := p.rules.yearInline.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		res.Year = &year
		return
	}

	res.Errors = append(res.Errors, "year: not found")
}

func (p *Parser) extractEngine(text string, res *ParsedListing) {
	var rejected string
	if m := p.rules.engineLabeled.FindStringSubmatch(text); m != nil {
		vol := parseDecimal(m[1])
		// labeled values of 500 and up are cubic centimetres
		if vol >= 500 && vol <= 10_000 {
			vol = math.Round(vol/100) / 10
		}
		if vol > 0 && vol <= maxEngine {
			res.EngineVolumeL = &vol
			res.Turbo = turboMarker(m[2])
			return
		}
		rejected = m[1]
	}

	for _, m := range p.rules.engineInline.FindAllStringSubmatch(text, -1) {
		vol := parseDecimal(m[1])
		if vol < minEngine || vol > maxEngine {
			continue
		}
		res.EngineVolumeL = &vol
		res.Turbo = turboMarker(m[2])
		return
	}

	if rejected != "" {
		res.Errors = append(res.Errors, fmt.Sprintf("engine_volume: %s outside plausible range", rejected))
		return
	}
	res.Errors = append(res.Errors, "engine_volume: not found")
}

func turboMarker(unit string) *bool {
	switch strings.ToLower(unit) {
	case "t", "т":
		turbo := true
		return &turbo
	}
	return nil
}

func (p *Parser) extractHorsepower(text string, res *ParsedListing) {
	matches := p.rules.horsepower.FindAllStringSubmatch(text, -1)
	for _, m := range matches {
		hp, err := strconv.Atoi(m[1])
		if err != nil || hp < minHorsepower || hp > maxHorsepower {
			continue
		}
		res.Horsepower = &hp
		return
	}

	if len(matches) > 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("horsepower: %s outside plausible range", matches[0][1]))
		return
	}
	res.Errors = append(res.Errors, "horsepower: not found")
}

func (p *Parser) extractMileage(text string, res *ParsedListing) {
	if m := p.rules.mileageLabeled.FindStringSubmatch(text); m != nil {
		if km, ok := parseMileage(m[1], m[2] != ""); ok {
			res.MileageKm = &km
			return
		}
	}

	for _, m := range p.rules.mileageInline.FindAllStringSubmatch(text, -1) {
		km, ok := parseMileage(m[1], m[2] != "")
		if ok && km > minInlineMileage {
			res.MileageKm = &km
			return
		}
	}

	res.Errors = append(res.Errors, "mileage: not found")
}

// parseMileage reads a mileage figure; zero counts as not stated.
func parseMileage(raw string, thousands bool) (int, bool) {
	var km int
	if v := parseDecimal(strings.ReplaceAll(raw, " ", "")); thousands && v > 0 {
		km = int(math.Round(v * 1000))
	} else {
		n, ok := parseNumber(raw)
		if !ok {
			return 0, false
		}
		km = n
		if thousands {
			km *= 1000
		}
	}
	if km <= 0 {
		return 0, false
	}
	return km, true
}

func (p *Parser) extractPrice(text string, res *ParsedListing) {
	if m := p.rules.priceMillions.FindStringSubmatch(text); m != nil {
		rub := int64(math.Round(parseDecimal(m[1]) * 1_000_000))
		if rub >= minPrice && rub <= maxPrice {
			res.PriceRub = &rub
			return
		}
	}

	m := p.rules.price.FindStringSubmatch(text)
	if m == nil {
		res.Errors = append(res.Errors, "price: not found")
		return
	}

	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	n, ok := parseNumber(raw)
	if !ok || n < minPrice || n > maxPrice {
		res.Errors = append(res.Errors, fmt.Sprintf("price: %s outside plausible range", raw))
		return
	}
	rub := int64(n)
	res.PriceRub = &rub
}

func (p *Parser) extractSecondary(text string, res *ParsedListing) {
	r := p.rules

	res.PriceNegotiable = r.negotiable.MatchString(text) && !r.noBargain.MatchString(text)

	if m := r.condition.FindStringSubmatch(text); m != nil {
		res.ConditionText = truncateRunes(strings.TrimSpace(m[1]), conditionMaxRunes)
	}
	res.FuelType = firstGroupLower(r.fuel, text)
	res.Transmission = firstGroupLower(r.transmission, text)
	res.DriveType = firstGroupLower(r.drive, text)
	res.BodyType = firstGroupLower(r.body, text)
	res.Color = firstGroupLower(r.color, text)
}

func firstGroupLower(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

// parseNumber reads an integer written with space, dot or comma group separators.
func parseNumber(raw string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', ',':
			return -1
		}
		return r
	}, raw)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDecimal reads a number with either a dot or a comma as decimal separator.
func parseDecimal(raw string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func trimToken(tok string) string {
	return strings.TrimRight(tok, ".,;:!?()«»\"'")
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
