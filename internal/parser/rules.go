package parser

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Go's \b only knows ASCII word characters, so Cyrillic-aware boundaries are spelled out.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`

	// 1 850 000, 1.850.000, 59000
	groupedDigits = `\d{1,3}(?:[ .,]\d{3})+|\d+`
	groupedNumber = `(` + groupedDigits + `)`
	// grouped, then decimal (59.5 тыс), then plain
	mileageNumber = `(\d{1,3}(?:[ .,]\d{3})+|\d+[.,]\d+|\d+)`
)

// knownBrands are matched as literals, longest first so multi-word names win.
var knownBrands = []string{
	"BMW", "Mercedes", "Mercedes-Benz", "Audi", "Volkswagen", "VW",
	"Toyota", "Lexus", "Honda", "Nissan", "Mazda", "Subaru", "Mitsubishi",
	"Suzuki", "Infiniti", "Acura", "Daihatsu",
	"Hyundai", "Kia", "Genesis", "SsangYong", "Daewoo",
	"Porsche", "Land Rover", "Range Rover", "Jaguar", "Mini", "Volvo",
	"Ford", "Chevrolet", "Jeep", "Cadillac", "Dodge", "Chrysler", "GMC",
	"Peugeot", "Renault", "Citroen", "Fiat", "Alfa Romeo", "Opel", "Skoda", "SEAT",
	"BYD", "Chery", "Geely", "Haval", "Great Wall", "JAC", "Changan", "GAC",
	"Lifan", "Dongfeng", "FAW", "BAIC", "Hongqi", "Tank", "Exeed", "Omoda",
	"Lada", "ВАЗ", "УАЗ", "ГАЗ",
}

// brandCanonical folds spellings of the same make onto one name.
var brandCanonical = map[string]string{
	"mercedes": "Mercedes-Benz",
	"vw":       "Volkswagen",
	"ваз":      "Lada",
}

// brandAliases are colloquial Cyrillic names. Order matters: longer aliases
// sharing a prefix come first.
var brandAliases = []struct {
	alias string
	brand string
}{
	{"мерседес", "Mercedes-Benz"},
	{"мерс", "Mercedes-Benz"},
	{"бмв", "BMW"},
	{"бэха", "BMW"},
	{"тойота", "Toyota"},
	{"лексус", "Lexus"},
	{"хонда", "Honda"},
	{"ниссан", "Nissan"},
	{"мазда", "Mazda"},
	{"субару", "Subaru"},
	{"мицубиси", "Mitsubishi"},
	{"митсубиси", "Mitsubishi"},
	{"хёндай", "Hyundai"},
	{"хендай", "Hyundai"},
	{"хюндай", "Hyundai"},
	{"киа", "Kia"},
	{"ауди", "Audi"},
	{"фольксваген", "Volkswagen"},
	{"фольц", "Volkswagen"},
	{"порше", "Porsche"},
	{"вольво", "Volvo"},
	{"форд", "Ford"},
	{"шевроле", "Chevrolet"},
	{"джип", "Jeep"},
	{"пежо", "Peugeot"},
	{"рено", "Renault"},
	{"ситроен", "Citroen"},
	{"фиат", "Fiat"},
	{"шкода", "Skoda"},
	{"лада", "Lada"},
	{"ваз", "Lada"},
}

type aliasRule struct {
	brand string
	re    *regexp.Regexp
}

// ruleSet holds every compiled pattern. It is built once and shared read-only.
type ruleSet struct {
	brand     *regexp.Regexp
	canonical map[string]string
	aliases   []aliasRule

	yearMonth  *regexp.Regexp
	yearOnly   *regexp.Regexp
	yearInline *regexp.Regexp

	engineLabeled *regexp.Regexp
	engineInline  *regexp.Regexp
	horsepower    *regexp.Regexp

	mileageLabeled *regexp.Regexp
	mileageInline  *regexp.Regexp

	priceMillions *regexp.Regexp
	price         *regexp.Regexp
	negotiable    *regexp.Regexp
	noBargain     *regexp.Regexp

	condition    *regexp.Regexp
	fuel         *regexp.Regexp
	transmission *regexp.Regexp
	drive        *regexp.Regexp
	body         *regexp.Regexp
	color        *regexp.Regexp

	pictographs *regexp.Regexp
}

func compileRules() *ruleSet {
	brands := append([]string(nil), knownBrands...)
	sort.SliceStable(brands, func(i, j int) bool {
		return utf8.RuneCountInString(brands[i]) > utf8.RuneCountInString(brands[j])
	})

	canonical := make(map[string]string, len(brands))
	quoted := make([]string, 0, len(brands))
	for _, b := range brands {
		quoted = append(quoted, regexp.QuoteMeta(b))
		canonical[strings.ToLower(b)] = b
	}
	for k, v := range brandCanonical {
		canonical[k] = v
	}

	aliases := make([]aliasRule, 0, len(brandAliases))
	for _, a := range brandAliases {
		aliases = append(aliases, aliasRule{
			brand: a.brand,
			re:    regexp.MustCompile(`(?i)` + wordStart + regexp.QuoteMeta(a.alias) + `\p{L}*(?:[ \-]+(\S+))?`),
		})
	}

	yearLabel := `(?:год\s*выпуска|дата\s*выпуска|год)`

	return &ruleSet{
		// the model token may sit on the next line or be missing altogether
		brand:     regexp.MustCompile(`(?i)` + wordStart + `(` + strings.Join(quoted, "|") + `)(?:\s+(\S+)|` + wordEnd + `)`),
		canonical: canonical,
		aliases:   aliases,

		yearMonth:  regexp.MustCompile(`(?i)` + yearLabel + `[:\s]*(\d{1,2})[./](\d{4})`),
		yearOnly:   regexp.MustCompile(`(?i)` + yearLabel + `[:\s]*(\d{4})`),
		yearInline: regexp.MustCompile(`(?i)` + wordStart + `(20[012]\d)(?:\s*(?:г\.?|года))?` + wordEnd),

		engineLabeled: regexp.MustCompile(`(?i)(?:объ[её]м\s*(?:двигателя)?|двигатель)[:\s]*(\d+(?:[.,]\d+)?)\s*(t|т|л|l)?`),
		engineInline:  regexp.MustCompile(`(?i)` + wordStart + `(\d+[.,]\d+)\s*(t|т|л|l)` + wordEnd),
		horsepower:    regexp.MustCompile(`(?i)(\d+)\s*(?:л\.?\s*с\.?|hp|лошадиных|лошадей)`),

		mileageLabeled: regexp.MustCompile(`(?i)пробег[:\s]*` + mileageNumber + `\s*(тыс\.?)?`),
		mileageInline:  regexp.MustCompile(`(?i)` + wordStart + mileageNumber + `\s*(тыс\.?)?\s*км` + wordEnd),

		priceMillions: regexp.MustCompile(`(?i)` + wordStart + `(\d+(?:[.,]\d+)?)\s*(?:млн\.?|миллион)`),
		price: regexp.MustCompile(`(?i)` + wordStart + `(?:стоимость|цена|за)[:\s]*` + groupedNumber + `\s*(?:₽|руб|р\.?|rub)?` +
			`|` + groupedNumber + `\s*(?:₽|рублей|руб\.?)`),
		negotiable: regexp.MustCompile(`(?i)торг(?:\s+уместен)?`),
		noBargain:  regexp.MustCompile(`(?i)без\s+торга`),

		condition:    regexp.MustCompile(`(?i)состояние[: \t]*([^\n]+)`),
		fuel:         regexp.MustCompile(`(?i)(?:топливо|двигатель)[:\s]*(бензин|дизель|гибрид|электро|газ)`),
		transmission: regexp.MustCompile(`(?i)(?:кпп|коробка(?:\s*передач)?)[:\s]*(автомат|механика|робот|вариатор|акпп|мкпп|cvt)`),
		drive:        regexp.MustCompile(`(?i)привод[:\s]*(полный|передний|задний|4wd|awd|fwd|rwd)`),
		body:         regexp.MustCompile(`(?i)(?:кузов|тип)[:\s]*(седан|хэтчбек|универсал|кроссовер|внедорожник|купе|минивэн|пикап|suv)`),
		color:        regexp.MustCompile(`(?i)цвет(?:\s*кузова)?[:\s]*([\p{L}-]+)`),

		pictographs: regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{1F900}-\x{1F9FF}\x{2702}-\x{27B0}\x{24C2}-\x{1F251}]+`),
	}
}
