package policy

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
)

type Direction string

const (
	LTR Direction = "ltr"
	RTL Direction = "rtl"
)

var defaultDirections = map[string]Direction{
	"he":  RTL,
	"iw":  RTL,
	"ar":  RTL,
	"fa":  RTL,
	"ur":  RTL,
	"yi":  RTL,
	"ps":  RTL,
	"sd":  RTL,
	"ug":  RTL,
	"dv":  RTL,
	"ckb": RTL,
}

// Vendor records carry free-form names as often as ISO codes.
var defaultNames = map[string]string{
	"english":    "en",
	"hebrew":     "he",
	"עברית":      "he",
	"arabic":     "ar",
	"عربي":       "ar",
	"العربية":    "ar",
	"russian":    "ru",
	"русский":    "ru",
	"french":     "fr",
	"spanish":    "es",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"turkish":    "tr",
	"chinese":    "zh",
	"japanese":   "ja",
	"persian":    "fa",
	"farsi":      "fa",
	"urdu":       "ur",
	"yiddish":    "yi",
	"kazakh":     "kk",
	"ukrainian":  "uk",
	"polish":     "pl",
	"dutch":      "nl",
	"hindi":      "hi",
}

// LanguageTable maps vendor language values to a base language code and a
// text direction. Lookups are deterministic for a given table.
type LanguageTable struct {
	mu         sync.RWMutex
	base       string
	directions map[string]Direction
	names      map[string]string
}

func NewLanguageTable(base string) *LanguageTable {
	t := &LanguageTable{
		directions: make(map[string]Direction, len(defaultDirections)),
		names:      make(map[string]string, len(defaultNames)),
	}
	for k, v := range defaultDirections {
		t.directions[k] = v
	}
	for k, v := range defaultNames {
		t.names[k] = v
	}
	t.base = "en"
	if code, ok := t.parse(base); ok {
		t.base = code
	}
	return t
}

func (t *LanguageTable) Base() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.base
}

// SetDirection overrides the direction of a language code.
func (t *LanguageTable) SetDirection(code string, dir Direction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.directions[strings.ToLower(strings.TrimSpace(code))] = dir
}

// SetName maps a free-form language name to a code.
func (t *LanguageTable) SetName(name, code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[strings.ToLower(strings.TrimSpace(name))] = strings.ToLower(strings.TrimSpace(code))
}

// Resolve returns the language code and direction for a vendor language.
// Missing or unparseable values fall back to the base language written
// left-to-right.
func (t *LanguageTable) Resolve(raw string) (string, Direction) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	code, ok := t.parse(raw)
	if !ok {
		return t.base, LTR
	}
	if dir, ok := t.directions[code]; ok {
		return code, dir
	}
	return code, LTR
}

func (t *LanguageTable) parse(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", false
	}
	if code, ok := t.names[v]; ok {
		return code, true
	}
	tag, err := language.Parse(v)
	if err != nil {
		return "", false
	}
	b, conf := tag.Base()
	if conf == language.No || b.String() == "und" {
		return "", false
	}
	return b.String(), true
}
