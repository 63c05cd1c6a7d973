// Package i18n provides localized user-facing messages for error codes.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
)

// BaseLocale is the locale used when nothing better matches.
const BaseLocale = "en-US"

// Code is a machine-readable error code (duplicated from errors package to avoid cycle).
type Code = string

// Catalog maps error codes to message templates for a specific locale.
type Catalog struct {
	locale   string
	messages map[Code]string
}

var supported = []struct {
	tag      language.Tag
	messages map[Code]string
}{
	{tag: language.AmericanEnglish, messages: enUSMessages},
	{tag: language.MustParse("fr-FR"), messages: frFRMessages},
}

var (
	matcher    language.Matcher
	catalogsMu sync.RWMutex
	catalogs   = map[string]*Catalog{}
)

func init() {
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		tags = append(tags, s.tag)
		catalogs[s.tag.String()] = NewCatalog(s.tag.String(), s.messages)
	}
	matcher = language.NewMatcher(tags)
}

// GetCatalog returns the catalog that best matches locale. locale may be a
// single tag or an Accept-Language value. Unmatched locales get en-US.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = BaseLocale
	}
	if c, ok := lookupCatalog(requested); ok {
		return c
	}
	_, index := language.MatchStrings(matcher, requested)
	c, _ := lookupCatalog(supported[index].tag.String())
	return c
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template for code with metadata. Unknown codes
// render as the code itself; broken templates render as the raw template.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	tmpl, ok := c.messages[code]
	if !ok {
		return code
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	t, err := template.New("msg").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

// RegisterCatalog registers a catalog under an exact locale key.
func RegisterCatalog(locale string, cat *Catalog) {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	catalogs[locale] = cat
}

// NewCatalog creates a new catalog with the given locale and messages.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	cloned := make(map[Code]string, len(messages))
	for key, value := range messages {
		cloned[key] = value
	}
	return &Catalog{locale: locale, messages: cloned}
}

func lookupCatalog(locale string) (*Catalog, bool) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	cat, ok := catalogs[locale]
	return cat, ok
}
