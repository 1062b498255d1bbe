package matcher

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mj1618/voxnav/internal/textnorm"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// catalogFile is the on-disk catalog format.
type catalogFile struct {
	Fallback string              `yaml:"fallback"`
	Locales  map[string][]string `yaml:"locales"`
}

type phraseSet struct {
	exact    map[string]bool
	phrases  []string // exact phrases, sorted
	prefixes []string // template prefixes, each ending in a space
	words    map[string]bool
}

func (p *phraseSet) lookup(text string) bool {
	if p.exact[text] {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(text, prefix) && len(text) > len(prefix) {
			return true
		}
	}
	return false
}

// Catalog is the set of known commands per locale. It is immutable once
// built; reloads build a new Catalog.
type Catalog struct {
	fallback string
	keys     []string // keys[i] corresponds to the i-th matcher tag
	sets     map[string]*phraseSet
	matcher  language.Matcher
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog builds a Catalog from YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if len(f.Locales) == 0 {
		return nil, fmt.Errorf("catalog has no locales")
	}
	if f.Fallback == "" {
		f.Fallback = "en"
	}
	if _, ok := f.Locales[f.Fallback]; !ok {
		return nil, fmt.Errorf("fallback locale %q has no phrases", f.Fallback)
	}

	keys := []string{f.Fallback}
	for k := range f.Locales {
		if k != f.Fallback {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys[1:])

	c := &Catalog{fallback: f.Fallback, keys: keys, sets: make(map[string]*phraseSet, len(keys))}
	tags := make([]language.Tag, len(keys))
	for i, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			return nil, fmt.Errorf("locale %q: %w", k, err)
		}
		tags[i] = tag
		c.sets[k] = buildPhraseSet(f.Locales[k])
	}
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

func buildPhraseSet(entries []string) *phraseSet {
	p := &phraseSet{exact: make(map[string]bool), words: make(map[string]bool)}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		template := strings.HasSuffix(e, "*")
		norm := textnorm.Normalize(strings.TrimSuffix(e, "*"))
		if norm == "" {
			continue
		}
		for _, w := range strings.Fields(norm) {
			p.words[w] = true
		}
		if template {
			p.prefixes = append(p.prefixes, norm+" ")
			continue
		}
		if !p.exact[norm] {
			p.exact[norm] = true
			p.phrases = append(p.phrases, norm)
		}
	}
	sort.Strings(p.phrases)
	return p
}

// Fallback returns the fallback locale.
func (c *Catalog) Fallback() string {
	return c.fallback
}

// Locales returns the catalog locales, fallback first.
func (c *Catalog) Locales() []string {
	return append([]string(nil), c.keys...)
}

// Resolve maps a requested locale to the closest catalog locale. ok is
// false when no catalog locale is a plausible match; an empty locale
// resolves to the fallback.
func (c *Catalog) Resolve(locale string) (string, bool) {
	if locale == "" {
		return c.fallback, true
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "", false
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf == language.No {
		return "", false
	}
	return c.keys[idx], true
}

// Lookup reports whether normalized text is a command of the catalog
// locale key, either verbatim or through a template.
func (c *Catalog) Lookup(text, key string) bool {
	set, ok := c.sets[key]
	return ok && set.lookup(text)
}

// Phrases returns the exact phrases of a catalog locale.
func (c *Catalog) Phrases(key string) []string {
	if set, ok := c.sets[key]; ok {
		return set.phrases
	}
	return nil
}

// Words returns every word used by a catalog locale, templates included.
func (c *Catalog) Words(key string) map[string]bool {
	if set, ok := c.sets[key]; ok {
		return set.words
	}
	return nil
}
