// Package i18n loads report templates and entity names and renders report lines.
package i18n

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

// FallbackLocale is always loaded underneath the configured locale
const FallbackLocale = "en"

var localeExtensions = []string{".json", ".yaml", ".yml"}

// Translator resolves template keys against locale files layered over built-in defaults.
// It is safe for concurrent use; Reload swaps the table atomically.
type Translator struct {
	dir    string
	locale string
	log    logging.Logger

	mu      sync.RWMutex
	strings map[string]string
	printer *message.Printer
}

// NewTranslator creates a translator and loads its locale files.
// dir may be empty, in which case only the built-in defaults are used.
func NewTranslator(dir, locale string, log logging.Logger) (*Translator, error) {
	if locale == "" {
		locale = FallbackLocale
	}
	t := &Translator{
		dir:    dir,
		locale: locale,
		log:    log.Named("Translator"),
	}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Locale returns the configured locale
func (t *Translator) Locale() string {
	return t.locale
}

// Reload re-reads the locale files from disk
func (t *Translator) Reload() error {
	table := make(map[string]string, len(defaultStrings))
	for k, v := range defaultStrings {
		table[k] = v
	}

	locales := []string{FallbackLocale}
	if t.locale != FallbackLocale {
		locales = append(locales, t.locale)
	}
	for _, loc := range locales {
		n, err := t.loadLocale(loc, table)
		if err != nil {
			return err
		}
		t.log.Debug(context.Background(), "locale loaded",
			logging.String("locale", loc),
			logging.Int("keys", n))
	}

	tag, err := language.Parse(t.locale)
	if err != nil {
		tag = language.English
	}

	t.mu.Lock()
	t.strings = table
	t.printer = message.NewPrinter(tag)
	t.mu.Unlock()
	return nil
}

// loadLocale merges the first existing <dir>/<locale>.{json,yaml,yml} into table
func (t *Translator) loadLocale(locale string, table map[string]string) (int, error) {
	if t.dir == "" {
		return 0, nil
	}
	for _, ext := range localeExtensions {
		path := filepath.Join(t.dir, locale+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read locale file %s: %w", path, err)
		}

		// JSON locale files parse as YAML
		var entries map[string]string
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return 0, fmt.Errorf("failed to parse locale file %s: %w", path, err)
		}
		for k, v := range entries {
			table[k] = v
		}
		return len(entries), nil
	}
	return 0, nil
}

// Translate renders key with {{name}} placeholders replaced by args.
// A missing key renders as the key itself.
func (t *Translator) Translate(key string, args map[string]string) string {
	t.mu.RLock()
	text, ok := t.strings[key]
	t.mu.RUnlock()
	if !ok {
		return key
	}
	if len(args) == 0 {
		return text
	}

	pairs := make([]string, 0, len(args)*2)
	for name, val := range args {
		pairs = append(pairs, "{{"+name+"}}", val)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// EntityName returns the localized entity name (poke_<id>)
func (t *Translator) EntityName(id uint32) string {
	return t.Translate("poke_"+strconv.FormatUint(uint64(id), 10), nil)
}

// Number formats n with the locale's digit grouping
func (t *Translator) Number(n uint64) string {
	t.mu.RLock()
	p := t.printer
	t.mu.RUnlock()
	return p.Sprintf("%d", n)
}

// Render renders a typed report message
func (t *Translator) Render(m Message) string {
	return t.Translate(m.key(), m.args(t))
}
