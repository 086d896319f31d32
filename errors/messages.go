package errors

import (
	_ "embed"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

const DefaultLanguage = "en"

var (
	catalogOnce sync.Once
	catalog     map[Kind]map[string]string
)

func loadCatalog() {
	catalog = make(map[Kind]map[string]string)
	if err := yaml.Unmarshal(messagesYAML, &catalog); err != nil {
		// The catalog is embedded at build time; a broken file is a programming error.
		panic("errors: invalid messages.yaml: " + err.Error())
	}
}

// Message returns the localized user-facing message for kind.
// lang may be a bare tag ("ar") or an Accept-Language style value ("ar-SA,ar;q=0.9").
func Message(kind Kind, lang string) string {
	catalogOnce.Do(loadCatalog)

	entry, ok := catalog[kind]
	if !ok {
		entry = catalog[KindInternal]
	}
	if msg, ok := entry[primaryLanguage(lang)]; ok {
		return msg
	}
	return entry[DefaultLanguage]
}

func primaryLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, ",;"); i >= 0 {
		lang = lang[:i]
	}
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	if lang == "" {
		return DefaultLanguage
	}
	return strings.ToLower(lang)
}
