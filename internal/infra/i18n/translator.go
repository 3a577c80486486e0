package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// DefaultLang is used when no language is configured.
const DefaultLang = "en"

// Translator renders operator-facing messages from a key -> format catalog.
type Translator struct {
	lang     string
	messages map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	if lang == "" {
		lang = DefaultLang
	}
	p := path.Join("locales", lang+".yaml")
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", p, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = lang
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var messages map[string]string
	if err := yaml.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &Translator{lang: DefaultLang, messages: messages}, nil
}

var (
	defaultOnce sync.Once
	defaultTr   *Translator
)

// Default returns the embedded English catalog.
func Default() *Translator {
	defaultOnce.Do(func() {
		t, err := NewTranslator(LocalesFS, DefaultLang)
		if err != nil {
			panic(err)
		}
		defaultTr = t
	})
	return defaultTr
}

func (t *Translator) Lang() string { return t.lang }

// T formats the message for key. Unknown keys are returned as is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.messages[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
