package assessment

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultContentYAML []byte

// Sentence is a reference sentence read aloud in Phase 2.
type Sentence struct {
	Text  string `json:"text"`
	Level Level  `json:"level"`
}

// Image is a picture described in Phase 3.
type Image struct {
	Level       Level  `json:"level"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Hints are the retry messages returned on low signal quality.
type Hints struct {
	NoSpeech string `yaml:"no_speech"`
	Noisy    string `yaml:"noisy"`
}

// Content is the fixed reference material consumed by the phase engine.
type Content struct {
	Sentences map[Level]Sentence
	Images    map[Level]Image
	Question  string
	Hints     Hints
}

type contentFile struct {
	Sentences map[string]struct {
		Text string `yaml:"text"`
	} `yaml:"sentences"`
	Images map[string]struct {
		URL         string `yaml:"url"`
		Description string `yaml:"description"`
	} `yaml:"images"`
	Question string `yaml:"question"`
	Hints    Hints  `yaml:"hints"`
}

var (
	requiredSentenceLevels = []Level{LevelA2, LevelB1, LevelC1}
	requiredImageLevels    = []Level{LevelA2, LevelB1, LevelB2}
)

// ParseContent decodes and validates a YAML content bank.
func ParseContent(data []byte) (*Content, error) {
	var raw contentFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}

	c := &Content{
		Sentences: make(map[Level]Sentence, len(raw.Sentences)),
		Images:    make(map[Level]Image, len(raw.Images)),
		Question:  raw.Question,
		Hints:     raw.Hints,
	}
	for k, v := range raw.Sentences {
		lvl, ok := ParseLevel(k)
		if !ok {
			return nil, fmt.Errorf("content: unknown sentence level %q", k)
		}
		c.Sentences[lvl] = Sentence{Text: v.Text, Level: lvl}
	}
	for k, v := range raw.Images {
		lvl, ok := ParseLevel(k)
		if !ok {
			return nil, fmt.Errorf("content: unknown image level %q", k)
		}
		c.Images[lvl] = Image{Level: lvl, URL: v.URL, Description: v.Description}
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadContentFile reads a content bank from disk.
func LoadContentFile(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	return ParseContent(data)
}

var (
	defaultContent     *Content
	defaultContentOnce sync.Once
)

// DefaultContent returns the content bank compiled into the binary.
func DefaultContent() *Content {
	defaultContentOnce.Do(func() {
		c, err := ParseContent(defaultContentYAML)
		if err != nil {
			panic("assessment: embedded content is invalid: " + err.Error())
		}
		defaultContent = c
	})
	return defaultContent
}

func (c *Content) validate() error {
	for _, lvl := range requiredSentenceLevels {
		if s, ok := c.Sentences[lvl]; !ok || s.Text == "" {
			return fmt.Errorf("content: missing %s sentence", lvl)
		}
	}
	for _, lvl := range requiredImageLevels {
		if img, ok := c.Images[lvl]; !ok || img.URL == "" || img.Description == "" {
			return fmt.Errorf("content: missing %s image", lvl)
		}
	}
	if c.Question == "" {
		return fmt.Errorf("content: missing question")
	}
	if c.Hints.NoSpeech == "" || c.Hints.Noisy == "" {
		return fmt.Errorf("content: missing retry hints")
	}
	return nil
}

// Sentence returns the reference sentence for a band.
func (c *Content) Sentence(lvl Level) Sentence {
	return c.Sentences[lvl]
}

// Image returns the picture for a band.
func (c *Content) Image(lvl Level) Image {
	return c.Images[lvl]
}
