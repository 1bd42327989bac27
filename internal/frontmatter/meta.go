package frontmatter

import "time"

// Meta is the article header as read by the site generator.
type Meta struct {
	Category   string    `yaml:"category,omitempty"`
	Language   string    `yaml:"language,omitempty"`
	Answer     string    `yaml:"answer,omitempty"`
	Tags       []string  `yaml:"tags,omitempty"`
	Aliases    []string  `yaml:"aliases,omitempty"`
	Author     string    `yaml:"author,omitempty"`
	LastUpdate time.Time `yaml:"last_update,omitempty"`
}
