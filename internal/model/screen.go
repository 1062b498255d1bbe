package model

import "time"

// Screen is one logical screen of a container, keyed by its fingerprint.
type Screen struct {
	Fingerprint   string         `yaml:"fp"                    json:"fp"`
	ContainerID   string         `yaml:"container"             json:"container"`
	TitleHint     string         `yaml:"title,omitempty"       json:"title,omitempty"`
	VisitCount    int            `yaml:"visits"                json:"visits"`
	FirstSeenAt   time.Time      `yaml:"first_seen"            json:"first_seen"`
	LastVisitedAt time.Time      `yaml:"last_visited"          json:"last_visited"`
	Transitions   map[string]int `yaml:"transitions,omitempty" json:"transitions,omitempty"`
}

// LearnedCorrection maps a previously misrecognized command text to the
// text that was confirmed to work.
type LearnedCorrection struct {
	OriginalText  string    `yaml:"original"  json:"original"`
	CorrectedText string    `yaml:"corrected" json:"corrected"`
	Confidence    float64   `yaml:"conf"      json:"conf"`
	UseCount      int       `yaml:"uses"      json:"uses"`
	LastUsedAt    time.Time `yaml:"last_used" json:"last_used"`
}

// VocabularyEntry is a known command token or phrase plus the misheard
// variations that were later corrected to it.
type VocabularyEntry struct {
	Token      string    `yaml:"token"                json:"token"`
	Variations []string  `yaml:"variations,omitempty" json:"variations,omitempty"`
	Frequency  int       `yaml:"freq"                 json:"freq"`
	LastSeenAt time.Time `yaml:"last_seen"            json:"last_seen"`
}

// HasVariation reports whether v is a known variation of the entry.
func (v VocabularyEntry) HasVariation(s string) bool {
	for _, x := range v.Variations {
		if x == s {
			return true
		}
	}
	return false
}
