// Package archive writes runs to an esmond measurement archive: one metadata
// record per run, then a single bulk append of its event values.
package archive

import "time"

// Config locates the archive's REST interface and its write credentials.
type Config struct {
	URL         string        `yaml:"url"          json:"url"`
	ScriptAlias string        `yaml:"script_alias" json:"script_alias"` // "/" or "" when the API is mounted at the root
	Username    string        `yaml:"username"     json:"username"`
	APIKey      string        `yaml:"api_key"      json:"-"`
	Timeout     time.Duration `yaml:"timeout"      json:"timeout"`
}
