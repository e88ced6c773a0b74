package model

// Target is one prop-firm site to scrape. It is built from the site list and the optional
// overrides file and is not modified during a run.
type Target struct {
	Index            int        `json:"index"`
	URL              string     `json:"url"`
	Host             string     `json:"host"`
	FirmName         string     `json:"firm_name"`
	AccountSizeHints []string   `json:"account_size_hints,omitempty"`
	Stub             bool       `json:"stub"`
	Rules            []RuleSpec `json:"rules,omitempty"`
}

// RuleSpec is a site specific extraction rule. Site rules are tried before the default
// rules of the same field.
type RuleSpec struct {
	Field    Field    `yaml:"field" json:"field"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Window   int      `yaml:"window" json:"window"`
	Pattern  string   `yaml:"pattern" json:"pattern,omitempty"`
	Before   bool     `yaml:"before" json:"before,omitempty"`
}
