package types

// Config represents the application configuration
type Config struct {
	// Meta information for the configuration
	Meta struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"meta"`

	// Search controls the mailbox query
	Search struct {
		Keywords   []string `yaml:"keywords"`
		Label      string   `yaml:"label,omitempty"`
		MaxResults int64    `yaml:"max_results"`
	} `yaml:"search"`

	Output struct {
		BaseDir    string   `yaml:"base_dir"`  // lot directories live under <base_dir>/downloads
		StateDir   string   `yaml:"state_dir"` // processed.jsonl and the anomaly log
		Extensions []string `yaml:"extensions"`
	} `yaml:"output"`

	Gmail struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
	} `yaml:"gmail"`

	Forward struct {
		To            string `yaml:"to"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"forward"`

	Logging struct {
		Level         string `yaml:"level"`
		Format        string `yaml:"format"` // text, json or dev
		IncludeCaller bool   `yaml:"include_caller"`
	} `yaml:"logging"`

	Scheduling struct {
		Enabled         bool   `yaml:"enabled"`
		FrequencyEvery  string `yaml:"frequency_every"` // minute, hour, day, week
		FrequencyAmount int    `yaml:"frequency_amount"`
		WindowDays      int    `yaml:"window_days"` // sliding date window per scheduled run
		StartNow        bool   `yaml:"start_now"`
	} `yaml:"scheduling"`
}
