package domain

// StrategyKind is the tagged-union discriminant for a scanner strategy
// (Design Notes: "replace runtime type lookup with a tagged-union ... and a
// table-driven factory"; unknown kinds are a config-load-time error).
type StrategyKind string

const (
	StrategyHTTP    StrategyKind = "http"
	StrategyGraphQL StrategyKind = "graphql"
	StrategyBrowser StrategyKind = "browser"
)

// RetryConfig describes how a strategy retries TransientUpstream failures
// (429/5xx/timeout), independent of the engine's node-level RetryPolicy.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	DelayMS     int `yaml:"delay_ms"`
}

// NavStep is one step of a browser strategy's navigation interpreter
// (spec §4.D "navigation phase").
type NavStep struct {
	Op       string `yaml:"op"` // navigate | waitForSelector | wait | click | type | evaluate
	Selector string `yaml:"selector,omitempty"`
	Value    string `yaml:"value,omitempty"`
	TimeoutMS int   `yaml:"timeout_ms,omitempty"`
}

// StrategySpec is one entry in a platform's ordered strategy list.
type StrategySpec struct {
	Type     StrategyKind `yaml:"type"`
	Priority int          `yaml:"priority"`

	// HTTP/GraphQL fields.
	URLTemplate string            `yaml:"url_template,omitempty"`
	Method      string            `yaml:"method,omitempty"`
	Headers     map[string]string `yaml:"headers,omitempty"`
	Query       string            `yaml:"query,omitempty"` // GraphQL query body template

	// Browser fields.
	Steps []NavStep `yaml:"steps,omitempty"`

	Retry        RetryConfig `yaml:"retry,omitempty"`
	TimeoutMS    int         `yaml:"timeout_ms,omitempty"`
	RequestDelayMS int       `yaml:"request_delay_ms,omitempty"`
}

// FieldMapping describes how one normalized product field is sourced from
// a platform-native response shape. Kept intentionally generic: the
// comparator for a field is an interchangeable plugin (spec §1 non-goals).
type FieldMapping struct {
	SourcePath string `yaml:"source_path"`
	Transform  string `yaml:"transform,omitempty"`
}

// RateLimitPolicy is the workflow-level rate-limit policy for a platform.
type RateLimitPolicy struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// PlatformConfig is the per-platform static record loaded from
// configuration files (spec §3 "Platform configuration").
type PlatformConfig struct {
	ID          Platform       `yaml:"id"`
	DisplayName string         `yaml:"display_name"`
	BaseURL     string         `yaml:"base_url"`
	Endpoints   map[string]string `yaml:"endpoints"`

	Strategies []StrategySpec          `yaml:"strategies"`
	FieldMap   map[string]FieldMapping `yaml:"field_map"`

	RateLimit         RateLimitPolicy `yaml:"rate_limit"`
	ConcurrencyLimit  int             `yaml:"concurrency_limit"`
	RotationInterval  int             `yaml:"rotation_interval"` // scans between browser context rotation
}

// PrimaryStrategy returns the strategy with the lowest priority number,
// per spec §4.D "the registry picks the strategy with lowest priority
// number unless the caller specifies a strategy id".
func (pc PlatformConfig) PrimaryStrategy() (StrategySpec, bool) {
	if len(pc.Strategies) == 0 {
		return StrategySpec{}, false
	}
	best := pc.Strategies[0]
	for _, s := range pc.Strategies[1:] {
		if s.Priority < best.Priority {
			best = s
		}
	}
	return best, true
}
