// Package config loads, validates, and persists the Chorus configuration.
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, an optional JSON config file, and CHORUS_* environment
// variables. Validate enforces the startup invariants; a config that
// fails validation must prevent the scheduler from starting.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abelbrown/chorus/internal/model"
)

// Config is the full persistent configuration.
type Config struct {
	// DataDir holds the database, logs, and the JSONL event log.
	DataDir string `json:"data_dir"`

	// DBPath overrides the default <DataDir>/chorus.db.
	DBPath string `json:"db_path,omitempty"`

	LogLevel string `json:"log_level"`

	Tiers     TiersConfig     `json:"tiers"`
	Normalize NormalizeConfig `json:"normalize"`
	Embed     EmbedConfig     `json:"embed"`
	Cluster   ClusterConfig   `json:"cluster"`
	Truth     TruthConfig     `json:"truth"`
	Coherence CoherenceConfig `json:"coherence"`
	Coverage  CoverageConfig  `json:"coverage"`
	FactCheck FactCheckConfig `json:"factcheck"`
	Retention RetentionConfig `json:"retention"`

	// Feeds are the RSS/Atom sources polled by tier 1.
	Feeds []FeedConfig `json:"feeds"`

	// Sources extend or override the built-in outlet registry.
	Sources []model.SourceInfo `json:"sources,omitempty"`
}

// TiersConfig sets the cadence of the five scheduler tiers. Intervals are
// minutes, following the source-refresh convention.
type TiersConfig struct {
	IngestMinutes        int `json:"ingest_minutes"`         // tier 1, peak hours
	IngestOffPeakMinutes int `json:"ingest_offpeak_minutes"` // tier 1, off-peak
	OffPeakStartHour     int `json:"offpeak_start_hour"`     // UTC, inclusive
	OffPeakEndHour       int `json:"offpeak_end_hour"`       // UTC, exclusive
	ClusterMinutes       int `json:"cluster_minutes"`        // tier 2
	CoherenceMinutes     int `json:"coherence_minutes"`      // tier 3
	FactCheckMinutes     int `json:"factcheck_minutes"`      // tier 4
	RetentionMinutes     int `json:"retention_minutes"`      // tier 5
}

// NormalizeConfig tunes duplicate detection at ingestion.
type NormalizeConfig struct {
	// DedupWindowMinutes bounds how far back the fuzzy title check looks.
	DedupWindowMinutes int `json:"dedup_window_minutes"`

	// MaxTitleDistance is the SimHash Hamming ceiling (bits, out of 64)
	// for a same-source near-duplicate.
	MaxTitleDistance int `json:"max_title_distance"`

	// SyndicationDistance is the stricter ceiling applied across sources,
	// so only near-identical syndicated headlines collapse.
	SyndicationDistance int `json:"syndication_distance"`
}

// EmbedConfig selects and tunes the embedding client.
type EmbedConfig struct {
	// Provider is "http" (hosted API) or "ollama" (local).
	Provider string `json:"provider"`

	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`

	OllamaEndpoint string `json:"ollama_endpoint,omitempty"`
	OllamaModel    string `json:"ollama_model,omitempty"`

	// Dimensions requested from the service.
	Dimensions int `json:"dimensions"`

	// BatchSize caps articles embedded per tier-2 run.
	BatchSize int `json:"batch_size"`

	// MaxChars caps the text sent per article (title + body prefix).
	MaxChars int `json:"max_chars"`

	// RequestsPerMinute throttles the hosted API.
	RequestsPerMinute int `json:"requests_per_minute"`
}

// ClusterConfig tunes the density clusterer. Eps and MinPts are fixed
// empirically tuned constants, no runtime auto-tuning.
type ClusterConfig struct {
	// Eps is the maximum cosine distance between cluster neighbors.
	Eps float64 `json:"eps"`

	// MinPts is the minimum neighborhood size (the point itself counts)
	// for a core point.
	MinPts int `json:"min_pts"`

	// WindowHours gates neighbors on published-time proximity.
	WindowHours int `json:"window_hours"`

	// MinEntityOverlap gates neighbors on entity Jaccard overlap.
	// Articles with no entities on either side pass the gate.
	MinEntityOverlap float64 `json:"min_entity_overlap"`

	// StaleAfterHours closes events to incremental assignment once no
	// member has arrived for this long.
	StaleAfterHours int `json:"stale_after_hours"`

	// BatchSize caps unclustered articles considered per run.
	BatchSize int `json:"batch_size"`
}

// TruthConfig holds the scoring weights and normalization ceilings.
// Weights must sum to 1.0, validated at startup; violation is fatal.
type TruthConfig struct {
	WeightSourceDiversity float64 `json:"weight_source_diversity"`
	WeightGeoDiversity    float64 `json:"weight_geo_diversity"`
	WeightOfficialMatch   float64 `json:"weight_official_match"`
	WeightEvidence        float64 `json:"weight_evidence"`

	// SourceCeiling is the distinct-domain count that saturates the
	// source-diversity component; GeoCeiling likewise for countries.
	SourceCeiling int `json:"source_ceiling"`
	GeoCeiling    int `json:"geo_ceiling"`
}

// CoherenceConfig holds the coherence sub-score weights (sum to 1.0) and
// the conflict threshold.
type CoherenceConfig struct {
	WeightSemantic float64 `json:"weight_semantic"`
	WeightEntity   float64 `json:"weight_entity"`
	WeightTitle    float64 `json:"weight_title"`

	// ConflictThreshold: has_conflict iff coherence_score < threshold.
	ConflictThreshold float64 `json:"conflict_threshold"`

	// MaxExcerpts caps representative excerpts per perspective.
	MaxExcerpts int `json:"max_excerpts"`
}

// CoverageConfig drives the underreported detector.
type CoverageConfig struct {
	OfficialDomains []string `json:"official_domains"`
	WireDomains     []string `json:"wire_domains"`

	// MinLocalOutlets is the alternative qualifying bar when no official
	// source is present.
	MinLocalOutlets int `json:"min_local_outlets"`

	// WindowHours since first_seen during which wire silence counts.
	WindowHours int `json:"window_hours"`
}

// FactCheckConfig bounds the external verification tier.
type FactCheckConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`

	// Workers is the hard concurrency cap for verification calls.
	Workers int `json:"workers"`

	// BatchSize caps events verified per tier-4 run.
	BatchSize int `json:"batch_size"`

	TimeoutSeconds int `json:"timeout_seconds"`
}

// RetentionConfig bounds tier-5 cleanup.
type RetentionConfig struct {
	// HorizonDays: articles/events older than this with no open event
	// referencing them are deleted.
	HorizonDays int `json:"horizon_days"`
}

// FeedConfig is one polled feed.
type FeedConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:  filepath.Join(home, ".chorus"),
		LogLevel: "info",
		Tiers: TiersConfig{
			IngestMinutes:        5,
			IngestOffPeakMinutes: 15,
			OffPeakStartHour:     2,
			OffPeakEndHour:       6,
			ClusterMinutes:       20,
			CoherenceMinutes:     60,
			FactCheckMinutes:     240,
			RetentionMinutes:     1440,
		},
		Normalize: NormalizeConfig{
			DedupWindowMinutes:  60,
			MaxTitleDistance:    10,
			SyndicationDistance: 3,
		},
		Embed: EmbedConfig{
			Provider:          "ollama",
			OllamaEndpoint:    "http://localhost:11434",
			OllamaModel:       "nomic-embed-text",
			Dimensions:        256,
			BatchSize:         100,
			MaxChars:          2000,
			RequestsPerMinute: 80,
		},
		Cluster: ClusterConfig{
			Eps:              0.35,
			MinPts:           2,
			WindowHours:      72,
			MinEntityOverlap: 0.1,
			StaleAfterHours:  72,
			BatchSize:        200,
		},
		Truth: TruthConfig{
			WeightSourceDiversity: 0.25,
			WeightGeoDiversity:    0.40,
			WeightOfficialMatch:   0.20,
			WeightEvidence:        0.15,
			SourceCeiling:         5,
			GeoCeiling:            5,
		},
		Coherence: CoherenceConfig{
			WeightSemantic:    0.60,
			WeightEntity:      0.25,
			WeightTitle:       0.15,
			ConflictThreshold: 80,
			MaxExcerpts:       3,
		},
		Coverage: CoverageConfig{
			OfficialDomains: []string{"usgs.gov", "who.int", "un.org", "reliefweb.int", "nasa.gov", "noaa.gov"},
			WireDomains:     []string{"apnews.com", "reuters.com", "afp.com"},
			MinLocalOutlets: 3,
			WindowHours:     48,
		},
		FactCheck: FactCheckConfig{
			Workers:        2,
			BatchSize:      10,
			TimeoutSeconds: 30,
		},
		Retention: RetentionConfig{
			HorizonDays: 30,
		},
		Feeds: []FeedConfig{
			{Name: "AP News", URL: "https://feedx.net/rss/ap.xml"},
			{Name: "BBC World", URL: "https://feeds.bbci.co.uk/news/world/rss.xml"},
			{Name: "Reuters World", URL: "https://feeds.reuters.com/reuters/worldNews"},
			{Name: "Al Jazeera", URL: "https://www.aljazeera.com/xml/rss/all.xml"},
			{Name: "ReliefWeb Updates", URL: "https://reliefweb.int/updates/rss.xml"},
			{Name: "USGS Earthquakes", URL: "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/significant_week.atom"},
		},
	}
}

// Load reads the config file at path (missing file means defaults),
// applies environment overrides, and validates. The returned config is
// ready for the scheduler.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as indented JSON. API keys may be present, so
// the file is written with restrictive permissions.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// DatabasePath resolves the SQLite path.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "chorus.db")
}

// EventLogPath resolves the JSONL event log path.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.DataDir, "events.jsonl")
}

// IngestInterval returns the tier-1 interval for the given wall-clock
// hour (UTC), honoring the off-peak window.
func (c *Config) IngestInterval(hour int) time.Duration {
	start, end := c.Tiers.OffPeakStartHour, c.Tiers.OffPeakEndHour
	offPeak := false
	if start <= end {
		offPeak = hour >= start && hour < end
	} else { // window wraps midnight
		offPeak = hour >= start || hour < end
	}
	if offPeak {
		return time.Duration(c.Tiers.IngestOffPeakMinutes) * time.Minute
	}
	return time.Duration(c.Tiers.IngestMinutes) * time.Minute
}

// applyEnv overlays CHORUS_* environment variables.
func (c *Config) applyEnv() {
	c.DataDir = getEnv("CHORUS_DATA_DIR", c.DataDir)
	c.DBPath = getEnv("CHORUS_DB_PATH", c.DBPath)
	c.LogLevel = getEnv("CHORUS_LOG_LEVEL", c.LogLevel)

	c.Embed.Provider = getEnv("CHORUS_EMBED_PROVIDER", c.Embed.Provider)
	c.Embed.Endpoint = getEnv("CHORUS_EMBED_ENDPOINT", c.Embed.Endpoint)
	c.Embed.APIKey = getEnv("CHORUS_EMBED_API_KEY", c.Embed.APIKey)
	c.Embed.Model = getEnv("CHORUS_EMBED_MODEL", c.Embed.Model)
	c.Embed.OllamaEndpoint = getEnv("CHORUS_OLLAMA_ENDPOINT", c.Embed.OllamaEndpoint)
	c.Embed.OllamaModel = getEnv("CHORUS_OLLAMA_MODEL", c.Embed.OllamaModel)

	c.FactCheck.Endpoint = getEnv("CHORUS_FACTCHECK_ENDPOINT", c.FactCheck.Endpoint)
	c.FactCheck.APIKey = getEnv("CHORUS_FACTCHECK_API_KEY", c.FactCheck.APIKey)

	c.Tiers.IngestMinutes = getInt("CHORUS_INGEST_MINUTES", c.Tiers.IngestMinutes)
	c.Tiers.ClusterMinutes = getInt("CHORUS_CLUSTER_MINUTES", c.Tiers.ClusterMinutes)
	c.Tiers.CoherenceMinutes = getInt("CHORUS_COHERENCE_MINUTES", c.Tiers.CoherenceMinutes)
	c.Tiers.FactCheckMinutes = getInt("CHORUS_FACTCHECK_MINUTES", c.Tiers.FactCheckMinutes)
	c.Tiers.RetentionMinutes = getInt("CHORUS_RETENTION_MINUTES", c.Tiers.RetentionMinutes)

	c.FactCheck.Workers = getInt("CHORUS_FACTCHECK_WORKERS", c.FactCheck.Workers)
	c.Retention.HorizonDays = getInt("CHORUS_RETENTION_DAYS", c.Retention.HorizonDays)
}

// Validate checks the startup invariants. It reports every problem it
// finds, not just the first, so a broken deployment can be fixed in one
// pass.
func (c *Config) Validate() error {
	var problems []string

	if sum := c.Truth.WeightSourceDiversity + c.Truth.WeightGeoDiversity +
		c.Truth.WeightOfficialMatch + c.Truth.WeightEvidence; math.Abs(sum-1.0) > 1e-6 {
		problems = append(problems, fmt.Sprintf("truth weights sum to %.4f, want 1.0", sum))
	}
	for name, w := range map[string]float64{
		"truth.weight_source_diversity": c.Truth.WeightSourceDiversity,
		"truth.weight_geo_diversity":    c.Truth.WeightGeoDiversity,
		"truth.weight_official_match":   c.Truth.WeightOfficialMatch,
		"truth.weight_evidence":         c.Truth.WeightEvidence,
	} {
		if w < 0 {
			problems = append(problems, fmt.Sprintf("%s is negative", name))
		}
	}
	if c.Truth.SourceCeiling < 1 || c.Truth.GeoCeiling < 1 {
		problems = append(problems, "truth ceilings must be at least 1")
	}

	if sum := c.Coherence.WeightSemantic + c.Coherence.WeightEntity + c.Coherence.WeightTitle; math.Abs(sum-1.0) > 1e-6 {
		problems = append(problems, fmt.Sprintf("coherence weights sum to %.4f, want 1.0", sum))
	}
	if c.Coherence.ConflictThreshold <= 0 || c.Coherence.ConflictThreshold > 100 {
		problems = append(problems, "coherence conflict_threshold must be in (0,100]")
	}

	if c.Cluster.Eps <= 0 || c.Cluster.Eps >= 1 {
		problems = append(problems, "cluster eps must be in (0,1)")
	}
	if c.Cluster.MinPts < 2 {
		problems = append(problems, "cluster min_pts must be at least 2")
	}
	if c.Cluster.WindowHours <= 0 || c.Cluster.StaleAfterHours <= 0 {
		problems = append(problems, "cluster window_hours and stale_after_hours must be positive")
	}
	if c.Cluster.MinEntityOverlap < 0 || c.Cluster.MinEntityOverlap > 1 {
		problems = append(problems, "cluster min_entity_overlap must be in [0,1]")
	}

	for name, v := range map[string]int{
		"tiers.ingest_minutes":    c.Tiers.IngestMinutes,
		"tiers.cluster_minutes":   c.Tiers.ClusterMinutes,
		"tiers.coherence_minutes": c.Tiers.CoherenceMinutes,
		"tiers.factcheck_minutes": c.Tiers.FactCheckMinutes,
		"tiers.retention_minutes": c.Tiers.RetentionMinutes,
	} {
		if v <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}

	if c.FactCheck.Workers < 1 {
		problems = append(problems, "factcheck workers must be at least 1")
	}
	if c.FactCheck.BatchSize < 1 {
		problems = append(problems, "factcheck batch_size must be at least 1")
	}

	if c.Coverage.WindowHours <= 0 {
		problems = append(problems, "coverage window_hours must be positive")
	}
	if c.Coverage.MinLocalOutlets < 1 {
		problems = append(problems, "coverage min_local_outlets must be at least 1")
	}
	if len(c.Coverage.WireDomains) == 0 {
		problems = append(problems, "coverage wire_domains must not be empty")
	}

	if c.Retention.HorizonDays <= 0 {
		problems = append(problems, "retention horizon_days must be positive")
	}

	if c.Embed.BatchSize < 1 || c.Embed.MaxChars < 1 {
		problems = append(problems, "embed batch_size and max_chars must be positive")
	}

	if c.Normalize.DedupWindowMinutes <= 0 {
		problems = append(problems, "normalize dedup_window_minutes must be positive")
	}
	if c.Normalize.MaxTitleDistance < 0 || c.Normalize.MaxTitleDistance > 64 ||
		c.Normalize.SyndicationDistance < 0 || c.Normalize.SyndicationDistance > 64 {
		problems = append(problems, "normalize title distances must be in [0,64]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
