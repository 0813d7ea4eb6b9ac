package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a JSON and YAML friendly wrapper around time.Duration that
// accepts human readable strings such as "16ms" in configuration files while
// still allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML encodes the duration as its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected scalar at line %d", value.Line)
	}
	switch value.ShortTag() {
	case "!!int":
		var n int64
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode int: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	case "!!null":
		*d = 0
		return nil
	}
	return d.parse(value.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Distance modes understood by the placement sampler.
const (
	DistanceMode3D     = "3d"
	DistanceModePlanar = "planar"
)

// Config captures the tunable parameters needed to run the level generator.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Network    NetworkConfig    `json:"network" yaml:"network"`
	Stage      StageConfig      `json:"stage" yaml:"stage"`
	Placement  PlacementConfig  `json:"placement" yaml:"placement"`
	Catalog    CatalogConfig    `json:"catalog" yaml:"catalog"`
	Terrain    TerrainConfig    `json:"terrain" yaml:"terrain"`
	Generation GenerationConfig `json:"generation" yaml:"generation"`
}

type ServerConfig struct {
	ID             string   `json:"id" yaml:"id"`
	TickRate       Duration `json:"tickRate" yaml:"tick_rate"`             // one placement attempt per tick
	StatusInterval Duration `json:"statusInterval" yaml:"status_interval"` // UDP status broadcast cadence
	HTTPAddress    string   `json:"httpAddress" yaml:"http_address"`       // empty disables HTTP
	AutoStart      bool     `json:"autoStart" yaml:"auto_start"`           // generate the start level on boot
}

type NetworkConfig struct {
	ListenUDP            string   `json:"listenUdp" yaml:"listen_udp"` // empty disables UDP
	StreamEndpoints      []string `json:"streamEndpoints" yaml:"stream_endpoints"`
	KeepAliveInterval    Duration `json:"keepAliveInterval" yaml:"keep_alive_interval"`
	MaxDatagramSizeBytes int      `json:"maxDatagramSizeBytes" yaml:"max_datagram_size_bytes"`
	MaxEventsPerTick     int      `json:"maxEventsPerTick" yaml:"max_events_per_tick"`
}

// StageConfig is the stage schedule: how content unlocks and how many objects
// a level asks for.
type StageConfig struct {
	LevelsPerStage      int   `json:"levelsPerStage" yaml:"levels_per_stage"`
	StageUnlocks        []int `json:"stageUnlocks" yaml:"stage_unlocks"` // unlocked ore categories for stage 1, 2, ...; later stages unlock the full catalog
	BaseOresPerCategory int   `json:"baseOresPerCategory" yaml:"base_ores_per_category"`
	MinOresPerCategory  int   `json:"minOresPerCategory" yaml:"min_ores_per_category"`
	MaxOresPerLevel     int   `json:"maxOresPerLevel" yaml:"max_ores_per_level"`
	MinHazardsPerLevel  int   `json:"minHazardsPerLevel" yaml:"min_hazards_per_level"`
	MaxHazardsPerLevel  int   `json:"maxHazardsPerLevel" yaml:"max_hazards_per_level"`
}

type PlacementConfig struct {
	MinDistanceBetweenOres    float64 `json:"minDistanceBetweenOres" yaml:"min_distance_between_ores"`
	MinDistanceBetweenHazards float64 `json:"minDistanceBetweenHazards" yaml:"min_distance_between_hazards"`
	MinDistanceOreToHazard    float64 `json:"minDistanceOreToHazard" yaml:"min_distance_ore_to_hazard"`
	MinSpawnHeight            float64 `json:"minSpawnHeight" yaml:"min_spawn_height"`
	MaxSpawnHeight            float64 `json:"maxSpawnHeight" yaml:"max_spawn_height"`
	MaxAttempts               int     `json:"maxAttempts" yaml:"max_attempts"`
	DistanceMode              string  `json:"distanceMode" yaml:"distance_mode"`
	UseSpatialIndex           bool    `json:"useSpatialIndex" yaml:"use_spatial_index"`
}

type CatalogConfig struct {
	Ores   []TemplateRef `json:"ores" yaml:"ores"`
	Hazard TemplateRef   `json:"hazard" yaml:"hazard"`
}

type TemplateRef struct {
	ID       string `json:"id" yaml:"id"`
	Template string `json:"template" yaml:"template"`
}

type TerrainConfig struct {
	Seed           int64           `json:"seed" yaml:"seed"`
	Frequency      float64         `json:"frequency" yaml:"frequency"`
	Amplitude      float64         `json:"amplitude" yaml:"amplitude"`
	Octaves        int             `json:"octaves" yaml:"octaves"`
	Persistence    float64         `json:"persistence" yaml:"persistence"`
	Lacunarity     float64         `json:"lacunarity" yaml:"lacunarity"`
	ActivePerLevel int             `json:"activePerLevel" yaml:"active_per_level"` // 0 uses every surface
	Surfaces       []SurfaceConfig `json:"surfaces" yaml:"surfaces"`
}

type SurfaceConfig struct {
	ID      string  `json:"id" yaml:"id"`
	OriginX float64 `json:"originX" yaml:"origin_x"`
	OriginY float64 `json:"originY" yaml:"origin_y"` // base elevation added to sampled noise
	OriginZ float64 `json:"originZ" yaml:"origin_z"`
	Width   float64 `json:"width" yaml:"width"`
	Depth   float64 `json:"depth" yaml:"depth"`
}

type GenerationConfig struct {
	Seed       int64 `json:"seed" yaml:"seed"`
	StartLevel int   `json:"startLevel" yaml:"start_level"`
}

// Load reads configuration from a JSON or YAML file depending on its
// extension. An empty path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to the provided path, as YAML
// or JSON depending on the extension.
func WriteDefault(path string) error {
	cfg := Default()

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return true
	}
	return false
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ID:             "orefield-0",
			TickRate:       Duration(16 * time.Millisecond),
			StatusInterval: Duration(time.Second),
			HTTPAddress:    "127.0.0.1:28090",
			AutoStart:      true,
		},
		Network: NetworkConfig{
			ListenUDP:            ":19400",
			StreamEndpoints:      []string{},
			KeepAliveInterval:    Duration(5 * time.Second),
			MaxDatagramSizeBytes: 1 << 16,
			MaxEventsPerTick:     256,
		},
		Stage: StageConfig{
			LevelsPerStage:      10,
			StageUnlocks:        []int{3, 6},
			BaseOresPerCategory: 10,
			MinOresPerCategory:  10,
			MaxOresPerLevel:     20,
			MinHazardsPerLevel:  10,
			MaxHazardsPerLevel:  20,
		},
		Placement: PlacementConfig{
			MinDistanceBetweenOres:    3.0,
			MinDistanceBetweenHazards: 3.0,
			MinDistanceOreToHazard:    3.0,
			MinSpawnHeight:            0,
			MaxSpawnHeight:            1,
			MaxAttempts:               50,
			DistanceMode:              DistanceMode3D,
			UseSpatialIndex:           true,
		},
		Catalog: CatalogConfig{
			Ores: []TemplateRef{
				{ID: "copper", Template: "ore/copper"},
				{ID: "tin", Template: "ore/tin"},
				{ID: "iron", Template: "ore/iron"},
				{ID: "silver", Template: "ore/silver"},
				{ID: "gold", Template: "ore/gold"},
				{ID: "cobalt", Template: "ore/cobalt"},
				{ID: "mithril", Template: "ore/mithril"},
				{ID: "adamantite", Template: "ore/adamantite"},
			},
			Hazard: TemplateRef{ID: "spikes", Template: "hazard/spikes"},
		},
		Terrain: TerrainConfig{
			Seed:           1337,
			Frequency:      0.06,
			Amplitude:      1.5,
			Octaves:        3,
			Persistence:    0.5,
			Lacunarity:     2.0,
			ActivePerLevel: 1,
			Surfaces: []SurfaceConfig{
				{ID: "meadow", OriginX: 0, OriginY: 0.5, OriginZ: 0, Width: 100, Depth: 100},
				{ID: "quarry", OriginX: 120, OriginY: 0.25, OriginZ: 0, Width: 80, Depth: 120},
			},
		},
		Generation: GenerationConfig{
			Seed:       1337,
			StartLevel: 1,
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.ID == "" {
		return errors.New("server.id must be set")
	}
	if c.Server.TickRate <= 0 {
		return errors.New("server.tickRate must be positive")
	}
	if c.Network.MaxDatagramSizeBytes < 0 {
		return errors.New("network.maxDatagramSizeBytes cannot be negative")
	}
	if c.Network.MaxEventsPerTick < 0 {
		return errors.New("network.maxEventsPerTick cannot be negative")
	}
	if err := c.Stage.Validate(); err != nil {
		return err
	}
	if err := c.Placement.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	if err := c.Terrain.Validate(); err != nil {
		return err
	}
	if c.Generation.StartLevel < 1 {
		return errors.New("generation.startLevel must be at least 1")
	}
	return nil
}

// Validate rejects schedules that would produce undefined quota math.
func (s StageConfig) Validate() error {
	if s.LevelsPerStage <= 0 {
		return errors.New("stage.levelsPerStage must be positive")
	}
	prev := 0
	for i, unlocked := range s.StageUnlocks {
		if unlocked <= 0 {
			return fmt.Errorf("stage.stageUnlocks[%d] must be positive", i)
		}
		if unlocked < prev {
			return fmt.Errorf("stage.stageUnlocks[%d] cannot be lower than the previous stage", i)
		}
		prev = unlocked
	}
	if s.BaseOresPerCategory <= 0 {
		return errors.New("stage.baseOresPerCategory must be positive")
	}
	if s.MinOresPerCategory < 0 {
		return errors.New("stage.minOresPerCategory cannot be negative")
	}
	if s.MaxOresPerLevel <= 0 {
		return errors.New("stage.maxOresPerLevel must be positive")
	}
	if s.MinHazardsPerLevel < 0 {
		return errors.New("stage.minHazardsPerLevel cannot be negative")
	}
	if s.MaxHazardsPerLevel < s.MinHazardsPerLevel {
		return errors.New("stage.maxHazardsPerLevel must be >= minHazardsPerLevel")
	}
	return nil
}

func (p PlacementConfig) Validate() error {
	if p.MinDistanceBetweenOres < 0 || p.MinDistanceBetweenHazards < 0 || p.MinDistanceOreToHazard < 0 {
		return errors.New("placement distances cannot be negative")
	}
	if p.MaxSpawnHeight < p.MinSpawnHeight {
		return errors.New("placement.maxSpawnHeight must be >= minSpawnHeight")
	}
	if p.MaxAttempts <= 0 {
		return errors.New("placement.maxAttempts must be positive")
	}
	switch p.DistanceMode {
	case "", DistanceMode3D, DistanceModePlanar:
	default:
		return fmt.Errorf("placement.distanceMode must be %q or %q", DistanceMode3D, DistanceModePlanar)
	}
	return nil
}

func (c CatalogConfig) Validate() error {
	if len(c.Ores) == 0 {
		return errors.New("catalog.ores cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Ores)+1)
	templates := make(map[string]struct{}, len(c.Ores))
	for i, ore := range c.Ores {
		if ore.ID == "" {
			return fmt.Errorf("catalog.ores[%d].id must be set", i)
		}
		if ore.Template == "" {
			return fmt.Errorf("catalog.ores[%d].template must be set", i)
		}
		if _, dup := seen[ore.ID]; dup {
			return fmt.Errorf("catalog.ores[%d].id %q is duplicated", i, ore.ID)
		}
		seen[ore.ID] = struct{}{}
		templates[ore.Template] = struct{}{}
	}
	if c.Hazard.ID == "" || c.Hazard.Template == "" {
		return errors.New("catalog.hazard id and template must be set")
	}
	if _, dup := seen[c.Hazard.ID]; dup {
		return fmt.Errorf("catalog.hazard.id %q collides with an ore id", c.Hazard.ID)
	}
	if _, dup := templates[c.Hazard.Template]; dup {
		return fmt.Errorf("catalog.hazard.template %q collides with an ore template", c.Hazard.Template)
	}
	return nil
}

func (t TerrainConfig) Validate() error {
	if t.Octaves < 0 {
		return errors.New("terrain.octaves cannot be negative")
	}
	if t.ActivePerLevel < 0 {
		return errors.New("terrain.activePerLevel cannot be negative")
	}
	if len(t.Surfaces) == 0 {
		return errors.New("terrain.surfaces cannot be empty")
	}
	seen := make(map[string]struct{}, len(t.Surfaces))
	for i, s := range t.Surfaces {
		if s.ID == "" {
			return fmt.Errorf("terrain.surfaces[%d].id must be set", i)
		}
		if s.Width <= 0 || s.Depth <= 0 {
			return fmt.Errorf("terrain.surfaces[%d] dimensions must be positive", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("terrain.surfaces[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}
