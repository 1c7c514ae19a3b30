package tuning

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var ErrUnknownFormat = errors.New("unknown config format")

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Config is the full scenario configuration for one simulation run.
type Config struct {
	SimID       string `yaml:"simID" toml:"simID"`
	Steps       int    `yaml:"steps" toml:"steps"`
	Seed        int64  `yaml:"seed" toml:"seed"`
	SeedCapital int64  `yaml:"seedCapital" toml:"seedCapital"`

	Map      MapConfig      `yaml:"map" toml:"map"`
	Roles    []RoleConfig   `yaml:"roles" toml:"roles"`
	Teams    []string       `yaml:"teams" toml:"teams"`
	Entities []EntityConfig `yaml:"entities" toml:"entities"`
	Generate Generate       `yaml:"generate" toml:"generate"`
}

type MapConfig struct {
	Name   string  `yaml:"name" toml:"name"`
	MinLat float64 `yaml:"minLat" toml:"minLat"`
	MaxLat float64 `yaml:"maxLat" toml:"maxLat"`
	MinLon float64 `yaml:"minLon" toml:"minLon"`
	MaxLon float64 `yaml:"maxLon" toml:"maxLon"`
	// CellSize is the distance covered per point of role speed in one step.
	CellSize float64 `yaml:"cellSize" toml:"cellSize"`
	// Proximity is the distance under which two locations are considered equal.
	Proximity float64 `yaml:"proximity" toml:"proximity"`
}

type RoleConfig struct {
	Name       string `yaml:"name" toml:"name"`
	Speed      int    `yaml:"speed" toml:"speed"`
	MaxLoad    int    `yaml:"maxLoad" toml:"maxLoad"`
	MaxBattery int    `yaml:"maxBattery" toml:"maxBattery"`
}

// EntityConfig asks for Count agents of Role in every team.
type EntityConfig struct {
	Role  string `yaml:"role" toml:"role"`
	Count int    `yaml:"count" toml:"count"`
}

type Generate struct {
	Facilities Facilities `yaml:"facilities" toml:"facilities"`
	Items      Items      `yaml:"items" toml:"items"`
	Jobs       Jobs       `yaml:"jobs" toml:"jobs"`
}

type Facilities struct {
	QuadSize            float64 `yaml:"quadSize" toml:"quadSize"`
	BlackoutProbability float64 `yaml:"blackoutProbability" toml:"blackoutProbability"`
	BlackoutTimeMin     int     `yaml:"blackoutTimeMin" toml:"blackoutTimeMin"`
	BlackoutTimeMax     int     `yaml:"blackoutTimeMax" toml:"blackoutTimeMax"`

	ChargingStations ChargingStations `yaml:"chargingStations" toml:"chargingStations"`
	Shops            Shops            `yaml:"shops" toml:"shops"`
	Dumps            Density          `yaml:"dumps" toml:"dumps"`
	Workshops        Density          `yaml:"workshops" toml:"workshops"`
	Storage          Storage          `yaml:"storage" toml:"storage"`
	ResourceNodes    ResourceNodes    `yaml:"resourceNodes" toml:"resourceNodes"`
}

type Density struct {
	Density float64 `yaml:"density" toml:"density"`
}

type ChargingStations struct {
	Density float64 `yaml:"density" toml:"density"`
	RateMin int     `yaml:"rateMin" toml:"rateMin"`
	RateMax int     `yaml:"rateMax" toml:"rateMax"`
}

type Shops struct {
	Density     float64 `yaml:"density" toml:"density"`
	MinProd     int     `yaml:"minProd" toml:"minProd"`
	MaxProd     int     `yaml:"maxProd" toml:"maxProd"`
	AmountMin   int     `yaml:"amountMin" toml:"amountMin"`
	AmountMax   int     `yaml:"amountMax" toml:"amountMax"`
	PriceAddMin int     `yaml:"priceAddMin" toml:"priceAddMin"`
	PriceAddMax int     `yaml:"priceAddMax" toml:"priceAddMax"`
	RestockMin  int     `yaml:"restockMin" toml:"restockMin"`
	RestockMax  int     `yaml:"restockMax" toml:"restockMax"`
}

type Storage struct {
	Density     float64 `yaml:"density" toml:"density"`
	CapacityMin int     `yaml:"capacityMin" toml:"capacityMin"`
	CapacityMax int     `yaml:"capacityMax" toml:"capacityMax"`
}

type ResourceNodes struct {
	Density            float64 `yaml:"density" toml:"density"`
	GatherFrequencyMin int     `yaml:"gatherFrequencyMin" toml:"gatherFrequencyMin"`
	GatherFrequencyMax int     `yaml:"gatherFrequencyMax" toml:"gatherFrequencyMax"`
}

type Items struct {
	BaseItemsMin     int `yaml:"baseItemsMin" toml:"baseItemsMin"`
	BaseItemsMax     int `yaml:"baseItemsMax" toml:"baseItemsMax"`
	LevelDecreaseMin int `yaml:"levelDecreaseMin" toml:"levelDecreaseMin"`
	LevelDecreaseMax int `yaml:"levelDecreaseMax" toml:"levelDecreaseMax"`
	GraphDepthMin    int `yaml:"graphDepthMin" toml:"graphDepthMin"`
	GraphDepthMax    int `yaml:"graphDepthMax" toml:"graphDepthMax"`
	ResourcesMin     int `yaml:"resourcesMin" toml:"resourcesMin"`
	ResourcesMax     int `yaml:"resourcesMax" toml:"resourcesMax"`

	MinVol       int `yaml:"minVol" toml:"minVol"`
	MaxVol       int `yaml:"maxVol" toml:"maxVol"`
	ValueMin     int `yaml:"valueMin" toml:"valueMin"`
	ValueMax     int `yaml:"valueMax" toml:"valueMax"`
	MinReq       int `yaml:"minReq" toml:"minReq"`
	MaxReq       int `yaml:"maxReq" toml:"maxReq"`
	ReqAmountMin int `yaml:"reqAmountMin" toml:"reqAmountMin"`
	ReqAmountMax int `yaml:"reqAmountMax" toml:"reqAmountMax"`

	ToolsMin        int     `yaml:"toolsMin" toml:"toolsMin"`
	ToolsMax        int     `yaml:"toolsMax" toml:"toolsMax"`
	ToolProbability float64 `yaml:"toolProbability" toml:"toolProbability"`
}

type Jobs struct {
	Rate               float64 `yaml:"rate" toml:"rate"`
	AuctionProbability float64 `yaml:"auctionProbability" toml:"auctionProbability"`
	MissionProbability float64 `yaml:"missionProbability" toml:"missionProbability"`
	ProductTypesMin    int     `yaml:"productTypesMin" toml:"productTypesMin"`
	ProductTypesMax    int     `yaml:"productTypesMax" toml:"productTypesMax"`
	DifficultyMin      int     `yaml:"difficultyMin" toml:"difficultyMin"`
	DifficultyMax      int     `yaml:"difficultyMax" toml:"difficultyMax"`
	TimeMin            int     `yaml:"timeMin" toml:"timeMin"`
	TimeMax            int     `yaml:"timeMax" toml:"timeMax"`
	RewardAddMin       int     `yaml:"rewardAddMin" toml:"rewardAddMin"`
	RewardAddMax       int     `yaml:"rewardAddMax" toml:"rewardAddMax"`

	Auctions Auctions `yaml:"auctions" toml:"auctions"`
	Missions Missions `yaml:"missions" toml:"missions"`
}

type Auctions struct {
	AuctionTimeMin int `yaml:"auctionTimeMin" toml:"auctionTimeMin"`
	AuctionTimeMax int `yaml:"auctionTimeMax" toml:"auctionTimeMax"`
	FineSub        int `yaml:"fineSub" toml:"fineSub"`
	FineAdd        int `yaml:"fineAdd" toml:"fineAdd"`
	MaxRewardAdd   int `yaml:"maxRewardAdd" toml:"maxRewardAdd"`
}

type Missions struct {
	MissionDifficultyMax int `yaml:"missionDifficultyMax" toml:"missionDifficultyMax"`
}

// Sections lists every dotted section name a complete config carries.
var Sections = []string{
	"map",
	"roles",
	"teams",
	"generate",
	"generate.facilities",
	"generate.facilities.chargingStations",
	"generate.facilities.shops",
	"generate.facilities.dumps",
	"generate.facilities.workshops",
	"generate.facilities.storage",
	"generate.facilities.resourceNodes",
	"generate.items",
	"generate.jobs",
	"generate.jobs.auctions",
	"generate.jobs.missions",
}

// Load reads a config file, choosing the decoder from the file extension.
// Absent keys keep their defaults. The second return value names the
// sections missing from the file.
func Load(path string) (Config, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), nil, err
	}
	var f Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f = FormatYAML
	case ".toml":
		f = FormatTOML
	default:
		return Defaults(), nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	cfg, missing, err := Parse(raw, f)
	if err != nil {
		return cfg, missing, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, missing, nil
}

func Parse(raw []byte, f Format) (Config, []string, error) {
	cfg := Defaults()
	var missing []string
	switch f {
	case FormatYAML:
		var tree map[string]any
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return cfg, nil, fmt.Errorf("yaml: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, nil, fmt.Errorf("yaml: %w", err)
		}
		for _, s := range Sections {
			if !hasPath(tree, strings.Split(s, ".")) {
				missing = append(missing, s)
			}
		}
	case FormatTOML:
		md, err := toml.NewDecoder(bytes.NewReader(raw)).Decode(&cfg)
		if err != nil {
			return cfg, nil, fmt.Errorf("toml: %w", err)
		}
		for _, s := range Sections {
			if !md.IsDefined(strings.Split(s, ".")...) {
				missing = append(missing, s)
			}
		}
	default:
		return cfg, nil, fmt.Errorf("%q: %w", f, ErrUnknownFormat)
	}
	return cfg, missing, nil
}

func hasPath(tree map[string]any, path []string) bool {
	cur := tree
	for i, k := range path {
		v, ok := cur[k]
		if !ok || v == nil {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return false
		}
		cur = next
	}
	return true
}

// Validate rejects configs the world cannot be built from.
func (c Config) Validate() error {
	if c.Steps < 0 {
		return fmt.Errorf("steps: must be >= 0, got %d", c.Steps)
	}
	if c.Map.MaxLat <= c.Map.MinLat || c.Map.MaxLon <= c.Map.MinLon {
		return fmt.Errorf("map: empty bounds")
	}
	if c.Generate.Facilities.QuadSize <= 0 {
		return fmt.Errorf("generate.facilities.quadSize: must be > 0")
	}
	roles := map[string]bool{}
	for _, r := range c.Roles {
		if r.Name == "" {
			return fmt.Errorf("roles: empty role name")
		}
		if roles[r.Name] {
			return fmt.Errorf("roles: duplicate role %q", r.Name)
		}
		roles[r.Name] = true
	}
	teams := map[string]bool{}
	for _, t := range c.Teams {
		if t == "" || teams[t] {
			return fmt.Errorf("teams: empty or duplicate team %q", t)
		}
		teams[t] = true
	}
	for _, e := range c.Entities {
		if !roles[e.Role] {
			return fmt.Errorf("entities: unknown role %q", e.Role)
		}
		if e.Count < 0 {
			return fmt.Errorf("entities: negative count for role %q", e.Role)
		}
	}
	return nil
}
