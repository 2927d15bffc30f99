package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	// Seed feeds the attack spawner's PRNG.
	Seed int64 `yaml:"seed"`

	Scheduler Scheduler              `yaml:"scheduler"`
	Economy   Economy                `yaml:"economy"`
	Attacks   Attacks                `yaml:"attacks"`
	Prophets  Prophets               `yaml:"prophets"`
	Town      Town                   `yaml:"town"`
	Buildings map[string]BuildingDef `yaml:"buildings"`
	// TaskRewards is credited to the village when a unit finishes a task
	// of the keyed type.
	TaskRewards map[string]Price `yaml:"task_rewards"`
	// Story lists the story states in order; a transition may only move
	// one step forward.
	Story []string `yaml:"story"`
}

type Scheduler struct {
	MaxPollInterval time.Duration `yaml:"max_poll_interval"`
	GatewayPoolSize int           `yaml:"gateway_pool_size"`
	MaxAttempts     int           `yaml:"max_attempts"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay"`
}

type Economy struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	StartingResources Price         `yaml:"starting_resources"`
}

type Attacks struct {
	SpawnInterval time.Duration `yaml:"spawn_interval"`
	// SpawnChance is the probability that a due spawn creates an attack.
	SpawnChance float64 `yaml:"spawn_chance"`
	// MinStoryStage is the index into Story from which spawning starts.
	MinStoryStage   int           `yaml:"min_story_stage"`
	HobosMin        int           `yaml:"hobos_min"`
	HobosMax        int           `yaml:"hobos_max"`
	TravelTime      time.Duration `yaml:"travel_time"`
	DefaultCapacity int           `yaml:"default_capacity"`
	HoboHP          int           `yaml:"hobo_hp"`
	// HoboSpeed is in tiles per second.
	HoboSpeed     float64 `yaml:"hobo_speed"`
	HurriedChance float64 `yaml:"hurried_chance"`
	// Rewards per satisfied hobo.
	KarmaPerHobo    int64 `yaml:"karma_per_hobo"`
	FeathersPerHobo int64 `yaml:"feathers_per_hobo"`
}

type Prophets struct {
	KarmaPerProphet int64 `yaml:"karma_per_prophet"`
	BasePrice       Price `yaml:"base_price"`
	// PriceStep is added once per prophet already owned.
	PriceStep Price `yaml:"price_step"`
}

type Town struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// New villages start with this many basic workers.
	StartingWorkers int `yaml:"starting_workers"`
	WorkerHP        int `yaml:"worker_hp"`
	// WorkerSpeed is in tiles per second.
	WorkerSpeed float64 `yaml:"worker_speed"`
}

type BuildingDef struct {
	Cost      Price         `yaml:"cost"`
	BuildTime time.Duration `yaml:"build_time"`
	// AuraRange is a tile radius; zero means no aura.
	AuraRange  float64 `yaml:"aura_range"`
	AuraEffect int     `yaml:"aura_effect"`
	// Produces names a resource ("feathers", "sticks", "logs") or is empty.
	Produces    string `yaml:"produces"`
	RatePerHour int64  `yaml:"rate_per_hour"`
}

type Price struct {
	Feathers int64 `yaml:"feathers" json:"feathers"`
	Sticks   int64 `yaml:"sticks" json:"sticks"`
	Logs     int64 `yaml:"logs" json:"logs"`
}

func (p Price) Add(o Price) Price {
	return Price{Feathers: p.Feathers + o.Feathers, Sticks: p.Sticks + o.Sticks, Logs: p.Logs + o.Logs}
}

func (p Price) Scale(n int64) Price {
	return Price{Feathers: p.Feathers * n, Sticks: p.Sticks * n, Logs: p.Logs * n}
}

func (p Price) Negative() bool { return p.Feathers < 0 || p.Sticks < 0 || p.Logs < 0 }

func (p Price) IsZero() bool { return p == Price{} }

var resourceNames = map[string]struct{}{"feathers": {}, "sticks": {}, "logs": {}}

// Load reads path over Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		Seed: 1,
		Scheduler: Scheduler{
			MaxPollInterval: 5 * time.Second,
			GatewayPoolSize: 2,
			MaxAttempts:     5,
			RetryBackoff:    500 * time.Millisecond,
			RetryMaxDelay:   30 * time.Second,
		},
		Economy: Economy{
			TickInterval:      time.Minute,
			StartingResources: Price{Feathers: 50, Sticks: 20, Logs: 10},
		},
		Attacks: Attacks{
			SpawnInterval:   10 * time.Minute,
			SpawnChance:     0.5,
			MinStoryStage:   1,
			HobosMin:        1,
			HobosMax:        3,
			TravelTime:      2 * time.Minute,
			DefaultCapacity: 3,
			HoboHP:          4,
			HoboSpeed:       0.1,
			HurriedChance:   0.25,
			KarmaPerHobo:    5,
			FeathersPerHobo: 2,
		},
		Prophets: Prophets{
			KarmaPerProphet: 100,
			BasePrice:       Price{Feathers: 50},
			PriceStep:       Price{Feathers: 25},
		},
		Town: Town{Width: 23, Height: 13, StartingWorkers: 2, WorkerHP: 1, WorkerSpeed: 0.5},
		Buildings: map[string]BuildingDef{
			"blue_flowers":     {Cost: Price{Feathers: 20}, BuildTime: 30 * time.Second, AuraRange: 1, AuraEffect: 1},
			"red_flowers":      {Cost: Price{Feathers: 40, Sticks: 5}, BuildTime: time.Minute, AuraRange: 2, AuraEffect: 2},
			"tree":             {Cost: Price{Feathers: 10}, BuildTime: 5 * time.Minute, AuraRange: 1, AuraEffect: 1, Produces: "sticks", RatePerHour: 6},
			"bundling_station": {Cost: Price{Feathers: 30, Sticks: 10}, BuildTime: 2 * time.Minute, Produces: "sticks", RatePerHour: 30},
			"saw_mill":         {Cost: Price{Feathers: 60, Sticks: 20}, BuildTime: 4 * time.Minute, Produces: "logs", RatePerHour: 12},
			"present_a":        {Cost: Price{Feathers: 80, Logs: 10}, BuildTime: time.Minute, AuraRange: 3, AuraEffect: 2},
			"present_b":        {Cost: Price{Feathers: 120, Logs: 20}, BuildTime: time.Minute, AuraRange: 4, AuraEffect: 3},
			"temple":           {Cost: Price{Feathers: 200, Sticks: 50, Logs: 50}, BuildTime: 10 * time.Minute},
		},
		TaskRewards: map[string]Price{
			"gather_sticks": {Sticks: 2},
			"chop_tree":     {Logs: 1},
		},
		Story: []string{"servant_accepted", "temple_built", "visitor_arrived", "first_visitor_welcomed", "solved_quest"},
	}
}

func (t Tuning) Building(typ string) (BuildingDef, bool) {
	d, ok := t.Buildings[typ]
	return d, ok
}

// StoryIndex returns the position of state in Story, or -1.
func (t Tuning) StoryIndex(state string) int {
	for i, s := range t.Story {
		if s == state {
			return i
		}
	}
	return -1
}

// ProphetPrice is the cost of the next prophet for a player owning n.
func (t Tuning) ProphetPrice(owned int) Price {
	return t.Prophets.BasePrice.Add(t.Prophets.PriceStep.Scale(int64(owned)))
}

// ProphetLimit is how many prophets a player with karma may own.
func (t Tuning) ProphetLimit(karma int64) int {
	if karma <= 0 || t.Prophets.KarmaPerProphet <= 0 {
		return 0
	}
	return int(karma / t.Prophets.KarmaPerProphet)
}

func (t Tuning) Validate() error {
	s := t.Scheduler
	if s.MaxPollInterval <= 0 {
		return fmt.Errorf("scheduler.max_poll_interval must be > 0")
	}
	if s.GatewayPoolSize <= 0 {
		return fmt.Errorf("scheduler.gateway_pool_size must be > 0")
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler.max_attempts must be > 0")
	}
	if s.RetryBackoff <= 0 || s.RetryMaxDelay < s.RetryBackoff {
		return fmt.Errorf("scheduler.retry_backoff must be > 0 and <= retry_max_delay")
	}
	if t.Economy.TickInterval <= 0 {
		return fmt.Errorf("economy.tick_interval must be > 0")
	}
	if t.Economy.StartingResources.Negative() {
		return fmt.Errorf("economy.starting_resources must not be negative")
	}
	a := t.Attacks
	if a.SpawnInterval <= 0 {
		return fmt.Errorf("attacks.spawn_interval must be > 0")
	}
	if a.SpawnChance < 0 || a.SpawnChance > 1 || a.HurriedChance < 0 || a.HurriedChance > 1 {
		return fmt.Errorf("attacks chances must be in [0, 1]")
	}
	if a.HobosMin <= 0 || a.HobosMax < a.HobosMin {
		return fmt.Errorf("attacks.hobos_min must be > 0 and <= hobos_max")
	}
	if a.TravelTime < 0 {
		return fmt.Errorf("attacks.travel_time must be >= 0")
	}
	if a.DefaultCapacity <= 0 {
		return fmt.Errorf("attacks.default_capacity must be > 0")
	}
	if a.HoboHP <= 0 || a.HoboSpeed <= 0 {
		return fmt.Errorf("attacks.hobo_hp and hobo_speed must be > 0")
	}
	if t.Town.Width <= 0 || t.Town.Height <= 0 {
		return fmt.Errorf("town size must be > 0")
	}
	if t.Town.StartingWorkers < 0 || t.Town.WorkerHP <= 0 || t.Town.WorkerSpeed <= 0 {
		return fmt.Errorf("town worker settings out of range")
	}
	if len(t.Buildings) == 0 {
		return fmt.Errorf("buildings must not be empty")
	}
	for name, b := range t.Buildings {
		if b.Cost.Negative() {
			return fmt.Errorf("building %s cost must not be negative", name)
		}
		if b.BuildTime < 0 {
			return fmt.Errorf("building %s build_time must be >= 0", name)
		}
		if b.Produces != "" {
			if _, ok := resourceNames[b.Produces]; !ok {
				return fmt.Errorf("building %s produces unknown resource %q", name, b.Produces)
			}
			if b.RatePerHour <= 0 {
				return fmt.Errorf("building %s rate_per_hour must be > 0", name)
			}
		}
	}
	for name, r := range t.TaskRewards {
		if r.Negative() {
			return fmt.Errorf("task_rewards.%s must not be negative", name)
		}
	}
	if len(t.Story) == 0 {
		return fmt.Errorf("story must not be empty")
	}
	seen := make(map[string]struct{}, len(t.Story))
	for _, s := range t.Story {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("duplicate story state: %s", s)
		}
		seen[s] = struct{}{}
	}
	if a.MinStoryStage < 0 || a.MinStoryStage >= len(t.Story) {
		return fmt.Errorf("attacks.min_story_stage out of range")
	}
	return nil
}
