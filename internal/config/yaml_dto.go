package config

// YAMLScenario is the on-disk shape of a scenario file.
type YAMLScenario struct {
	Name    string               `yaml:"name"`
	Start   string               `yaml:"start"`
	Layers  []float64            `yaml:"layers"`
	Weather YAMLWeather          `yaml:"weather"`
	Solutes map[string][]float64 `yaml:"solutes"`
	Pools   []YAMLPool           `yaml:"pools"`
	Flows   []YAMLFlow           `yaml:"flows"`
}

type YAMLWeather struct {
	Mode           string   `yaml:"mode"`
	Seed           int64    `yaml:"seed"`
	MeanAnnualTemp *float64 `yaml:"mean_annual_temp"`
	Amplitude      *float64 `yaml:"amplitude"`
	WarmestDay     *int     `yaml:"warmest_day"`
	Noise          *float64 `yaml:"noise"`
}

type YAMLPool struct {
	Name          string    `yaml:"name"`
	C             []float64 `yaml:"c"`
	N             []float64 `yaml:"n"`
	P             []float64 `yaml:"p"`
	LayerFraction []float64 `yaml:"layer_fraction"`
}

type YAMLFlow struct {
	Name         string    `yaml:"name"`
	Source       string    `yaml:"source"`
	Destinations []string  `yaml:"destinations"`
	Fractions    []float64 `yaml:"fractions"`

	Rate      *float64  `yaml:"rate"`
	Rates     []float64 `yaml:"rates"`
	RateDecay *float64  `yaml:"rate_decay"`

	Efficiency            float64 `yaml:"efficiency"`
	TemperatureEfficiency bool    `yaml:"temperature_efficiency"`
	TemperatureScaledRate bool    `yaml:"temperature_scaled_rate"`

	PhosphorusConstraint       bool `yaml:"phosphorus_constraint"`
	PhosphorusMassBalanceCheck bool `yaml:"phosphorus_mass_balance_check"`
}
