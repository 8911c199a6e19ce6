package config

// Config is the top-level optimization configuration, read once at
// optimization start. Only the per-step Final values are appended after a
// step completes; everything else is immutable during the run.
type Config struct {
	LogLevel   string             `yaml:"log_level"`
	Simulation SimulationConfig   `yaml:"simulation"`
	Reference  ReferenceConfig    `yaml:"reference"`
	Parameters map[string]float64 `yaml:"parameters"`
	Steps      []StepConfig       `yaml:"steps"`
	Server     *ServerConfig      `yaml:"server,omitempty"`
	Storage    *StorageConfig     `yaml:"storage,omitempty"`
}

// SimulationConfig describes how to invoke the external simulator and the
// global simulation settings.
type SimulationConfig struct {
	// Command is the simulation worker executable (e.g. "nrniv").
	Command string `yaml:"command"`
	// Args are passed to the worker after the built-in arguments.
	Args []string `yaml:"args,omitempty"`
	// MPICmd launches the worker fan-out; defaults to "mpiexec".
	MPICmd string `yaml:"mpi_cmd,omitempty"`
	// WorkDir is the working directory for simulator invocations.
	WorkDir string `yaml:"workdir,omitempty"`
	// Workers is the initial per-invocation parallelism.
	Workers int `yaml:"workers"`
	// Trials is the number of trials averaged per invocation.
	Trials int `yaml:"trials"`
	// TStop is the full simulation duration in ms.
	TStop float64 `yaml:"tstop"`
	// Seed seeds the simulator's random streams.
	Seed int64 `yaml:"seed"`
}

// ReferenceConfig points at the experimental reference waveform.
type ReferenceConfig struct {
	Path string `yaml:"path"`
}

// StepConfig is one stage of the staged search: a time sub-interval, a
// subset of parameter ranges, a weighting scheme over the interval and an
// iteration budget.
type StepConfig struct {
	Start   float64        `yaml:"start"`
	End     float64        `yaml:"end"`
	NumSims int            `yaml:"num_sims"`
	Ranges  []RangeConfig  `yaml:"ranges"`
	Weights []WeightConfig `yaml:"weights"`
}

// RangeConfig bounds one searched parameter. Initial defaults to the
// top-level parameter value when omitted.
type RangeConfig struct {
	Name    string   `yaml:"name"`
	Initial *float64 `yaml:"initial,omitempty"`
	Min     float64  `yaml:"minval"`
	Max     float64  `yaml:"maxval"`
}

// WeightConfig is one weighted sub-window of a step's scoring interval.
type WeightConfig struct {
	Start  float64 `yaml:"start"`
	End    float64 `yaml:"end"`
	Weight float64 `yaml:"weight"`
}

// ServerConfig configures the HTTP control surface and the completion
// webhook.
type ServerConfig struct {
	HTTPAddr       string `yaml:"http_addr"`
	CallbackURL    string `yaml:"callback_url,omitempty"`
	CallbackSecret string `yaml:"callback_secret,omitempty"`
}

// StorageConfig configures the sqlite trial-history store. An empty path
// disables persistence.
type StorageConfig struct {
	Path string `yaml:"path"`
}
