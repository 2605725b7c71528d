package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	marlin "github.com/jwaldner/marlin/marlin_lib"
)

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// EngineConfig represents computation engine configuration
type EngineConfig struct {
	Workers int `yaml:"workers"` // elementwise worker count, 0 = one per CPU
}

// DataConfig represents data preparation configuration
type DataConfig struct {
	RiskFreeRate  float64 `yaml:"risk_free_rate"`   // fallback rate when Treasury lookup is off or fails
	UseTreasury   bool    `yaml:"use_treasury"`     // fetch the live T-bill rate on startup
	MaxYearsToExp float64 `yaml:"max_years_to_exp"` // contracts beyond this expiry are dropped
}

// RunLogConfig represents calibration run log configuration
type RunLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type Config struct {
	// Server settings
	Port string

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
	// Engine settings
	Engine EngineConfig `yaml:"engine"`
	// Solver hyperparameters
	Solver marlin.SolverConfig `yaml:"solver"`
	// Data preparation settings
	Data DataConfig `yaml:"data"`
	// Run log settings
	RunLog RunLogConfig `yaml:"run_log"`
}

type YAMLConfig struct {
	Port    string              `yaml:"port"`
	Logging LoggingConfig       `yaml:"logging"`
	Engine  EngineConfig        `yaml:"engine"`
	Solver  marlin.SolverConfig `yaml:"solver"`
	Data    DataConfig          `yaml:"data"`
	RunLog  RunLogConfig        `yaml:"run_log"`
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Logging: LoggingConfig{
			LogLevel: getEnv("LOG_LEVEL", "info"),
			LogFile:  getEnv("LOG_FILE", "marlin.log"),
		},
		Engine: EngineConfig{
			Workers: getEnvInt("ENGINE_WORKERS", 0),
		},
		Solver: marlin.SolverConfig{
			InitialSigma:         getEnvFloat("SOLVER_INITIAL_SIGMA", 0),
			LearningRate:         getEnvFloat("SOLVER_LEARNING_RATE", 0),
			MaxIterations:        getEnvInt("SOLVER_MAX_ITERATIONS", 0),
			ConvergenceThreshold: getEnvFloat("SOLVER_CONVERGENCE_THRESHOLD", 0),
			CheckEvery:           getEnvInt("SOLVER_CHECK_EVERY", 0),
			Optimizer:            getEnv("SOLVER_OPTIMIZER", ""),
		},
		Data: DataConfig{
			RiskFreeRate:  getEnvFloat("RISK_FREE_RATE", 0.05),
			UseTreasury:   getEnvBool("USE_TREASURY_RATE", false),
			MaxYearsToExp: getEnvFloat("MAX_YEARS_TO_EXP", 3.0),
		},
		RunLog: RunLogConfig{
			Enabled: getEnvBool("RUN_LOG_ENABLED", true),
			Dir:     getEnv("RUN_LOG_DIR", "runs"),
		},
	}

	// Overlay values from config.yaml when present
	if yamlCfg := loadYAMLConfig(); yamlCfg != nil {
		if yamlCfg.Port != "" {
			cfg.Port = yamlCfg.Port
		}
		if yamlCfg.Logging.LogLevel != "" {
			cfg.Logging.LogLevel = yamlCfg.Logging.LogLevel
		}
		if yamlCfg.Logging.LogFile != "" {
			cfg.Logging.LogFile = yamlCfg.Logging.LogFile
		}
		if yamlCfg.Engine.Workers > 0 {
			cfg.Engine.Workers = yamlCfg.Engine.Workers
		}

		overlaySolver(&cfg.Solver, yamlCfg.Solver)

		if yamlCfg.Data.RiskFreeRate > 0 {
			cfg.Data.RiskFreeRate = yamlCfg.Data.RiskFreeRate
		}
		if yamlCfg.Data.UseTreasury {
			cfg.Data.UseTreasury = true
		}
		if yamlCfg.Data.MaxYearsToExp > 0 {
			cfg.Data.MaxYearsToExp = yamlCfg.Data.MaxYearsToExp
		}
		if yamlCfg.RunLog.Dir != "" {
			cfg.RunLog = yamlCfg.RunLog
		}
	}

	return cfg
}

// overlaySolver copies the yaml solver values over the env-derived ones,
// field by field. Zero values mean "not set" and keep the existing value;
// engine-side defaults fill whatever is still zero at run time.
func overlaySolver(dst *marlin.SolverConfig, src marlin.SolverConfig) {
	if src.InitialSigma > 0 {
		dst.InitialSigma = src.InitialSigma
	}
	if src.LearningRate > 0 {
		dst.LearningRate = src.LearningRate
	}
	if src.Beta1 > 0 {
		dst.Beta1 = src.Beta1
	}
	if src.Beta2 > 0 {
		dst.Beta2 = src.Beta2
	}
	if src.Eps > 0 {
		dst.Eps = src.Eps
	}
	if src.MaxIterations > 0 {
		dst.MaxIterations = src.MaxIterations
	}
	if src.ConvergenceThreshold > 0 {
		dst.ConvergenceThreshold = src.ConvergenceThreshold
	}
	if src.CheckEvery > 0 {
		dst.CheckEvery = src.CheckEvery
	}
	if src.Optimizer != "" {
		dst.Optimizer = src.Optimizer
	}
}

func loadYAMLConfig() *YAMLConfig {
	data, err := os.ReadFile("config.yaml")
	if err != nil {
		// Could not read config.yaml - silently return nil
		return nil
	}

	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		// Could not parse config.yaml - silently return nil
		return nil
	}

	return &yamlCfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
