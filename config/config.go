// Package config - loads the runtime configuration of the dropsight
// binaries from YAML, a .env file and DROPSIGHT_* environment variables.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/dropsight/detector"
	"github.com/nvr-ai/dropsight/inference"
	"github.com/nvr-ai/dropsight/logging"
	"github.com/nvr-ai/dropsight/models/model"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DROPSIGHT_"

// Storage drivers.
const (
	DriverNone   = "none"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Storage selects where records are persisted.
type Storage struct {
	// Driver is DriverNone, DriverSQLite or DriverMongo.
	Driver string `yaml:"driver"`
	// DSN is the SQLite path or the MongoDB URI.
	DSN string `yaml:"dsn"`
	// Database and Collection name the MongoDB namespace.
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// Render controls the annotated copies.
type Render struct {
	Enabled   bool    `yaml:"enabled"`
	OutputDir string  `yaml:"outputDir"`
	LineWidth float64 `yaml:"lineWidth"`
	FontSize  float64 `yaml:"fontSize"`
}

// Source is the directory images are read from.
type Source struct {
	Directory string `yaml:"directory"`
}

// Log configures the logger.
type Log struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// Config is the full runtime configuration.
type Config struct {
	Detector detector.Config      `yaml:"detector"`
	Runtime  inference.ONNXConfig `yaml:"runtime"`
	Storage  Storage              `yaml:"storage"`
	Render   Render               `yaml:"render"`
	Source   Source               `yaml:"source"`
	// Workers bounds concurrent images in batch mode, 0 for one per CPU.
	Workers int `yaml:"workers"`
	Log     Log `yaml:"log"`
}

// Default returns the configuration used when nothing overrides it. The
// sizes that follow the model input size are left zero; call Derive before
// using the result.
func Default() Config {
	runtime := inference.DefaultONNXConfig(0)
	runtime.InputSize = 0
	runtime.Anchors = 0

	det := detector.DefaultConfig()
	det.Model.Preprocess.InputSize = 0

	return Config{
		Detector: det,
		Runtime:  runtime,
		Storage:  Storage{Driver: DriverNone},
		Render: Render{
			OutputDir: "processed",
			LineWidth: 3,
			FontSize:  16,
		},
		Source: Source{Directory: "images"},
		Log:    Log{Level: "info", Encoding: logging.EncodingConsole},
	}
}

// Load builds the configuration: defaults, then the YAML file at path when
// path is not empty, then the variables of envFile (or ".env" when envFile
// is empty) if it exists, then DROPSIGHT_* overrides. The result is
// validated.
//
// Arguments:
//   - path: The YAML file, or "" for none.
//   - envFile: The dotenv file, or "" for ".env".
//
// Returns:
//   - *Config: The configuration.
//   - error: If a file cannot be read or a value is invalid.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "load %s", envFile)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.Derive()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Derive fills the settings left zero from the ones they follow: the class
// list from the class style, the preprocess and runtime input sizes from the
// model input size, the runtime class count from the class list and the
// anchor count from the runtime input size.
func (c *Config) Derive() {
	if len(c.Detector.Classes) == 0 {
		if set, err := c.Detector.ClassSet(); err == nil {
			c.Detector.Classes = set.Names()
		}
	}
	if c.Detector.Model.Preprocess.InputSize == 0 {
		c.Detector.Model.Preprocess.InputSize = c.Detector.Model.InputSize
	}
	if c.Runtime.NumClasses == 0 {
		c.Runtime.NumClasses = len(c.Detector.Classes)
	}
	if c.Runtime.InputSize == 0 {
		c.Runtime.InputSize = c.Detector.Model.InputSize
	}
	if c.Runtime.Anchors == 0 {
		c.Runtime.Anchors = inference.YOLOv5Anchors(c.Runtime.InputSize)
	}
}

func applyEnv(cfg *Config) error {
	var err error

	cfg.Detector.Model.Path = getEnv("MODEL_PATH", cfg.Detector.Model.Path)
	if cfg.Detector.ConfidenceThreshold, err = getEnvAsFloat32("CONFIDENCE_THRESHOLD", cfg.Detector.ConfidenceThreshold); err != nil {
		return err
	}
	if cfg.Detector.OverlapThreshold, err = getEnvAsFloat32("OVERLAP_THRESHOLD", cfg.Detector.OverlapThreshold); err != nil {
		return err
	}
	if cfg.Detector.MaxDetections, err = getEnvAsInt("MAX_DETECTIONS", cfg.Detector.MaxDetections); err != nil {
		return err
	}
	if style := getEnv("CLASS_STYLE", ""); style != "" {
		cfg.Detector.ClassStyle = model.ClassStyle(style)
		cfg.Detector.Classes = nil
	}
	if classes := getEnv("CLASSES", ""); classes != "" {
		cfg.Detector.ClassStyle = model.ClassStyleCustom
		cfg.Detector.Classes = splitList(classes)
	}

	cfg.Runtime.LibraryPath = getEnv("ONNXRUNTIME_LIB", cfg.Runtime.LibraryPath)
	cfg.Runtime.Session.Provider = inference.Provider(getEnv("PROVIDER", string(cfg.Runtime.Session.Provider)))
	if cfg.Runtime.Session.IntraOpThreads, err = getEnvAsInt("INTRA_OP_THREADS", cfg.Runtime.Session.IntraOpThreads); err != nil {
		return err
	}

	cfg.Storage.Driver = getEnv("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = getEnv("STORAGE_DSN", cfg.Storage.DSN)
	cfg.Storage.Database = getEnv("STORAGE_DATABASE", cfg.Storage.Database)
	cfg.Storage.Collection = getEnv("STORAGE_COLLECTION", cfg.Storage.Collection)

	if cfg.Render.Enabled, err = getEnvAsBool("RENDER", cfg.Render.Enabled); err != nil {
		return err
	}
	cfg.Render.OutputDir = getEnv("RENDER_DIR", cfg.Render.OutputDir)

	cfg.Source.Directory = getEnv("IMAGE_DIR", cfg.Source.Directory)
	if cfg.Workers, err = getEnvAsInt("WORKERS", cfg.Workers); err != nil {
		return err
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Encoding = getEnv("LOG_ENCODING", cfg.Log.Encoding)

	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return &detector.ConfigurationError{Field: "workers", Reason: "must not be negative"}
	}
	if c.Runtime.NumClasses != len(c.Detector.Classes) {
		return &detector.ConfigurationError{
			Field:  "runtime.numClasses",
			Reason: "must match the number of detector classes",
		}
	}
	if c.Runtime.InputSize != c.Detector.Model.InputSize {
		return &detector.ConfigurationError{
			Field:  "runtime.inputSize",
			Reason: "must match the model input size",
		}
	}
	if err := c.Runtime.Session.Validate(); err != nil {
		return &detector.ConfigurationError{Field: "runtime.session", Reason: err.Error()}
	}

	switch c.Storage.Driver {
	case "", DriverNone:
	case DriverSQLite, DriverMongo:
		if c.Storage.DSN == "" {
			return &detector.ConfigurationError{Field: "storage.dsn", Reason: "required by " + c.Storage.Driver}
		}
	default:
		return &detector.ConfigurationError{Field: "storage.driver", Reason: "unknown driver " + strconv.Quote(c.Storage.Driver)}
	}

	if c.Render.Enabled && c.Render.OutputDir == "" {
		return &detector.ConfigurationError{Field: "render.outputDir", Reason: "required when rendering"}
	}

	if _, err := logging.NewLoggerConfig(c.Log.Level, c.Log.Encoding); err != nil {
		return &detector.ConfigurationError{Field: "log", Reason: err.Error()}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &detector.ConfigurationError{Field: EnvPrefix + key, Reason: "not an integer: " + value}
	}
	return n, nil
}

func getEnvAsFloat32(key string, defaultValue float32) (float32, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return 0, &detector.ConfigurationError{Field: EnvPrefix + key, Reason: "not a number: " + value}
	}
	return float32(f), nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, &detector.ConfigurationError{Field: EnvPrefix + key, Reason: "not a boolean: " + value}
	}
	return b, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
