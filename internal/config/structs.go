//nolint:lll
package config

import "time"

// Config is the complete configuration of the ledgerscan binary. It is
// loaded from a config file, LEDGERSCAN_* environment variables and
// command-line flags, in increasing order of precedence.
type Config struct {
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	// Preset seeds the pipeline section before the file and environment
	// are applied.
	Preset string `mapstructure:"preset" yaml:"preset" json:"preset"`

	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation" json:"validation"`
	Output     OutputConfig     `mapstructure:"output" yaml:"output" json:"output"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	GPU        GPUConfig        `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// PipelineConfig contains extraction settings.
type PipelineConfig struct {
	DetectorChain       []string      `mapstructure:"detector_chain" yaml:"detector_chain" json:"detector_chain"`
	RecognizerChain     []string      `mapstructure:"recognizer_chain" yaml:"recognizer_chain" json:"recognizer_chain"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	ReviewThreshold     float64       `mapstructure:"review_threshold" yaml:"review_threshold" json:"review_threshold"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxWorkers          int           `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
	UseTextLayer        bool          `mapstructure:"use_text_layer" yaml:"use_text_layer" json:"use_text_layer"`
	PageRange           string        `mapstructure:"page_range" yaml:"page_range" json:"page_range"`
	Preprocess          bool          `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	// Deskew straightens small page rotations; only applied with Preprocess.
	Deskew bool `mapstructure:"deskew" yaml:"deskew" json:"deskew"`

	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector" json:"detector"`
	Recognizer RecognizerConfig `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
}

// DetectorConfig contains region detection settings.
type DetectorConfig struct {
	ModelPath         string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DBThresh          float32 `mapstructure:"db_thresh" yaml:"db_thresh" json:"db_thresh"`
	DBBoxThresh       float64 `mapstructure:"db_box_thresh" yaml:"db_box_thresh" json:"db_box_thresh"`
	MaxSide           int     `mapstructure:"max_side" yaml:"max_side" json:"max_side"`
	UseNMS            bool    `mapstructure:"use_nms" yaml:"use_nms" json:"use_nms"`
	NMSThreshold      float64 `mapstructure:"nms_threshold" yaml:"nms_threshold" json:"nms_threshold"`
	NumThreads        int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	TesseractLanguage string  `mapstructure:"tesseract_language" yaml:"tesseract_language" json:"tesseract_language"`
}

// RecognizerConfig contains text recognition settings.
type RecognizerConfig struct {
	ModelPath         string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	DictPath          string  `mapstructure:"dict_path" yaml:"dict_path" json:"dict_path"`
	DecodeMode        string  `mapstructure:"decode_mode" yaml:"decode_mode" json:"decode_mode"`
	BeamWidth         int     `mapstructure:"beam_width" yaml:"beam_width" json:"beam_width"`
	LengthPenalty     float64 `mapstructure:"length_penalty" yaml:"length_penalty" json:"length_penalty"`
	NumThreads        int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	TesseractLanguage string  `mapstructure:"tesseract_language" yaml:"tesseract_language" json:"tesseract_language"`
}

// ValidationConfig contains parsing and validation settings.
type ValidationConfig struct {
	Strictness       string   `mapstructure:"strictness" yaml:"strictness" json:"strictness"`
	BalanceTolerance float64  `mapstructure:"balance_tolerance" yaml:"balance_tolerance" json:"balance_tolerance"`
	MinDate          string   `mapstructure:"min_date" yaml:"min_date" json:"min_date"`
	MaxDate          string   `mapstructure:"max_date" yaml:"max_date" json:"max_date"`
	Currency         string   `mapstructure:"currency" yaml:"currency" json:"currency"`
	CurrencySymbol   string   `mapstructure:"currency_symbol" yaml:"currency_symbol" json:"currency_symbol"`
	DateLayouts      []string `mapstructure:"date_layouts" yaml:"date_layouts" json:"date_layouts"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format         string `mapstructure:"format" yaml:"format" json:"format"`
	File           string `mapstructure:"file" yaml:"file" json:"file"`
	IncludeTimings bool   `mapstructure:"include_timings" yaml:"include_timings" json:"include_timings"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig contains per-client request limits. Zero disables a limit.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDay     int64 `mapstructure:"max_data_per_day" yaml:"max_data_per_day" json:"max_data_per_day"`
}

// GPUConfig contains GPU acceleration settings for the ONNX backends.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}
