package config

// Feature store backends.
const (
	BackendDir   = "dir"
	BackendMinio = "minio"
)

const (
	defaultDataDir           = "~/.local/share/segue"
	defaultLogDir            = "~/.local/share/segue/logs"
	defaultFeatureDir        = "~/.local/share/segue/features"
	defaultFFmpegCommand     = "ffmpeg"
	defaultExtractionTimeout = 120
	defaultQueuePollInterval = 2
	defaultWorkers           = 2
	defaultRedisAddr         = "127.0.0.1:6379"
	defaultRedisTTLSeconds   = 300
	defaultLogFormat         = ""
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Analysis: Analysis{
			FFmpegCommand:     defaultFFmpegCommand,
			ExtractionTimeout: defaultExtractionTimeout,
		},
		FeatureStore: FeatureStore{
			Backend: BackendDir,
			Dir:     defaultFeatureDir,
		},
		Redis: Redis{
			Addr:       defaultRedisAddr,
			TTLSeconds: defaultRedisTTLSeconds,
		},
		Workflow: Workflow{
			QueuePollInterval: defaultQueuePollInterval,
			Workers:           defaultWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
