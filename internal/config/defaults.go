package config

const (
	defaultExportDir        = "~/Videos/albumvideo"
	defaultStagingDir       = "~/.local/share/albumvideo/staging"
	defaultLogDir           = "~/.local/share/albumvideo/logs"
	defaultDevToolsDir      = "~/.local/share/albumvideo/devtools"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
	defaultWatchdogTimeout  = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ExportDir:  defaultExportDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Encoder: Encoder{
			FFmpegBinary:  "ffmpeg",
			FFprobeBinary: "ffprobe",
			DevToolsDir:   defaultDevToolsDir,
		},
		Workflow: Workflow{
			WatchdogTimeout: defaultWatchdogTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
