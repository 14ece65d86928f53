package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Values come from the environment (optionally via a .env file) with
// development-friendly defaults.
type Config struct {
	FFmpegPath string

	// Transcode target bitrates per quality tier, ffmpeg notation (e.g. "128k").
	TranscodeBitrateLow    string
	TranscodeBitrateMedium string
	TranscodeBitrateHigh   string

	// Streaming
	StreamChunkSize    int64 // max bytes returned for an open-ended Range request
	PlayStartThreshold int64 // range offsets below this count as "playback started"

	// Waveform
	WaveformPoints int

	SourceAudioDir string // base directory for original uploaded audio files
	UploadDir      string // base directory for all uploads
	AudioUploadDir string // subdirectory for audio files: UploadDir/audio
	CoverUploadDir string // subdirectory for cover art: UploadDir/covers

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// TrackCacheTTL bounds how stale a cached track row may be, in seconds.
	TrackCacheTTL int

	// Play-count debouncing
	PlayDebounceBackend  string // "memory" or "redis"
	PlayDebounceWindow   int    // seconds between counted plays for one (track,user)
	PlayDebounceMaxSize  int    // prune trigger for the in-memory backend
	PlayDebouncePruneAge int    // seconds; entries older than this are dropped on prune

	// StorageBackend selects where originals and renditions live: "local" or "minio".
	StorageBackend string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	JWTSecret string

	ServerAddr string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	uploadBase := getEnv("UPLOAD_DIR", "uploads")

	return &Config{
		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),

		TranscodeBitrateLow:    getEnv("TRANSCODE_BITRATE_LOW", "64k"),
		TranscodeBitrateMedium: getEnv("TRANSCODE_BITRATE_MEDIUM", "128k"),
		TranscodeBitrateHigh:   getEnv("TRANSCODE_BITRATE_HIGH", "256k"),

		StreamChunkSize:    getEnvInt64("STREAM_CHUNK_SIZE", 64*1024),
		PlayStartThreshold: getEnvInt64("PLAY_START_THRESHOLD", 1000),

		WaveformPoints: getEnvInt("WAVEFORM_POINTS", 200),

		SourceAudioDir: filepath.Join(uploadBase, "audio"),
		UploadDir:      uploadBase,
		AudioUploadDir: filepath.Join(uploadBase, "audio"),
		CoverUploadDir: filepath.Join(uploadBase, "covers"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for secrets
		DBName:     getEnv("DB_NAME", "wavefm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TrackCacheTTL: getEnvInt("TRACK_CACHE_TTL_SECONDS", 300),

		PlayDebounceBackend:  getEnv("PLAY_DEBOUNCE_BACKEND", "memory"),
		PlayDebounceWindow:   getEnvInt("PLAY_DEBOUNCE_WINDOW_SECONDS", 30),
		PlayDebounceMaxSize:  getEnvInt("PLAY_DEBOUNCE_MAX_ENTRIES", 10000),
		PlayDebouncePruneAge: getEnvInt("PLAY_DEBOUNCE_PRUNE_AGE_SECONDS", 60),

		StorageBackend: getEnv("STORAGE_BACKEND", "local"),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "wavefm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		JWTSecret: getEnv("JWT_SECRET", "wavefm-dev-secret"),

		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
	}
}
