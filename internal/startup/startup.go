package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"clipflow/internal/logging"
	"clipflow/internal/workers"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// Config holds all application configuration
type Config struct {
	UploadDir   string
	DatabaseDir string
	Port        string
	MetricsPort string
	TokenSecret string

	ProgressInterval time.Duration
	ChunkCacheTTL    time.Duration
	MaxUploadBytes   int64
	PipelineWorkers  int

	LogHealthChecks bool
	MetricsEnabled  bool

	// Derived paths
	DatabasePath string
}

// Defaults not tied to the environment.
const (
	defaultMaxUploadBytes = 2 << 30 // 2 GiB, matches the upload contract
	databaseFilename      = "clipflow.db"
)

// LoadConfig loads and validates configuration from environment variables.
// A .env file in the working directory is honored when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logging.Debug("Loaded environment from .env")
	}

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	uploadDir := getEnv("UPLOAD_DIR", "/data/uploads")
	databaseDir := getEnv("DATABASE_DIR", "/data/database")
	port := getEnv("PORT", "8080")
	metricsPort := getEnv("METRICS_PORT", "9090")
	tokenSecret := os.Getenv("TOKEN_SECRET")
	progressInterval := getEnvDuration("PROGRESS_INTERVAL", 1500*time.Millisecond)
	chunkCacheTTL := getEnvDuration("CHUNK_CACHE_TTL", 60*time.Second)
	maxUploadBytes := getEnvInt64("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)

	logging.Info("  UPLOAD_DIR:        %s", uploadDir)
	logging.Info("  DATABASE_DIR:      %s", databaseDir)
	logging.Info("  PORT:              %s", port)
	logging.Info("  METRICS_PORT:      %s", metricsPort)
	logging.Info("  METRICS_ENABLED:   %v", metricsEnabled)
	logging.Info("  PROGRESS_INTERVAL: %s", progressInterval)
	logging.Info("  CHUNK_CACHE_TTL:   %s", chunkCacheTTL)
	logging.Info("  MAX_UPLOAD_BYTES:  %d", maxUploadBytes)
	logging.Info("  LOG_LEVEL:         %s", logging.GetLevel())

	if tokenSecret == "" {
		return nil, fmt.Errorf("TOKEN_SECRET must be set")
	}
	if len(tokenSecret) < 16 {
		return nil, fmt.Errorf("TOKEN_SECRET must be at least 16 characters")
	}

	// Resolve paths
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	uploadDir, err := filepath.Abs(uploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory path: %w", err)
	}
	logging.Info("  Upload directory (absolute): %s", uploadDir)

	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	if err := ensureDirectory(uploadDir, "upload"); err != nil {
		return nil, fmt.Errorf("upload directory error: %w", err)
	}
	if err := testWriteAccess(uploadDir); err != nil {
		return nil, fmt.Errorf("upload directory is not writable: %w", err)
	}
	logging.Info("  [OK] Upload directory is writable")

	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	config := &Config{
		UploadDir:        uploadDir,
		DatabaseDir:      databaseDir,
		Port:             port,
		MetricsPort:      metricsPort,
		TokenSecret:      tokenSecret,
		ProgressInterval: progressInterval,
		ChunkCacheTTL:    chunkCacheTTL,
		MaxUploadBytes:   maxUploadBytes,
		PipelineWorkers:  workers.ForCPU(8),
		LogHealthChecks:  logHealthChecks,
		MetricsEnabled:   metricsEnabled,
		DatabasePath:     filepath.Join(databaseDir, databaseFilename),
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(os.Getenv(key))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logging.Warn("  Invalid %s, using default: %s", key, fallback)
		return fallback
	}
	return d
}

func getEnvInt64(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		logging.Warn("  Invalid %s, using default: %d", key, fallback)
		return fallback
	}
	return n
}

func ensureDirectory(path, name string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Info("  Creating %s directory: %s", name, path)
		return os.MkdirAll(path, 0o755)
	}
	if err != nil {
		return fmt.Errorf("cannot stat %s directory: %w", name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s path exists but is not a directory: %s", name, path)
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("  failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func printBanner() {
	logging.Printf("============================================================")
	logging.Printf("  clipflow %s (%s)", Version, Commit)
	logging.Printf("============================================================")
}

func logSystemInfo() {
	logging.Info("  Go:   %s", GoVersion)
	logging.Info("  OS:   %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs: %d (GOMAXPROCS: %d)", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	logging.Info("")
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogTranscoderInit logs transcoder initialization and checks FFmpeg
func LogTranscoderInit() {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if err := checkFFmpeg(); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Uploaded videos will complete without renditions")
	} else {
		logging.Info("  [OK] FFmpeg is available")
	}
}

// LogPipelineInit logs pipeline manager initialization
func LogPipelineInit(workerCount int, interval time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("PIPELINE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Concurrent runs:   %d", workerCount)
	logging.Info("  Progress interval: %s", interval)
}

// checkFFmpeg verifies ffmpeg and ffprobe are on the PATH.
func checkFFmpeg() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found in PATH", bin)
		}
	}
	return nil
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{Method: method, Path: pathTemplate})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("  Failed to enumerate routes: %v", err)
		return
	}
	for _, route := range routes {
		logging.Info("  %-7s %s", route.Method, route.Path)
	}
}

// LogServerStarted logs the final startup summary
func LogServerStarted(port string, elapsed time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("READY")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Listening on :%s (startup took %v)", port, elapsed)
}

// LogShutdownInitiated logs the beginning of graceful shutdown
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("Received %s, shutting down gracefully...", signal)
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Info("  %s...", step)
}

// LogShutdownComplete logs completion of graceful shutdown
func LogShutdownComplete() {
	logging.Info("Shutdown complete")
}

// LogFatal logs a fatal startup error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}
