package flags

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/ruteri/tee-secret-management-backend/api"
	"github.com/ruteri/tee-secret-management-backend/common"
	"github.com/urfave/cli/v2"
)

// EnvFileVar names the variable pointing at the .env file to load.
const EnvFileVar = "SMS_ENV_FILE"

const defaultEnvFile = ".env"

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overridden. An empty path means ./.env,
// which may be absent.
func LoadEnvFile(path string) error {
	if path == "" {
		err := godotenv.Load(defaultEnvFile)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		WriteRateLimit:           cCtx.Float64(WriteRateLimitFlag.Name),
		WriteRateBurst:           cCtx.Int(WriteRateBurstFlag.Name),
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for API",
	EnvVars: []string{"SMS_LISTEN_ADDR"},
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server-addr",
	Value:   "http://127.0.0.1:8080",
	Usage:   "secret management server to send requests to",
	EnvVars: []string{"SMS_SERVER_ADDR"},
}

var RpcAddrFlag = &cli.StringFlag{
	Name:    "rpc-addr",
	Usage:   "Ethereum RPC to resolve application and dataset owners with. If empty, owners come from the registry file",
	EnvVars: []string{"SMS_RPC_ADDR"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: []string{"SMS_LOG_JSON"},
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: []string{"SMS_LOG_DEBUG"},
}
var LogUidFlag = &cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	Usage:   "generate a uuid and add to all log messages",
	EnvVars: []string{"SMS_LOG_UID"},
}
var LogServiceFlag = &cli.StringFlag{
	Name:    "log-service",
	Value:   common.PackageName,
	Usage:   "add 'service' tag to logs",
	EnvVars: []string{"SMS_LOG_SERVICE"},
}

var PprofFlag = &cli.BoolFlag{
	Name:    "pprof",
	Value:   false,
	Usage:   "enable pprof debug endpoint",
	EnvVars: []string{"SMS_PPROF"},
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:    "drain-seconds",
	Value:   45,
	Usage:   "seconds to wait in drain HTTP request",
	EnvVars: []string{"SMS_DRAIN_SECONDS"},
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics",
	EnvVars: []string{"SMS_METRICS_ADDR"},
}
var WriteRateLimitFlag = &cli.Float64Flag{
	Name:    "write-rate-limit",
	Value:   10,
	Usage:   "write requests per second allowed from one remote address, 0 disables the limit",
	EnvVars: []string{"SMS_WRITE_RATE_LIMIT"},
}
var WriteRateBurstFlag = &cli.IntFlag{
	Name:    "write-rate-burst",
	Value:   20,
	Usage:   "write requests a remote address may send at once",
	EnvVars: []string{"SMS_WRITE_RATE_BURST"},
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	MetricsAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	WriteRateLimitFlag,
	WriteRateBurstFlag,
}

// LoadEnvFileFromEnvironment loads the file named by SMS_ENV_FILE, or ./.env.
// Binaries call it before parsing flags so the file can feed flag EnvVars.
func LoadEnvFileFromEnvironment() error {
	return LoadEnvFile(os.Getenv(EnvFileVar))
}
