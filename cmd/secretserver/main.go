package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ruteri/tee-secret-management-backend/api/handlers"
	"github.com/ruteri/tee-secret-management-backend/api/servers"
	"github.com/ruteri/tee-secret-management-backend/cmd/flags"
	"github.com/ruteri/tee-secret-management-backend/credentials"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/ruteri/tee-secret-management-backend/kms"
	"github.com/ruteri/tee-secret-management-backend/registry"
	"github.com/ruteri/tee-secret-management-backend/secrets"
	"github.com/ruteri/tee-secret-management-backend/session"
	"github.com/ruteri/tee-secret-management-backend/storage"
	"github.com/urfave/cli/v2"
)

var (
	flagRepository = &cli.StringFlag{
		Name:    "repository",
		Value:   "pebble://./data/secrets",
		Usage:   "secret repository URI: postgres://..., pebble://dir or mem://",
		EnvVars: []string{"SMS_REPOSITORY"},
	}
	flagMigrate = &cli.BoolFlag{
		Name:    "migrate",
		Usage:   "create the SQL schema on startup",
		EnvVars: []string{"SMS_MIGRATE"},
	}
	flagGateway = &cli.StringFlag{
		Name:    "gateway",
		Value:   "local://",
		Usage:   "encryption gateway URI: local://, vault://host/mount/key or awskms://region/key-id",
		EnvVars: []string{"SMS_GATEWAY"},
	}
	flagMasterKey = &cli.StringFlag{
		Name:    "master-key",
		Usage:   "hex-encoded master key of the local gateway (at least 32 bytes)",
		EnvVars: []string{"SMS_MASTER_KEY"},
	}
	flagMasterKeyShares = &cli.StringSliceFlag{
		Name:    "master-key-share",
		Usage:   "hex-encoded Shamir share of the local gateway master key, repeat up to the threshold",
		EnvVars: []string{"SMS_MASTER_KEY_SHARES"},
	}
	flagVaultToken = &cli.StringFlag{
		Name:    "vault-token",
		Usage:   "token of the vault:// gateway",
		EnvVars: []string{"SMS_VAULT_TOKEN", "VAULT_TOKEN"},
	}
	flagAWSAccessKey = &cli.StringFlag{
		Name:    "aws-access-key",
		Usage:   "access key of the awskms:// gateway, default credential chain when empty",
		EnvVars: []string{"SMS_AWS_ACCESS_KEY"},
	}
	flagAWSSecretKey = &cli.StringFlag{
		Name:    "aws-secret-key",
		Usage:   "secret key of the awskms:// gateway",
		EnvVars: []string{"SMS_AWS_SECRET_KEY"},
	}
	flagRegistryFile = &cli.StringFlag{
		Name:    "registry-file",
		Usage:   "JSON file with task descriptions and object owners",
		EnvVars: []string{"SMS_REGISTRY_FILE"},
	}
	flagPreComputeFingerprint = &cli.StringFlag{
		Name:    "pre-compute-fingerprint",
		Usage:   "fingerprint of the pre-compute enclave, 64 hex characters (required)",
		EnvVars: []string{"SMS_PRE_COMPUTE_FINGERPRINT"},
	}
	flagPostComputeFingerprint = &cli.StringFlag{
		Name:    "post-compute-fingerprint",
		Usage:   "fingerprint of the post-compute enclave, 64 hex characters (required)",
		EnvVars: []string{"SMS_POST_COMPUTE_FINGERPRINT"},
	}
	flagMaxHeapSize = &cli.Int64Flag{
		Name:    "max-heap-size",
		Value:   session.DefaultMaxHeapSize,
		Usage:   "largest heap an application enclave may request, in bytes",
		EnvVars: []string{"SMS_MAX_HEAP_SIZE"},
	}
	flagCacheSize = &cli.IntFlag{
		Name:    "existence-cache-size",
		Usage:   "entries kept per existence cache, 0 keeps every entry",
		EnvVars: []string{"SMS_EXISTENCE_CACHE_SIZE"},
	}
)

func main() {
	if err := flags.LoadEnvFileFromEnvironment(); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "secret-server",
		Usage: "Serve the TEE secret management API",
		Flags: append(append(append([]cli.Flag{}, flags.CommonFlags...), flags.ServerFlags...),
			flags.RpcAddrFlag,
			flagRepository,
			flagMigrate,
			flagGateway,
			flagMasterKey,
			flagMasterKeyShares,
			flagVaultToken,
			flagAWSAccessKey,
			flagAWSSecretKey,
			flagRegistryFile,
			flagPreComputeFingerprint,
			flagPostComputeFingerprint,
			flagMaxHeapSize,
			flagCacheSize,
		),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := cCtx.Context

	sessionCfg := session.Config{
		PreComputeFingerprint:  cCtx.String(flagPreComputeFingerprint.Name),
		PostComputeFingerprint: cCtx.String(flagPostComputeFingerprint.Name),
		MaxHeapSize:            cCtx.Int64(flagMaxHeapSize.Name),
	}
	if err := sessionCfg.Validate(); err != nil {
		logger.Error("Invalid session configuration", "err", err)
		return err
	}

	repo, err := storage.NewRepository(ctx, storage.RepositoryConfig{
		URI:     cCtx.String(flagRepository.Name),
		Migrate: cCtx.Bool(flagMigrate.Name),
	}, logger)
	if err != nil {
		logger.Error("Failed to open repository", "err", err)
		return err
	}
	defer repo.Close()
	logger.Info("Repository opened", "repository", repo.Name())

	gatewayCfg := kms.GatewayConfig{
		URI:          cCtx.String(flagGateway.Name),
		VaultToken:   cCtx.String(flagVaultToken.Name),
		AWSAccessKey: cCtx.String(flagAWSAccessKey.Name),
		AWSSecretKey: cCtx.String(flagAWSSecretKey.Name),
	}
	if strings.HasPrefix(gatewayCfg.URI, "local:") {
		gatewayCfg.MasterKey, err = masterKey(cCtx, logger)
		if err != nil {
			logger.Error("Invalid master key", "err", err)
			return err
		}
	}
	gateway, err := kms.NewGateway(gatewayCfg, logger)
	if err != nil {
		logger.Error("Failed to create encryption gateway", "err", err)
		return err
	}
	logger.Info("Encryption gateway ready", "gateway", gateway.Name())

	cacheSize := cCtx.Int(flagCacheSize.Name)
	compute, err := newStore[interfaces.ComputeSecretHeader](secrets.NamespaceCompute, repo, gateway, cacheSize, logger)
	if err != nil {
		return err
	}
	datasets, err := newStore[interfaces.OwnerSecretKey](secrets.NamespaceDataset, repo, gateway, cacheSize, logger)
	if err != nil {
		return err
	}
	owners, err := newStore[interfaces.OwnerSecretKey](secrets.NamespaceOwner, repo, gateway, cacheSize, logger)
	if err != nil {
		return err
	}
	credentialStore, err := newStore[interfaces.TaskCredentialKey](secrets.NamespaceTaskCredential, repo, gateway, cacheSize, logger)
	if err != nil {
		return err
	}
	creds := credentials.NewService(credentialStore, logger)

	builder := session.NewBuilder(sessionCfg, compute, datasets, owners, creds, logger)

	static := registry.NewStaticProvider()
	if path := cCtx.String(flagRegistryFile.Name); path != "" {
		static, err = registry.LoadStaticProvider(path)
		if err != nil {
			logger.Error("Failed to load registry file", "err", err)
			return err
		}
	}

	var ownerResolver interfaces.OwnerResolver = static
	if rpcAddress := cCtx.String(flags.RpcAddrFlag.Name); rpcAddress != "" {
		logger.Info("Connecting to Ethereum RPC", "address", rpcAddress)
		ethClient, err := ethclient.DialContext(ctx, rpcAddress)
		if err != nil {
			logger.Error("Failed to dial RPC", "err", err)
			return err
		}
		defer ethClient.Close()

		ownerResolver, err = registry.NewChainOwnerResolver(ethClient)
		if err != nil {
			return err
		}
	}

	handler := handlers.NewHandler(handlers.Stores{
		Compute:  compute,
		Datasets: datasets,
		Owners:   owners,
	}, builder, static, ownerResolver, logger)

	server, err := servers.New(flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name)), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

func newStore[K interfaces.SecretKey](namespace string, repo interfaces.SecretRepository, gateway interfaces.EncryptionGateway, cacheSize int, logger *slog.Logger) (*secrets.Store[K], error) {
	var policy secrets.CachePolicy[K]
	if cacheSize > 0 {
		lruPolicy, err := secrets.NewLRUPolicy[K](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("invalid existence cache size: %w", err)
		}
		policy = lruPolicy
	}
	return secrets.NewStore[K](namespace, repo, gateway, policy, logger), nil
}

// masterKey reads the local gateway key, either whole or from Shamir shares.
func masterKey(cCtx *cli.Context, logger *slog.Logger) ([]byte, error) {
	if keyHex := cCtx.String(flagMasterKey.Name); keyHex != "" {
		return hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
	}

	shareHexes := cCtx.StringSlice(flagMasterKeyShares.Name)
	if len(shareHexes) == 0 {
		return nil, errors.New("local gateway requires --master-key or --master-key-share")
	}
	shares := make([][]byte, 0, len(shareHexes))
	for i, shareHex := range shareHexes {
		share, err := hex.DecodeString(strings.TrimPrefix(shareHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid share %d: %w", i+1, err)
		}
		shares = append(shares, share)
	}

	start := time.Now()
	key, err := kms.CombineMasterKey(shares)
	if err != nil {
		return nil, err
	}
	logger.Info("Master key reconstructed", "shares", len(shares), "duration", time.Since(start))
	return key, nil
}
