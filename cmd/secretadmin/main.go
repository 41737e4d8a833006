package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-secret-management-backend/cmd/flags"
	"github.com/ruteri/tee-secret-management-backend/kms"
	"github.com/ruteri/tee-secret-management-backend/storage"
	"github.com/urfave/cli/v2"
)

var flagMasterKey = &cli.StringFlag{
	Name:    "master-key",
	Usage:   "hex-encoded master key, read from stdin when empty",
	EnvVars: []string{"SMS_MASTER_KEY"},
}
var flagKeyLength = &cli.IntFlag{
	Name:  "length",
	Value: kms.MinMasterKeyLength,
	Usage: "master key length in bytes",
}
var flagShares = &cli.IntFlag{
	Name:  "shares",
	Value: 3,
	Usage: "number of shares to produce",
}
var flagThreshold = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
	Usage: "number of shares needed to reconstruct the key",
}
var flagShare = &cli.StringSliceFlag{
	Name:  "share",
	Usage: "hex-encoded share, repeat up to the threshold",
}
var flagRepository = &cli.StringFlag{
	Name:    "repository",
	Usage:   "postgres:// URI of the repository to migrate",
	EnvVars: []string{"SMS_REPOSITORY"},
}

func main() {
	if err := flags.LoadEnvFileFromEnvironment(); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "secret-admin",
		Usage: "Operate the secret management server",
		Flags: flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:  "generate-master-key",
				Usage: "Print a random master key",
				Flags: []cli.Flag{flagKeyLength},
				Action: func(cCtx *cli.Context) error {
					length := cCtx.Int(flagKeyLength.Name)
					if length < kms.MinMasterKeyLength {
						return fmt.Errorf("master key must be at least %d bytes", kms.MinMasterKeyLength)
					}
					key := make([]byte, length)
					if _, err := rand.Read(key); err != nil {
						return fmt.Errorf("failed to generate master key: %w", err)
					}
					fmt.Println(hex.EncodeToString(key))
					return nil
				},
			},
			{
				Name:  "split-master-key",
				Usage: "Split a master key into Shamir shares, one per line",
				Flags: []cli.Flag{flagMasterKey, flagShares, flagThreshold},
				Action: func(cCtx *cli.Context) error {
					keyHex := cCtx.String(flagMasterKey.Name)
					if keyHex == "" {
						line, err := bufio.NewReader(os.Stdin).ReadString('\n')
						if err != nil && line == "" {
							return fmt.Errorf("failed to read master key from stdin: %w", err)
						}
						keyHex = strings.TrimSpace(line)
					}
					key, err := decodeHex(keyHex)
					if err != nil {
						return fmt.Errorf("invalid master key: %w", err)
					}

					shares, err := kms.SplitMasterKey(key, cCtx.Int(flagShares.Name), cCtx.Int(flagThreshold.Name))
					if err != nil {
						return err
					}
					for _, share := range shares {
						fmt.Println(hex.EncodeToString(share))
					}
					return nil
				},
			},
			{
				Name:  "combine-master-key",
				Usage: "Reconstruct a master key from shares",
				Flags: []cli.Flag{flagShare},
				Action: func(cCtx *cli.Context) error {
					shareHexes := cCtx.StringSlice(flagShare.Name)
					if len(shareHexes) == 0 {
						return errors.New("at least one --share is required")
					}
					shares := make([][]byte, 0, len(shareHexes))
					for i, shareHex := range shareHexes {
						share, err := decodeHex(shareHex)
						if err != nil {
							return fmt.Errorf("invalid share %d: %w", i+1, err)
						}
						shares = append(shares, share)
					}

					key, err := kms.CombineMasterKey(shares)
					if err != nil {
						return err
					}
					fmt.Println(hex.EncodeToString(key))
					return nil
				},
			},
			{
				Name:  "generate-signer",
				Usage: "Print a fresh secp256k1 private key and its address",
				Action: func(cCtx *cli.Context) error {
					key, err := crypto.GenerateKey()
					if err != nil {
						return fmt.Errorf("failed to generate key: %w", err)
					}
					fmt.Printf("address:     %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
					fmt.Printf("private key: %s\n", hex.EncodeToString(crypto.FromECDSA(key)))
					return nil
				},
			},
			{
				Name:  "migrate",
				Usage: "Create the PostgreSQL schema",
				Flags: []cli.Flag{flagRepository},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					uri := cCtx.String(flagRepository.Name)
					if uri == "" {
						return errors.New("--repository is required")
					}

					repo, err := storage.NewRepository(cCtx.Context, storage.RepositoryConfig{URI: uri, Migrate: true}, logger)
					if err != nil {
						logger.Error("Migration failed", "err", err)
						return err
					}
					defer repo.Close()

					logger.Info("Schema is up to date", "repository", repo.Name())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
}
