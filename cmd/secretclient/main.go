// Package main (cmd/secretclient) pushes secrets to and requests sessions
// from the secret management server, signing every write with a wallet key.
package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-secret-management-backend/api/handlers"
	"github.com/ruteri/tee-secret-management-backend/cmd/flags"
	"github.com/urfave/cli/v2"
)

var flagPrivateKey = &cli.StringFlag{
	Name:    "private-key",
	Usage:   "hex-encoded secp256k1 key requests are signed with",
	EnvVars: []string{"SMS_PRIVATE_KEY"},
}
var flagValue = &cli.StringFlag{
	Name:  "value",
	Usage: "secret value, read from --value-file when empty",
}
var flagValueFile = &cli.StringFlag{
	Name:  "value-file",
	Usage: "file holding the secret value",
}

func main() {
	if err := flags.LoadEnvFileFromEnvironment(); err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name:  "secret-client",
		Usage: "Talk to the secret management server",
		Flags: []cli.Flag{flags.ServerAddrFlag, flagPrivateKey},
		Commands: []*cli.Command{
			{
				Name:      "push-app-secret",
				Usage:     "Store the developer secret of an application",
				ArgsUsage: "<app address>",
				Flags:     []cli.Flag{flagValue, flagValueFile},
				Action: func(cCtx *cli.Context) error {
					return pushWith(cCtx, func(c *handlers.Client, value string) error {
						return c.PushAppSecret(cCtx.Context, cCtx.Args().First(), value)
					})
				},
			},
			{
				Name:      "push-requester-secret",
				Usage:     "Store a secret of the signing wallet",
				ArgsUsage: "<key>",
				Flags:     []cli.Flag{flagValue, flagValueFile},
				Action: func(cCtx *cli.Context) error {
					return pushWith(cCtx, func(c *handlers.Client, value string) error {
						return c.PushRequesterSecret(cCtx.Context, cCtx.Args().First(), value)
					})
				},
			},
			{
				Name:      "push-dataset-secret",
				Usage:     "Store the decryption key of a dataset",
				ArgsUsage: "<dataset address>",
				Flags:     []cli.Flag{flagValue, flagValueFile},
				Action: func(cCtx *cli.Context) error {
					return pushWith(cCtx, func(c *handlers.Client, value string) error {
						return c.PushDatasetSecret(cCtx.Context, cCtx.Args().First(), value)
					})
				},
			},
			{
				Name:      "push-owner-secret",
				Usage:     "Store a named secret of the signing wallet, such as IEXEC_RESULT_DROPBOX_TOKEN",
				ArgsUsage: "<name>",
				Flags:     []cli.Flag{flagValue, flagValueFile},
				Action: func(cCtx *cli.Context) error {
					return pushWith(cCtx, func(c *handlers.Client, value string) error {
						return c.PushOwnerSecret(cCtx.Context, cCtx.Args().First(), value)
					})
				},
			},
			{
				Name:      "exists",
				Usage:     "Check whether a secret path holds a secret",
				ArgsUsage: "<path>",
				Action: func(cCtx *cli.Context) error {
					client, err := newClient(cCtx, false)
					if err != nil {
						return err
					}
					exists, err := client.SecretExists(cCtx.Context, cCtx.Args().First())
					if err != nil {
						return err
					}
					fmt.Println(exists)
					return nil
				},
			},
			{
				Name:      "session",
				Usage:     "Request the session of a task as the signing worker",
				ArgsUsage: "<task id> <enclave challenge>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 2 {
						return errors.New("expected a task id and an enclave challenge")
					}
					client, err := newClient(cCtx, true)
					if err != nil {
						return err
					}
					descriptor, err := client.RequestSession(cCtx.Context, cCtx.Args().Get(0), cCtx.Args().Get(1))
					if err != nil {
						return err
					}
					out, err := json.MarshalIndent(descriptor, "", "  ")
					if err != nil {
						return err
					}
					fmt.Println(string(out))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func pushWith(cCtx *cli.Context, push func(*handlers.Client, string) error) error {
	if cCtx.NArg() != 1 {
		return errors.New("expected exactly one argument")
	}
	value := cCtx.String(flagValue.Name)
	if value == "" && cCtx.String(flagValueFile.Name) != "" {
		data, err := os.ReadFile(cCtx.String(flagValueFile.Name))
		if err != nil {
			return err
		}
		value = string(data)
	}
	if value == "" {
		return errors.New("--value or --value-file is required")
	}

	client, err := newClient(cCtx, true)
	if err != nil {
		return err
	}
	if err := push(client, value); err != nil {
		return err
	}
	fmt.Printf("stored as %s\n", client.Address())
	return nil
}

func newClient(cCtx *cli.Context, needKey bool) (*handlers.Client, error) {
	var key *ecdsa.PrivateKey
	keyHex := strings.TrimPrefix(cCtx.String(flagPrivateKey.Name), "0x")
	switch {
	case keyHex != "":
		var err error
		key, err = crypto.HexToECDSA(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
	case needKey:
		return nil, errors.New("--private-key is required")
	default:
		// HEAD requests are unsigned; any key will do.
		var err error
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
	}
	return handlers.NewClient(cCtx.String(flags.ServerAddrFlag.Name), key, &http.Client{Timeout: 30 * time.Second}), nil
}
