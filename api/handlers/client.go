package handlers

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-secret-management-backend/api"
	"github.com/ruteri/tee-secret-management-backend/cryptoutils"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/ruteri/tee-secret-management-backend/session"
)

// ErrSecretConflict is returned by the client when the secret already exists.
var ErrSecretConflict = fmt.Errorf("%w (server answered 409)", interfaces.ErrSecretExists)

// Paths of the secret endpoints.
func AppSecretPath(app string) string {
	return "/apps/" + strings.ToLower(app) + "/secrets/" + interfaces.ApplicationDeveloperSecretKey
}

func RequesterSecretPath(requester, key string) string {
	return "/requesters/" + strings.ToLower(requester) + "/secrets/" + key
}

func DatasetSecretPath(dataset string) string {
	return "/datasets/" + strings.ToLower(dataset) + "/secret"
}

func OwnerSecretPath(owner, name string) string {
	return "/owners/" + strings.ToLower(owner) + "/secrets/" + name
}

const SessionsPath = "/tee/sessions"

// Client signs and sends requests to the secret management service with
// one wallet key.
type Client struct {
	baseURL string
	key     *ecdsa.PrivateKey
	http    *http.Client
}

// NewClient creates a client for the service at baseURL. key signs every
// write and is the identity the server authorizes.
func NewClient(baseURL string, key *ecdsa.PrivateKey, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), key: key, http: httpClient}
}

// Address is the wallet address requests are signed with.
func (c *Client) Address() string {
	return crypto.PubkeyToAddress(c.key.PublicKey).Hex()
}

// PushAppSecret stores the developer secret of an application the client owns.
func (c *Client) PushAppSecret(ctx context.Context, app, value string) error {
	return c.pushSecret(ctx, AppSecretPath(app), value)
}

// PushRequesterSecret stores a secret of the client's wallet.
func (c *Client) PushRequesterSecret(ctx context.Context, key, value string) error {
	return c.pushSecret(ctx, RequesterSecretPath(c.Address(), key), value)
}

// PushDatasetSecret stores the key of a dataset the client owns.
func (c *Client) PushDatasetSecret(ctx context.Context, dataset, value string) error {
	return c.pushSecret(ctx, DatasetSecretPath(dataset), value)
}

// PushOwnerSecret stores a named secret of the client's wallet.
func (c *Client) PushOwnerSecret(ctx context.Context, name, value string) error {
	return c.pushSecret(ctx, OwnerSecretPath(c.Address(), name), value)
}

// SecretExists sends a HEAD request to one of the secret paths.
func (c *Client) SecretExists(ctx context.Context, path string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("could not initialize request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("could not check secret: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// RequestSession asks for the session of a task, acting as the worker.
func (c *Client) RequestSession(ctx context.Context, taskID, enclaveChallenge string) (*session.RenderedSession, error) {
	body, err := json.Marshal(api.SessionRequest{
		TaskID:           taskID,
		WorkerAddress:    c.Address(),
		EnclaveChallenge: enclaveChallenge,
	})
	if err != nil {
		return nil, err
	}

	resp, respBody, err := c.signedPost(ctx, SessionsPath, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, &session.Error{Kind: session.ErrorKind(errResp.Error), Detail: errResp.Detail, Messages: errResp.Messages}
		}
		return nil, fmt.Errorf("session request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var descriptor session.RenderedSession
	if err := json.Unmarshal(respBody, &descriptor); err != nil {
		return nil, fmt.Errorf("could not parse session response: %w", err)
	}
	return &descriptor, nil
}

func (c *Client) pushSecret(ctx context.Context, path, value string) error {
	resp, body, err := c.signedPost(ctx, path, []byte(value))
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrSecretConflict
	default:
		return fmt.Errorf("push to %s failed with status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (c *Client) signedPost(ctx context.Context, path string, body []byte) (*http.Response, []byte, error) {
	signature, err := cryptoutils.SignRequestHash(c.key, cryptoutils.RequestHash(http.MethodPost, path, body))
	if err != nil {
		return nil, nil, fmt.Errorf("could not sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set(api.SignatureHeader, signature)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read response: %w", err)
	}
	return resp, respBody, nil
}
