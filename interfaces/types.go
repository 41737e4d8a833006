package interfaces

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// OnChainObjectKind is the kind of on-chain object a compute secret is
// attached to.
type OnChainObjectKind string

const (
	ObjectKindApplication OnChainObjectKind = "APPLICATION"
)

// SecretOwnerRole tells who owns a compute secret.
type SecretOwnerRole string

const (
	// RoleApplicationDeveloper secrets belong to an application and are
	// addressed by the application address.
	RoleApplicationDeveloper SecretOwnerRole = "APPLICATION_DEVELOPER"
	// RoleRequester secrets belong to a wallet and are addressed by it.
	RoleRequester SecretOwnerRole = "REQUESTER"
)

// ApplicationDeveloperSecretKey is the only key an application developer
// secret can be stored under.
const ApplicationDeveloperSecretKey = "1"

// Well-known owner secret names.
const (
	DatasetKeyName                = "IEXEC_DATASET_KEY"
	ResultEncryptionPublicKeyName = "IEXEC_RESULT_ENCRYPTION_PUBLIC_KEY"
	ResultDropboxTokenName        = "IEXEC_RESULT_DROPBOX_TOKEN"
	ResultIPFSTokenName           = "IEXEC_RESULT_IEXEC_IPFS_TOKEN"
	ResultProxyURLName            = "IEXEC_RESULT_IEXEC_RESULT_PROXY_URL"
)

var secretKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// SecretKey is implemented by every key a secret store can be addressed with.
type SecretKey interface {
	comparable

	// StorageKey returns the unique, lossless encoding of the key used by
	// repositories.
	StorageKey() string
}

// ComputeSecretHeader addresses an application developer or requester secret.
// The zero value is invalid; use NewComputeSecretHeader.
type ComputeSecretHeader struct {
	ObjectKind    OnChainObjectKind
	ObjectAddress string
	OwnerRole     SecretOwnerRole
	FixedOwner    string
	Key           string
}

// NewComputeSecretHeader validates and normalizes a compute secret header.
func NewComputeSecretHeader(kind OnChainObjectKind, objectAddress string, role SecretOwnerRole, fixedOwner string, key string) (ComputeSecretHeader, error) {
	if kind != ObjectKindApplication {
		return ComputeSecretHeader{}, fmt.Errorf("%w: unknown on-chain object kind %q", ErrInvalidSecretHeader, kind)
	}

	switch role {
	case RoleRequester:
		if objectAddress != "" {
			return ComputeSecretHeader{}, fmt.Errorf("%w: requester secret must not carry an on-chain object address", ErrInvalidSecretHeader)
		}
	case RoleApplicationDeveloper:
		if fixedOwner != "" {
			return ComputeSecretHeader{}, fmt.Errorf("%w: application developer secret must not carry a fixed owner", ErrInvalidSecretHeader)
		}
	default:
		return ComputeSecretHeader{}, fmt.Errorf("%w: unknown owner role %q", ErrInvalidSecretHeader, role)
	}

	if !secretKeyRegex.MatchString(key) {
		return ComputeSecretHeader{}, fmt.Errorf("%w: key %q must be 1 to 64 characters of [A-Za-z0-9_-]", ErrInvalidSecretHeader, key)
	}

	return ComputeSecretHeader{
		ObjectKind:    kind,
		ObjectAddress: strings.ToLower(objectAddress),
		OwnerRole:     role,
		FixedOwner:    strings.ToLower(fixedOwner),
		Key:           key,
	}, nil
}

// NewApplicationDeveloperSecretHeader returns the header of the developer
// secret of an application.
func NewApplicationDeveloperSecretHeader(appAddress string) (ComputeSecretHeader, error) {
	return NewComputeSecretHeader(ObjectKindApplication, appAddress, RoleApplicationDeveloper, "", ApplicationDeveloperSecretKey)
}

// NewRequesterSecretHeader returns the header of a requester secret.
func NewRequesterSecretHeader(requester string, key string) (ComputeSecretHeader, error) {
	return NewComputeSecretHeader(ObjectKindApplication, "", RoleRequester, requester, key)
}

// StorageKey implements SecretKey.
func (h ComputeSecretHeader) StorageKey() string {
	return joinKeyParts(string(h.ObjectKind), h.ObjectAddress, string(h.OwnerRole), h.FixedOwner, h.Key)
}

// String returns a readable form for logging.
func (h ComputeSecretHeader) String() string {
	return h.StorageKey()
}

// OwnerSecretKey addresses a dataset or owner secret.
type OwnerSecretKey struct {
	OwnerAddress string
	Name         string
}

// NewOwnerSecretKey validates and normalizes an owner secret key.
func NewOwnerSecretKey(ownerAddress string, name string) (OwnerSecretKey, error) {
	if ownerAddress == "" {
		return OwnerSecretKey{}, fmt.Errorf("%w: empty owner address", ErrInvalidSecretHeader)
	}
	if !secretKeyRegex.MatchString(name) {
		return OwnerSecretKey{}, fmt.Errorf("%w: name %q must be 1 to 64 characters of [A-Za-z0-9_-]", ErrInvalidSecretHeader, name)
	}
	return OwnerSecretKey{OwnerAddress: strings.ToLower(ownerAddress), Name: name}, nil
}

// NewDatasetSecretKey returns the key of the decryption key of a dataset.
func NewDatasetSecretKey(datasetAddress string) (OwnerSecretKey, error) {
	return NewOwnerSecretKey(datasetAddress, DatasetKeyName)
}

// StorageKey implements SecretKey.
func (k OwnerSecretKey) StorageKey() string {
	return joinKeyParts(k.OwnerAddress, k.Name)
}

func (k OwnerSecretKey) String() string {
	return k.StorageKey()
}

// TaskCredentialKey addresses the ephemeral credential of a task.
type TaskCredentialKey string

// NewTaskCredentialKey normalizes a task id into a credential key.
func NewTaskCredentialKey(taskID string) (TaskCredentialKey, error) {
	if taskID == "" {
		return "", fmt.Errorf("%w: empty task id", ErrInvalidSecretHeader)
	}
	return TaskCredentialKey(strings.ToLower(taskID)), nil
}

// StorageKey implements SecretKey.
func (k TaskCredentialKey) StorageKey() string {
	return string(k)
}

func joinKeyParts(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}

// Secret is a stored secret. Value holds the ciphertext unless Decrypted is
// set, in which case it holds the plaintext.
type Secret[K SecretKey] struct {
	Key       K
	Value     string
	Decrypted bool
}

// TaskCredential is the signing keypair issued to a task. PrivateKey is
// 0x-prefixed hex and Address the checksummed wallet address of the key.
type TaskCredential struct {
	TaskID     string `json:"task_id"`
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// EnclaveConfig describes the enclave an application runs in.
type EnclaveConfig struct {
	Provider    string `json:"provider"`
	Framework   string `json:"framework"`
	Version     string `json:"version"`
	Entrypoint  string `json:"entrypoint"`
	HeapSize    int64  `json:"heap_size"`
	Fingerprint string `json:"fingerprint"`
}

// TaskDescription holds the facts of a task pulled from its deal.
type TaskDescription struct {
	ChainTaskID      string         `json:"chain_task_id"`
	AppAddress       string         `json:"app_address"`
	AppEnclaveConfig *EnclaveConfig `json:"app_enclave_config,omitempty"`

	DatasetAddress  string `json:"dataset_address,omitempty"`
	DatasetURL      string `json:"dataset_url,omitempty"`
	DatasetName     string `json:"dataset_name,omitempty"`
	DatasetChecksum string `json:"dataset_checksum,omitempty"`

	InputFiles []string `json:"input_files,omitempty"`

	// Worker is the wallet the task was assigned to. Only it may open a
	// session for the task.
	Worker          string `json:"worker"`
	Requester       string `json:"requester"`
	Beneficiary     string `json:"beneficiary"`
	WorkerpoolOwner string `json:"workerpool_owner"`

	Callback              string `json:"callback,omitempty"`
	ResultStorageProvider string `json:"result_storage_provider,omitempty"`
	ResultStorageProxy    string `json:"result_storage_proxy,omitempty"`
	ResultEncryption      bool   `json:"result_encryption"`

	// RequesterSecrets maps a 1-based index, as found in the deal
	// parameters, to the key of a requester secret.
	RequesterSecrets map[string]string `json:"requester_secrets,omitempty"`

	BotSize       int `json:"bot_size"`
	BotFirstIndex int `json:"bot_first_index"`
	BotIndex      int `json:"bot_index"`
}

const emptyAddress = "0x0000000000000000000000000000000000000000"

// ContainsDataset reports whether the task uses a dataset.
func (t *TaskDescription) ContainsDataset() bool {
	return t.DatasetAddress != "" && !strings.EqualFold(t.DatasetAddress, emptyAddress)
}

// ContainsInputFiles reports whether the task downloads input files.
func (t *TaskDescription) ContainsInputFiles() bool {
	return len(t.InputFiles) > 0
}

// ContainsCallback reports whether results go to an on-chain callback
// instead of an external storage.
func (t *TaskDescription) ContainsCallback() bool {
	return t.Callback != "" && !strings.EqualFold(t.Callback, emptyAddress)
}

// SessionRequest is what a worker asks for when starting a TEE task.
type SessionRequest struct {
	SessionID        string           `json:"session_id"`
	TaskID           string           `json:"task_id"`
	WorkerAddress    string           `json:"worker_address"`
	EnclaveChallenge string           `json:"enclave_challenge"`
	TaskDescription  *TaskDescription `json:"task_description,omitempty"`
}
