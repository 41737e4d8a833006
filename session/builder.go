package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strconv"

	"github.com/google/uuid"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/ruteri/tee-secret-management-backend/metrics"
)

// ComputeSecretReader resolves application developer and requester secrets
// in one batch.
type ComputeSecretReader interface {
	GetMany(ctx context.Context, keys []interfaces.ComputeSecretHeader) ([]interfaces.Secret[interfaces.ComputeSecretHeader], error)
}

// OwnerSecretReader reads dataset keys and owner secrets.
type OwnerSecretReader interface {
	Get(ctx context.Context, key interfaces.OwnerSecretKey, decrypt bool) (*interfaces.Secret[interfaces.OwnerSecretKey], error)
}

// CredentialProvider issues task credentials.
type CredentialProvider interface {
	GetOrCreate(ctx context.Context, taskID string) (*interfaces.TaskCredential, error)
}

// Config holds the builder settings.
type Config struct {
	// PreComputeFingerprint and PostComputeFingerprint identify the trusted
	// pre-compute and post-compute enclaves. Requests cannot override them.
	PreComputeFingerprint  string
	PostComputeFingerprint string
	// MaxHeapSize bounds application enclave heaps. Zero means DefaultMaxHeapSize.
	MaxHeapSize int64
}

// Validate reports a missing or malformed stage fingerprint.
func (c Config) Validate() error {
	if !fingerprintRegex.MatchString(c.PreComputeFingerprint) {
		return fmt.Errorf("pre-compute fingerprint %q must be 64 hexadecimal characters", c.PreComputeFingerprint)
	}
	if !fingerprintRegex.MatchString(c.PostComputeFingerprint) {
		return fmt.Errorf("post-compute fingerprint %q must be 64 hexadecimal characters", c.PostComputeFingerprint)
	}
	return nil
}

// Builder assembles session descriptors. It holds no per-call state and is
// safe for concurrent use.
type Builder struct {
	cfg            Config
	computeSecrets ComputeSecretReader
	datasetSecrets OwnerSecretReader
	ownerSecrets   OwnerSecretReader
	credentials    CredentialProvider
	validator      EnclaveConfigValidator
	log            *slog.Logger
}

// NewBuilder returns a Builder reading secrets and credentials from the given stores.
func NewBuilder(cfg Config, computeSecrets ComputeSecretReader, datasetSecrets, ownerSecrets OwnerSecretReader, credentials CredentialProvider, log *slog.Logger) *Builder {
	return &Builder{
		cfg:            cfg,
		computeSecrets: computeSecrets,
		datasetSecrets: datasetSecrets,
		ownerSecrets:   ownerSecrets,
		credentials:    credentials,
		validator:      EnclaveConfigValidator{MaxHeapSize: cfg.MaxHeapSize},
		log:            log,
	}
}

// Build assembles the descriptor of one task session. It stops at the first
// unmet precondition and returns an *Error.
func (b *Builder) Build(ctx context.Context, req *interfaces.SessionRequest) (*SessionDescriptor, error) {
	descriptor, err := b.build(ctx, req)
	if err != nil {
		metrics.RecordSessionBuilt(string(err.Kind))
		b.log.Warn("Failed to build session", "err", err)
		return nil, err
	}
	metrics.RecordSessionBuilt("ok")
	return descriptor, nil
}

func (b *Builder) build(ctx context.Context, req *interfaces.SessionRequest) (*SessionDescriptor, *Error) {
	if req == nil {
		return nil, newError(KindNoSessionRequest, "session request is missing")
	}
	td := req.TaskDescription
	if td == nil {
		return nil, newError(KindNoTaskDescription, "task description of %s is missing", req.TaskID)
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = td.ChainTaskID
	}
	log := b.log.With(slog.String("taskID", taskID))

	var preCompute *PreComputeStage
	if td.ContainsDataset() || td.ContainsInputFiles() {
		stage, err := b.preComputeStage(ctx, req, td, taskID)
		if err != nil {
			return nil, err
		}
		preCompute = stage
	}

	appCompute, err := b.appComputeStage(ctx, log, td, taskID)
	if err != nil {
		return nil, err
	}

	postCompute, err := b.postComputeStage(ctx, req, td, taskID)
	if err != nil {
		return nil, err
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	log.Info("Session built",
		slog.String("sessionID", id),
		slog.Bool("preCompute", preCompute != nil))

	return &SessionDescriptor{
		ID:          id,
		TaskID:      taskID,
		PreCompute:  preCompute,
		AppCompute:  *appCompute,
		PostCompute: *postCompute,
	}, nil
}

func (b *Builder) preComputeStage(ctx context.Context, req *interfaces.SessionRequest, td *interfaces.TaskDescription, taskID string) (*PreComputeStage, *Error) {
	stage := &PreComputeStage{
		Fingerprint:   b.cfg.PreComputeFingerprint,
		TaskID:        taskID,
		InputFileURLs: td.InputFiles,
	}

	if td.ContainsDataset() {
		key, err := interfaces.NewDatasetSecretKey(td.DatasetAddress)
		if err != nil {
			return nil, wrapError(KindPreComputeDatasetSecretMissing, err, "invalid dataset address %s", td.DatasetAddress)
		}
		secret, err := b.datasetSecrets.Get(ctx, key, true)
		if err != nil {
			return nil, wrapError(KindSecureSessionGenerationFailed, err, "failed to read dataset secret")
		}
		if secret == nil {
			return nil, newError(KindPreComputeDatasetSecretMissing, "no secret for dataset %s", td.DatasetAddress)
		}
		stage.Dataset = &DatasetAccess{
			Key:      secret.Value,
			URL:      td.DatasetURL,
			Filename: td.DatasetName,
			Checksum: td.DatasetChecksum,
		}
	}

	sign, err := b.signTokens(ctx, req, taskID, preComputeSignKinds)
	if err != nil {
		return nil, err
	}
	stage.Sign = sign
	return stage, nil
}

func (b *Builder) appComputeStage(ctx context.Context, log *slog.Logger, td *interfaces.TaskDescription, taskID string) (*AppComputeStage, *Error) {
	if td.AppEnclaveConfig == nil {
		return nil, newError(KindAppComputeNoEnclaveConfig, "application %s has no enclave configuration", td.AppAddress)
	}
	if messages := b.validator.Validate(td.AppEnclaveConfig); len(messages) > 0 {
		return nil, &Error{
			Kind:     KindAppComputeInvalidEnclaveConfig,
			Detail:   "invalid enclave configuration of application " + td.AppAddress,
			Messages: messages,
		}
	}

	developerSecret, requesterSecrets, err := b.applicationSecrets(ctx, log, td)
	if err != nil {
		return nil, err
	}

	return &AppComputeStage{
		Fingerprint:      td.AppEnclaveConfig.Fingerprint,
		DeveloperSecret:  developerSecret,
		RequesterSecrets: requesterSecrets,
		Extra:            computeStageEnv(td, taskID),
	}, nil
}

// applicationSecrets resolves the developer secret and the requester secrets
// of the deal with a single batch read. Absent secrets are not returned.
func (b *Builder) applicationSecrets(ctx context.Context, log *slog.Logger, td *interfaces.TaskDescription) (*string, map[int]string, *Error) {
	var headers []interfaces.ComputeSecretHeader
	if td.AppAddress != "" {
		header, err := interfaces.NewApplicationDeveloperSecretHeader(td.AppAddress)
		if err != nil {
			return nil, nil, wrapError(KindSecureSessionGenerationFailed, err, "invalid application address %s", td.AppAddress)
		}
		headers = append(headers, header)
	}

	// Requester key to every deal index it is exported under.
	indicesByKey := make(map[string][]int)
	if len(td.RequesterSecrets) > 0 && td.Requester == "" {
		log.Warn("Ignoring requester secrets of a task without requester")
	} else {
		for indexString, key := range td.RequesterSecrets {
			index, err := strconv.Atoi(indexString)
			if err != nil || index <= 0 {
				log.Warn("Skipping requester secret with invalid index",
					slog.String("index", indexString),
					slog.String("key", key))
				continue
			}
			header, err := interfaces.NewRequesterSecretHeader(td.Requester, key)
			if err != nil {
				log.Warn("Skipping requester secret with invalid key",
					slog.String("index", indexString),
					"err", err)
				continue
			}
			if _, seen := indicesByKey[header.Key]; !seen {
				headers = append(headers, header)
			}
			indicesByKey[header.Key] = append(indicesByKey[header.Key], index)
		}
	}

	requesterSecrets := make(map[int]string)
	if len(headers) == 0 {
		return nil, requesterSecrets, nil
	}

	records, err := b.computeSecrets.GetMany(ctx, headers)
	if err != nil {
		return nil, nil, wrapError(KindSecureSessionGenerationFailed, err, "failed to read application secrets")
	}

	var developerSecret *string
	for _, record := range records {
		value := record.Value
		if record.Key.ObjectAddress != "" {
			developerSecret = &value
			continue
		}
		for _, index := range indicesByKey[record.Key.Key] {
			requesterSecrets[index] = value
		}
	}
	return developerSecret, requesterSecrets, nil
}

// computeStageEnv holds the non-confidential variables of the app-compute stage.
func computeStageEnv(td *interfaces.TaskDescription, taskID string) *EnvVars {
	env := NewEnvVars()
	env.Set(EnvTaskID, taskID)
	env.Set(EnvIexecIn, IexecInPath)
	env.Set(EnvIexecOut, IexecOutPath)
	if td.ContainsDataset() {
		env.Set(EnvDatasetAddress, td.DatasetAddress)
		env.Set(EnvDatasetFilename, td.DatasetName)
	}
	env.Set(EnvBotSize, strconv.Itoa(td.BotSize))
	env.Set(EnvBotFirstIndex, strconv.Itoa(td.BotFirstIndex))
	env.Set(EnvBotTaskIndex, strconv.Itoa(td.BotIndex))
	env.Set(EnvInputFilesNumber, strconv.Itoa(len(td.InputFiles)))
	for i, fileURL := range td.InputFiles {
		env.Set(EnvInputFileNamePrefix+strconv.Itoa(i+1), inputFileName(fileURL))
	}
	return env
}

// inputFileName is the last path segment of an input file URL.
func inputFileName(fileURL string) string {
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(fileURL)
}

func (b *Builder) postComputeStage(ctx context.Context, req *interfaces.SessionRequest, td *interfaces.TaskDescription, taskID string) (*PostComputeStage, *Error) {
	encryption, err := b.encryption(ctx, td)
	if err != nil {
		return nil, err
	}
	storage, err := b.storage(ctx, req, td)
	if err != nil {
		return nil, err
	}
	sign, err := b.signTokens(ctx, req, taskID, postComputeSignKinds)
	if err != nil {
		return nil, err
	}

	return &PostComputeStage{
		Fingerprint: b.cfg.PostComputeFingerprint,
		TaskID:      taskID,
		Encryption:  encryption,
		Storage:     storage,
		Sign:        sign,
	}, nil
}

func (b *Builder) encryption(ctx context.Context, td *interfaces.TaskDescription) (ResultEncryption, *Error) {
	if !td.ResultEncryption {
		return ResultEncryption{}, nil
	}

	key, err := interfaces.NewOwnerSecretKey(td.Beneficiary, interfaces.ResultEncryptionPublicKeyName)
	if err != nil {
		return ResultEncryption{}, wrapError(KindPostComputeEncryptionKeyMissing, err, "invalid beneficiary %q", td.Beneficiary)
	}
	secret, serr := b.ownerSecrets.Get(ctx, key, true)
	if serr != nil {
		return ResultEncryption{}, wrapError(KindSecureSessionGenerationFailed, serr, "failed to read beneficiary encryption key")
	}
	if secret == nil || secret.Value == "" {
		return ResultEncryption{}, newError(KindPostComputeEncryptionKeyMissing, "no result encryption key for beneficiary %s", td.Beneficiary)
	}
	return ResultEncryption{Enabled: true, PublicKey: secret.Value}, nil
}

func (b *Builder) storage(ctx context.Context, req *interfaces.SessionRequest, td *interfaces.TaskDescription) (ResultStorage, *Error) {
	if td.ContainsCallback() {
		return ResultStorage{Callback: true}, nil
	}

	provider := td.ResultStorageProvider
	if provider == "" {
		provider = StorageProviderIPFS
	}

	proxy := td.ResultStorageProxy
	if proxy == "" {
		value, err := b.ownerSecretValue(ctx, td.WorkerpoolOwner, interfaces.ResultProxyURLName)
		if err != nil {
			return ResultStorage{}, err
		}
		proxy = value
	}

	var token string
	if provider == StorageProviderDropbox {
		value, err := b.ownerSecretValue(ctx, td.Requester, interfaces.ResultDropboxTokenName)
		if err != nil {
			return ResultStorage{}, err
		}
		token = value
	} else {
		// A worker-owned token takes precedence over the one the requester
		// delegated.
		value, err := b.ownerSecretValue(ctx, req.WorkerAddress, interfaces.ResultIPFSTokenName)
		if err != nil {
			return ResultStorage{}, err
		}
		token = value
		if token == "" {
			value, err := b.ownerSecretValue(ctx, td.Requester, interfaces.ResultIPFSTokenName)
			if err != nil {
				return ResultStorage{}, err
			}
			token = value
		}
	}
	if token == "" {
		return ResultStorage{}, newError(KindPostComputeStorageTokenMissing, "no %s storage token for task", provider)
	}

	return ResultStorage{Provider: provider, Proxy: proxy, Token: token}, nil
}

// ownerSecretValue returns the decrypted owner secret, or "" when the owner
// is unknown or has no such secret.
func (b *Builder) ownerSecretValue(ctx context.Context, owner, name string) (string, *Error) {
	if owner == "" {
		return "", nil
	}
	key, err := interfaces.NewOwnerSecretKey(owner, name)
	if err != nil {
		return "", nil
	}
	secret, err := b.ownerSecrets.Get(ctx, key, true)
	if err != nil {
		return "", wrapError(KindSecureSessionGenerationFailed, err, "failed to read %s of %s", name, owner)
	}
	if secret == nil {
		return "", nil
	}
	return secret.Value, nil
}

// signTokens returns what a stage needs to sign its output with the task
// credential.
func (b *Builder) signTokens(ctx context.Context, req *interfaces.SessionRequest, taskID string, kinds signKinds) (SignTokens, *Error) {
	if req.WorkerAddress == "" {
		return SignTokens{}, newError(kinds.emptyWorkerAddress, "worker address is empty")
	}
	if req.EnclaveChallenge == "" {
		return SignTokens{}, newError(kinds.emptyEnclaveChallenge, "enclave challenge is empty")
	}

	credential, err := b.credentials.GetOrCreate(ctx, taskID)
	if err != nil || credential == nil {
		return SignTokens{}, wrapError(kinds.emptyTeeChallenge, err, "failed to get task credential")
	}
	if credential.PrivateKey == "" {
		return SignTokens{}, newError(kinds.emptyTeeCredentials, "task credential has no private key")
	}
	return SignTokens{WorkerAddress: req.WorkerAddress, PrivateKey: credential.PrivateKey}, nil
}
