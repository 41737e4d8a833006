package session

// Stage names.
const (
	StagePreCompute  = "pre-compute"
	StageAppCompute  = "app-compute"
	StagePostCompute = "post-compute"
)

// Enclave mount points shared by the three stages.
const (
	IexecInPath  = "/iexec_in"
	IexecOutPath = "/iexec_out"
)

// Result storage providers.
const (
	StorageProviderIPFS    = "ipfs"
	StorageProviderDropbox = "dropbox"
)

// Variables of the pre-compute stage.
const (
	EnvTaskID             = "IEXEC_TASK_ID"
	EnvPreComputeOut      = "IEXEC_PRE_COMPUTE_OUT"
	EnvIsDatasetRequired  = "IS_DATASET_REQUIRED"
	EnvDatasetKey         = "IEXEC_DATASET_KEY"
	EnvDatasetURL         = "IEXEC_DATASET_URL"
	EnvDatasetFilename    = "IEXEC_DATASET_FILENAME"
	EnvDatasetChecksum    = "IEXEC_DATASET_CHECKSUM"
	EnvInputFilesNumber   = "IEXEC_INPUT_FILES_NUMBER"
	EnvInputFileURLPrefix = "IEXEC_INPUT_FILE_URL_"
)

// Variables of the app-compute stage.
const (
	EnvAppDeveloperSecret        = "IEXEC_APP_DEVELOPER_SECRET"
	EnvRequesterSecretPrefix     = "IEXEC_REQUESTER_SECRET_"
	EnvIexecIn                   = "IEXEC_IN"
	EnvIexecOut                  = "IEXEC_OUT"
	EnvDatasetAddress            = "IEXEC_DATASET_ADDRESS"
	EnvBotSize                   = "IEXEC_BOT_SIZE"
	EnvBotFirstIndex             = "IEXEC_BOT_FIRST_INDEX"
	EnvBotTaskIndex              = "IEXEC_BOT_TASK_INDEX"
	EnvInputFileNamePrefix       = "IEXEC_INPUT_FILE_NAME_"
	envAppDeveloperSecretIndexed = EnvAppDeveloperSecret + "_1"
)

// Variables of the post-compute stage.
const (
	EnvResultTaskID              = "RESULT_TASK_ID"
	EnvResultEncryption          = "RESULT_ENCRYPTION"
	EnvResultEncryptionPublicKey = "RESULT_ENCRYPTION_PUBLIC_KEY"
	EnvResultStorageCallback     = "RESULT_STORAGE_CALLBACK"
	EnvResultStorageProvider     = "RESULT_STORAGE_PROVIDER"
	EnvResultStorageProxy        = "RESULT_STORAGE_PROXY"
	EnvResultStorageToken        = "RESULT_STORAGE_TOKEN"
)

// Suffixes of the sign token variables, prefixed by PRE_COMPUTE or POST_COMPUTE.
const (
	envSignWorkerAddressSuffix = "_SIGN_WORKER_ADDRESS"
	envSignPrivateKeySuffix    = "_SIGN_TEE_CHALLENGE_PRIVATE_KEY"
)

// Prefixes of the sign token variables.
const (
	SignPrefixPreCompute  = "PRE_COMPUTE"
	SignPrefixPostCompute = "POST_COMPUTE"
)

// SignWorkerAddressVar returns the worker address variable of a stage prefix.
func SignWorkerAddressVar(prefix string) string { return prefix + envSignWorkerAddressSuffix }

// SignPrivateKeyVar returns the private key variable of a stage prefix.
func SignPrivateKeyVar(prefix string) string { return prefix + envSignPrivateKeySuffix }
