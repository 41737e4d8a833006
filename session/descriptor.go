package session

import (
	"encoding/json"
	"sort"
	"strconv"
)

// SignTokens let a stage sign its output with the task credential.
type SignTokens struct {
	WorkerAddress string
	PrivateKey    string
}

func (s SignTokens) render(env *EnvVars, taskID, prefix string) {
	env.Set(EnvTaskID, taskID)
	env.Set(SignWorkerAddressVar(prefix), s.WorkerAddress)
	env.Set(SignPrivateKeyVar(prefix), s.PrivateKey)
}

// DatasetAccess is what pre-compute needs to fetch and decrypt a dataset.
type DatasetAccess struct {
	Key      string
	URL      string
	Filename string
	Checksum string
}

// PreComputeStage downloads the dataset and input files of a task.
type PreComputeStage struct {
	Fingerprint string
	TaskID      string
	// Dataset is nil when the task only has input files.
	Dataset       *DatasetAccess
	InputFileURLs []string
	Sign          SignTokens
	Extra         *EnvVars
}

func (s PreComputeStage) Name() string { return StagePreCompute }

// Env renders the stage as environment variables.
func (s PreComputeStage) Env() *EnvVars {
	env := NewEnvVars()
	env.Set(EnvTaskID, s.TaskID)
	env.Set(EnvPreComputeOut, IexecInPath)
	env.SetBool(EnvIsDatasetRequired, s.Dataset != nil)
	if s.Dataset != nil {
		env.Set(EnvDatasetKey, s.Dataset.Key)
		env.Set(EnvDatasetURL, s.Dataset.URL)
		env.Set(EnvDatasetFilename, s.Dataset.Filename)
		env.Set(EnvDatasetChecksum, s.Dataset.Checksum)
	}
	env.Set(EnvInputFilesNumber, strconv.Itoa(len(s.InputFileURLs)))
	for i, fileURL := range s.InputFileURLs {
		env.Set(EnvInputFileURLPrefix+strconv.Itoa(i+1), fileURL)
	}
	s.Sign.render(env, s.TaskID, SignPrefixPreCompute)
	env.Merge(s.Extra)
	return env
}

// AppComputeStage runs the application itself.
type AppComputeStage struct {
	Fingerprint string
	// DeveloperSecret is nil when the application has none.
	DeveloperSecret *string
	// RequesterSecrets maps a deal index to the secret exported under it.
	RequesterSecrets map[int]string
	// Extra holds the trusted task variables: paths, bag of tasks, dataset
	// and input file names.
	Extra *EnvVars
}

func (s AppComputeStage) Name() string { return StageAppCompute }

// Env renders the stage as environment variables. Requester secrets are
// ordered by index.
func (s AppComputeStage) Env() *EnvVars {
	env := NewEnvVars()
	if s.DeveloperSecret != nil {
		env.Set(EnvAppDeveloperSecret, *s.DeveloperSecret)
		env.Set(envAppDeveloperSecretIndexed, *s.DeveloperSecret)
	}
	indices := make([]int, 0, len(s.RequesterSecrets))
	for index := range s.RequesterSecrets {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	for _, index := range indices {
		env.Set(EnvRequesterSecretPrefix+strconv.Itoa(index), s.RequesterSecrets[index])
	}
	env.Merge(s.Extra)
	return env
}

// ResultEncryption tells post-compute whether and with which key to
// encrypt results.
type ResultEncryption struct {
	Enabled   bool
	PublicKey string
}

// ResultStorage tells post-compute where results go.
type ResultStorage struct {
	// Callback is set when results go on chain. The other fields are then empty.
	Callback bool
	Provider string
	Proxy    string
	Token    string
}

// PostComputeStage encrypts and uploads the results of a task.
type PostComputeStage struct {
	Fingerprint string
	TaskID      string
	Encryption  ResultEncryption
	Storage     ResultStorage
	Sign        SignTokens
	Extra       *EnvVars
}

func (s PostComputeStage) Name() string { return StagePostCompute }

// Env renders the stage as environment variables.
func (s PostComputeStage) Env() *EnvVars {
	env := NewEnvVars()
	env.Set(EnvResultTaskID, s.TaskID)
	env.SetYesNo(EnvResultEncryption, s.Encryption.Enabled)
	env.Set(EnvResultEncryptionPublicKey, s.Encryption.PublicKey)
	env.SetYesNo(EnvResultStorageCallback, s.Storage.Callback)
	env.Set(EnvResultStorageProvider, s.Storage.Provider)
	env.Set(EnvResultStorageProxy, s.Storage.Proxy)
	env.Set(EnvResultStorageToken, s.Storage.Token)
	s.Sign.render(env, s.TaskID, SignPrefixPostCompute)
	env.Merge(s.Extra)
	return env
}

// SessionDescriptor is the three-stage configuration handed to the enclave
// orchestration system. PreCompute is nil when the task has neither a
// dataset nor input files. It marshals as a RenderedSession.
type SessionDescriptor struct {
	ID          string
	TaskID      string
	PreCompute  *PreComputeStage
	AppCompute  AppComputeStage
	PostCompute PostComputeStage
}

// EnclaveStage is one stage reduced to what its enclave is launched with.
type EnclaveStage struct {
	Name        string   `json:"name"`
	Fingerprint string   `json:"fingerprint"`
	Env         *EnvVars `json:"env"`
}

// RenderedSession is the wire form of a SessionDescriptor.
type RenderedSession struct {
	ID          string        `json:"id"`
	TaskID      string        `json:"task_id"`
	PreCompute  *EnclaveStage `json:"pre_compute,omitempty"`
	AppCompute  EnclaveStage  `json:"app_compute"`
	PostCompute EnclaveStage  `json:"post_compute"`
}

// Render turns every stage into its environment variables.
func (d SessionDescriptor) Render() RenderedSession {
	rendered := RenderedSession{
		ID:          d.ID,
		TaskID:      d.TaskID,
		AppCompute:  EnclaveStage{Name: d.AppCompute.Name(), Fingerprint: d.AppCompute.Fingerprint, Env: d.AppCompute.Env()},
		PostCompute: EnclaveStage{Name: d.PostCompute.Name(), Fingerprint: d.PostCompute.Fingerprint, Env: d.PostCompute.Env()},
	}
	if d.PreCompute != nil {
		rendered.PreCompute = &EnclaveStage{Name: d.PreCompute.Name(), Fingerprint: d.PreCompute.Fingerprint, Env: d.PreCompute.Env()}
	}
	return rendered
}

// MarshalJSON encodes the rendered form.
func (d SessionDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Render())
}
