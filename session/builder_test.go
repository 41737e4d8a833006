package session

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/tee-secret-management-backend/credentials"
	"github.com/ruteri/tee-secret-management-backend/interfaces"
	"github.com/ruteri/tee-secret-management-backend/kms"
	"github.com/ruteri/tee-secret-management-backend/secrets"
	"github.com/ruteri/tee-secret-management-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testTaskID          = "0xtask"
	testAppAddress      = "0xapp"
	testDatasetAddress  = "0xdataset"
	testRequester       = "0xrequester"
	testBeneficiary     = "0xbeneficiary"
	testWorker          = "0xworker"
	testWorkerpoolOwner = "0xpoolowner"
	testChallenge       = "0xchallenge"
)

var (
	testAppFingerprint  = strings.Repeat("ab", 32)
	testPreFingerprint  = strings.Repeat("01", 32)
	testPostFingerprint = strings.Repeat("02", 32)
)

type fixture struct {
	compute  *secrets.ComputeSecretStore
	datasets *secrets.OwnerSecretStore
	owners   *secrets.OwnerSecretStore
	creds    *credentials.Service
	builder  *Builder
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	log := testLogger()
	masterKey := make([]byte, 32)
	_, err := rand.Read(masterKey)
	require.NoError(t, err)
	gateway, err := kms.NewLocalGateway(masterKey)
	require.NoError(t, err)
	repo := storage.NewMemoryRepository()

	f := &fixture{
		compute:  secrets.NewStore[interfaces.ComputeSecretHeader](secrets.NamespaceCompute, repo, gateway, nil, log),
		datasets: secrets.NewStore[interfaces.OwnerSecretKey](secrets.NamespaceDataset, repo, gateway, nil, log),
		owners:   secrets.NewStore[interfaces.OwnerSecretKey](secrets.NamespaceOwner, repo, gateway, nil, log),
		creds: credentials.NewService(
			secrets.NewStore[interfaces.TaskCredentialKey](secrets.NamespaceTaskCredential, repo, gateway, nil, log), log),
	}
	f.builder = NewBuilder(Config{
		PreComputeFingerprint:  testPreFingerprint,
		PostComputeFingerprint: testPostFingerprint,
	}, f.compute, f.datasets, f.owners, f.creds, log)
	return f
}

func (f *fixture) putOwnerSecret(t *testing.T, owner, name, value string) {
	key, err := interfaces.NewOwnerSecretKey(owner, name)
	require.NoError(t, err)
	added, err := f.owners.PutIfAbsent(context.Background(), key, value)
	require.NoError(t, err)
	require.True(t, added)
}

func (f *fixture) putDatasetSecret(t *testing.T, dataset, value string) {
	key, err := interfaces.NewDatasetSecretKey(dataset)
	require.NoError(t, err)
	added, err := f.datasets.PutIfAbsent(context.Background(), key, value)
	require.NoError(t, err)
	require.True(t, added)
}

func (f *fixture) putComputeSecret(t *testing.T, header interfaces.ComputeSecretHeader, value string) {
	added, err := f.compute.PutIfAbsent(context.Background(), header, value)
	require.NoError(t, err)
	require.True(t, added)
}

// testTask is a task without dataset, input files or result encryption,
// uploading to ipfs with the requester token.
func testTask() *interfaces.TaskDescription {
	return &interfaces.TaskDescription{
		ChainTaskID: testTaskID,
		AppAddress:  testAppAddress,
		AppEnclaveConfig: &interfaces.EnclaveConfig{
			Provider:    "SCONE",
			Framework:   "SCONE",
			Version:     "v5",
			Entrypoint:  "python /app/app.py",
			HeapSize:    1 << 30,
			Fingerprint: testAppFingerprint,
		},
		Requester:       testRequester,
		Beneficiary:     testBeneficiary,
		WorkerpoolOwner: testWorkerpoolOwner,
		BotSize:         1,
	}
}

func testRequest(td *interfaces.TaskDescription) *interfaces.SessionRequest {
	return &interfaces.SessionRequest{
		SessionID:        "session-1",
		TaskID:           testTaskID,
		WorkerAddress:    testWorker,
		EnclaveChallenge: testChallenge,
		TaskDescription:  td,
	}
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), "unexpected error: %v", err)
	assert.True(t, errors.Is(err, &Error{Kind: kind}))
}

func envValue(t *testing.T, env *EnvVars, name string) string {
	t.Helper()
	value, ok := env.Get(name)
	require.True(t, ok, "%s is not set", name)
	return value
}

func TestBuild_WithoutDatasetOrInputFiles(t *testing.T) {
	f := newFixture(t)
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "requester-ipfs-token")

	descriptor, err := f.builder.Build(context.Background(), testRequest(testTask()))
	require.NoError(t, err)

	assert.Nil(t, descriptor.PreCompute)
	assert.Equal(t, "session-1", descriptor.ID)
	assert.Equal(t, testTaskID, descriptor.TaskID)

	app := descriptor.AppCompute
	assert.Nil(t, app.DeveloperSecret)
	assert.Empty(t, app.RequesterSecrets)
	assert.Equal(t, StageAppCompute, app.Name())
	assert.Equal(t, testAppFingerprint, app.Fingerprint)
	assert.Equal(t, testTaskID, envValue(t, app.Env(), EnvTaskID))
	assert.Equal(t, IexecInPath, envValue(t, app.Env(), EnvIexecIn))
	assert.Equal(t, IexecOutPath, envValue(t, app.Env(), EnvIexecOut))
	assert.Equal(t, "0", envValue(t, app.Env(), EnvInputFilesNumber))
	assert.Equal(t, "1", envValue(t, app.Env(), EnvBotSize))
	_, ok := app.Env().Get(EnvDatasetAddress)
	assert.False(t, ok)
	_, ok = app.Env().Get(EnvAppDeveloperSecret)
	assert.False(t, ok, "absent secrets are not exported")

	post := descriptor.PostCompute
	assert.Equal(t, ResultEncryption{}, post.Encryption)
	assert.Equal(t, ResultStorage{Provider: StorageProviderIPFS, Token: "requester-ipfs-token"}, post.Storage)
	assert.Equal(t, testWorker, post.Sign.WorkerAddress)
	assert.Equal(t, StagePostCompute, post.Name())
	assert.Equal(t, testPostFingerprint, post.Fingerprint)
	assert.Equal(t, testTaskID, envValue(t, post.Env(), EnvResultTaskID))
	assert.Equal(t, "no", envValue(t, post.Env(), EnvResultEncryption))
	assert.Equal(t, "", envValue(t, post.Env(), EnvResultEncryptionPublicKey))
	assert.Equal(t, "no", envValue(t, post.Env(), EnvResultStorageCallback))
	assert.Equal(t, StorageProviderIPFS, envValue(t, post.Env(), EnvResultStorageProvider))
	assert.Equal(t, "requester-ipfs-token", envValue(t, post.Env(), EnvResultStorageToken))
	assert.Equal(t, testWorker, envValue(t, post.Env(), SignWorkerAddressVar(SignPrefixPostCompute)))

	credential, err := f.creds.Get(context.Background(), testTaskID)
	require.NoError(t, err)
	require.NotNil(t, credential)
	assert.Equal(t, credential.PrivateKey, envValue(t, post.Env(), SignPrivateKeyVar(SignPrefixPostCompute)))
}

func TestBuild_WithDataset(t *testing.T) {
	f := newFixture(t)
	f.putDatasetSecret(t, testDatasetAddress, "dataset-key")
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "token")

	td := testTask()
	td.DatasetAddress = testDatasetAddress
	td.DatasetURL = "https://datasets.example/d.zip"
	td.DatasetName = "d.zip"
	td.DatasetChecksum = "0xchecksum"
	td.InputFiles = []string{"https://files.example/a/first.csv", "https://files.example/second.txt?raw=1"}

	descriptor, err := f.builder.Build(context.Background(), testRequest(td))
	require.NoError(t, err)
	require.NotNil(t, descriptor.PreCompute)

	pre := descriptor.PreCompute
	require.NotNil(t, pre.Dataset)
	assert.Equal(t, DatasetAccess{
		Key:      "dataset-key",
		URL:      td.DatasetURL,
		Filename: "d.zip",
		Checksum: "0xchecksum",
	}, *pre.Dataset)
	assert.Equal(t, td.InputFiles, pre.InputFileURLs)
	assert.Equal(t, pre.Sign, descriptor.PostCompute.Sign)
	assert.Equal(t, StagePreCompute, pre.Name())
	assert.Equal(t, testPreFingerprint, pre.Fingerprint)
	assert.Equal(t, "dataset-key", envValue(t, pre.Env(), EnvDatasetKey))
	assert.Equal(t, "true", envValue(t, pre.Env(), EnvIsDatasetRequired))
	assert.Equal(t, td.DatasetURL, envValue(t, pre.Env(), EnvDatasetURL))
	assert.Equal(t, "d.zip", envValue(t, pre.Env(), EnvDatasetFilename))
	assert.Equal(t, "0xchecksum", envValue(t, pre.Env(), EnvDatasetChecksum))
	assert.Equal(t, IexecInPath, envValue(t, pre.Env(), EnvPreComputeOut))
	assert.Equal(t, "2", envValue(t, pre.Env(), EnvInputFilesNumber))
	assert.Equal(t, td.InputFiles[0], envValue(t, pre.Env(), EnvInputFileURLPrefix+"1"))
	assert.Equal(t, td.InputFiles[1], envValue(t, pre.Env(), EnvInputFileURLPrefix+"2"))
	assert.Equal(t, testWorker, envValue(t, pre.Env(), SignWorkerAddressVar(SignPrefixPreCompute)))

	// Both stages sign with the same task credential.
	assert.Equal(t,
		envValue(t, pre.Env(), SignPrivateKeyVar(SignPrefixPreCompute)),
		envValue(t, descriptor.PostCompute.Env(), SignPrivateKeyVar(SignPrefixPostCompute)))

	app := descriptor.AppCompute.Env()
	assert.Equal(t, testDatasetAddress, envValue(t, app, EnvDatasetAddress))
	assert.Equal(t, "d.zip", envValue(t, app, EnvDatasetFilename))
	assert.Equal(t, "first.csv", envValue(t, app, EnvInputFileNamePrefix+"1"))
	assert.Equal(t, "second.txt", envValue(t, app, EnvInputFileNamePrefix+"2"))
	_, ok := app.Get(EnvDatasetKey)
	assert.False(t, ok, "the dataset key stays in the pre-compute stage")
}

func TestBuild_InputFilesOnly(t *testing.T) {
	f := newFixture(t)
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "token")

	td := testTask()
	td.InputFiles = []string{"https://files.example/input.bin"}

	descriptor, err := f.builder.Build(context.Background(), testRequest(td))
	require.NoError(t, err)
	require.NotNil(t, descriptor.PreCompute)

	pre := descriptor.PreCompute.Env()
	assert.Equal(t, "false", envValue(t, pre, EnvIsDatasetRequired))
	_, ok := pre.Get(EnvDatasetKey)
	assert.False(t, ok)
	assert.Equal(t, []string{
		EnvTaskID,
		EnvPreComputeOut,
		EnvIsDatasetRequired,
		EnvInputFilesNumber,
		EnvInputFileURLPrefix + "1",
		SignWorkerAddressVar(SignPrefixPreCompute),
		SignPrivateKeyVar(SignPrefixPreCompute),
	}, pre.Keys())
}

func TestBuild_DatasetSecretMissing(t *testing.T) {
	f := newFixture(t)
	td := testTask()
	td.DatasetAddress = testDatasetAddress

	_, err := f.builder.Build(context.Background(), testRequest(td))
	requireKind(t, err, KindPreComputeDatasetSecretMissing)
}

func TestBuild_RequesterSecrets(t *testing.T) {
	f := newFixture(t)
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "token")

	appHeader, err := interfaces.NewApplicationDeveloperSecretHeader(testAppAddress)
	require.NoError(t, err)
	f.putComputeSecret(t, appHeader, "app-secret")
	keyA, err := interfaces.NewRequesterSecretHeader(testRequester, "keyA")
	require.NoError(t, err)
	f.putComputeSecret(t, keyA, "V")
	bad, err := interfaces.NewRequesterSecretHeader(testRequester, "bad")
	require.NoError(t, err)
	f.putComputeSecret(t, bad, "must not leak")

	td := testTask()
	td.RequesterSecrets = map[string]string{
		"1":  "keyA",
		"-1": "bad",
		"x":  "also-bad",
		"2":  "not/a/valid/key",
		"3":  "missing",
	}

	descriptor, err := f.builder.Build(context.Background(), testRequest(td))
	require.NoError(t, err)

	require.NotNil(t, descriptor.AppCompute.DeveloperSecret)
	assert.Equal(t, "app-secret", *descriptor.AppCompute.DeveloperSecret)
	assert.Equal(t, map[int]string{1: "V"}, descriptor.AppCompute.RequesterSecrets)

	app := descriptor.AppCompute.Env()
	assert.Equal(t, "app-secret", envValue(t, app, EnvAppDeveloperSecret))
	assert.Equal(t, "app-secret", envValue(t, app, EnvAppDeveloperSecret+"_1"))
	assert.Equal(t, "V", envValue(t, app, EnvRequesterSecretPrefix+"1"))

	var requesterVars []string
	for _, name := range app.Keys() {
		if strings.HasPrefix(name, EnvRequesterSecretPrefix) {
			requesterVars = append(requesterVars, name)
		}
	}
	assert.Equal(t, []string{EnvRequesterSecretPrefix + "1"}, requesterVars)
	for _, name := range app.Keys() {
		value, _ := app.Get(name)
		assert.NotEqual(t, "must not leak", value, name)
	}
}

func TestBuild_RequesterKeyUnderSeveralIndices(t *testing.T) {
	f := newFixture(t)
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "token")
	header, err := interfaces.NewRequesterSecretHeader(testRequester, "shared")
	require.NoError(t, err)
	f.putComputeSecret(t, header, "S")

	td := testTask()
	td.RequesterSecrets = map[string]string{"3": "shared", "1": "shared"}

	descriptor, err := f.builder.Build(context.Background(), testRequest(td))
	require.NoError(t, err)

	app := descriptor.AppCompute.Env()
	assert.Equal(t, "S", envValue(t, app, EnvRequesterSecretPrefix+"1"))
	assert.Equal(t, "S", envValue(t, app, EnvRequesterSecretPrefix+"3"))
}

func TestBuild_EnclaveConfig(t *testing.T) {
	f := newFixture(t)

	td := testTask()
	td.AppEnclaveConfig = nil
	_, err := f.builder.Build(context.Background(), testRequest(td))
	requireKind(t, err, KindAppComputeNoEnclaveConfig)

	td = testTask()
	td.AppEnclaveConfig.Fingerprint = "not-hex"
	td.AppEnclaveConfig.Entrypoint = ""
	_, err = f.builder.Build(context.Background(), testRequest(td))
	requireKind(t, err, KindAppComputeInvalidEnclaveConfig)

	var sessionErr *Error
	require.True(t, errors.As(err, &sessionErr))
	assert.Len(t, sessionErr.Messages, 2)
}

func TestBuild_ResultEncryption(t *testing.T) {
	f := newFixture(t)
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "token")

	td := testTask()
	td.ResultEncryption = true
	_, err := f.builder.Build(context.Background(), testRequest(td))
	requireKind(t, err, KindPostComputeEncryptionKeyMissing)

	f.putOwnerSecret(t, testBeneficiary, interfaces.ResultEncryptionPublicKeyName, "-----BEGIN PUBLIC KEY-----")
	descriptor, err := f.builder.Build(context.Background(), testRequest(td))
	require.NoError(t, err)
	post := descriptor.PostCompute.Env()
	assert.Equal(t, "yes", envValue(t, post, EnvResultEncryption))
	assert.Equal(t, "-----BEGIN PUBLIC KEY-----", envValue(t, post, EnvResultEncryptionPublicKey))
}

func TestBuild_StorageTokenFallback(t *testing.T) {
	f := newFixture(t)
	f.putOwnerSecret(t, testWorkerpoolOwner, interfaces.ResultProxyURLName, "P")
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "requester-token")
	f.putOwnerSecret(t, testWorker, interfaces.ResultIPFSTokenName, "worker-token")

	descriptor, err := f.builder.Build(context.Background(), testRequest(testTask()))
	require.NoError(t, err)

	post := descriptor.PostCompute.Env()
	assert.Equal(t, "worker-token", envValue(t, post, EnvResultStorageToken))
	assert.Equal(t, "P", envValue(t, post, EnvResultStorageProxy))

	// A proxy in the deal wins over the workerpool one.
	td := testTask()
	td.ResultStorageProxy = "https://deal-proxy.example"
	descriptor, err = f.builder.Build(context.Background(), testRequest(td))
	require.NoError(t, err)
	assert.Equal(t, "https://deal-proxy.example", envValue(t, descriptor.PostCompute.Env(), EnvResultStorageProxy))
}

func TestBuild_StorageTokens(t *testing.T) {
	t.Run("dropbox", func(t *testing.T) {
		f := newFixture(t)
		f.putOwnerSecret(t, testWorker, interfaces.ResultIPFSTokenName, "worker-token")

		td := testTask()
		td.ResultStorageProvider = StorageProviderDropbox
		_, err := f.builder.Build(context.Background(), testRequest(td))
		requireKind(t, err, KindPostComputeStorageTokenMissing)

		f.putOwnerSecret(t, testRequester, interfaces.ResultDropboxTokenName, "dropbox-token")
		descriptor, err := f.builder.Build(context.Background(), testRequest(td))
		require.NoError(t, err)
		assert.Equal(t, StorageProviderDropbox, envValue(t, descriptor.PostCompute.Env(), EnvResultStorageProvider))
		assert.Equal(t, "dropbox-token", envValue(t, descriptor.PostCompute.Env(), EnvResultStorageToken))
	})

	t.Run("no token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.builder.Build(context.Background(), testRequest(testTask()))
		requireKind(t, err, KindPostComputeStorageTokenMissing)
	})

	t.Run("callback", func(t *testing.T) {
		f := newFixture(t)
		td := testTask()
		td.Callback = "0xcallback"
		descriptor, err := f.builder.Build(context.Background(), testRequest(td))
		require.NoError(t, err)

		assert.Equal(t, ResultStorage{Callback: true}, descriptor.PostCompute.Storage)
		post := descriptor.PostCompute.Env()
		assert.Equal(t, "yes", envValue(t, post, EnvResultStorageCallback))
		assert.Equal(t, "", envValue(t, post, EnvResultStorageProvider))
		assert.Equal(t, "", envValue(t, post, EnvResultStorageProxy))
		assert.Equal(t, "", envValue(t, post, EnvResultStorageToken))
	})
}

func TestBuild_SignTokenErrors(t *testing.T) {
	f := newFixture(t)
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "token")

	withInputs := testTask()
	withInputs.InputFiles = []string{"https://files.example/a"}

	tests := []struct {
		name   string
		td     *interfaces.TaskDescription
		mutate func(*interfaces.SessionRequest)
		kind   ErrorKind
	}{
		{
			name:   "pre-compute empty worker address",
			td:     withInputs,
			mutate: func(r *interfaces.SessionRequest) { r.WorkerAddress = "" },
			kind:   KindPreComputeEmptyWorkerAddress,
		},
		{
			name:   "pre-compute empty enclave challenge",
			td:     withInputs,
			mutate: func(r *interfaces.SessionRequest) { r.EnclaveChallenge = "" },
			kind:   KindPreComputeEmptyEnclaveChallenge,
		},
		{
			name:   "post-compute empty worker address",
			td:     testTask(),
			mutate: func(r *interfaces.SessionRequest) { r.WorkerAddress = "" },
			kind:   KindPostComputeEmptyWorkerAddress,
		},
		{
			name:   "post-compute empty enclave challenge",
			td:     testTask(),
			mutate: func(r *interfaces.SessionRequest) { r.EnclaveChallenge = "" },
			kind:   KindPostComputeEmptyEnclaveChallenge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest(tt.td)
			tt.mutate(req)
			_, err := f.builder.Build(context.Background(), req)
			requireKind(t, err, tt.kind)
		})
	}
}

func TestBuild_StageFingerprintsFromConfig(t *testing.T) {
	f := newFixture(t)
	f.putOwnerSecret(t, testRequester, interfaces.ResultIPFSTokenName, "token")

	td := testTask()
	td.InputFiles = []string{"https://files.example/a"}
	req := testRequest(td)
	req.SessionID = ""

	descriptor, err := f.builder.Build(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, testPreFingerprint, descriptor.PreCompute.Fingerprint)
	assert.Equal(t, testAppFingerprint, descriptor.AppCompute.Fingerprint)
	assert.Equal(t, testPostFingerprint, descriptor.PostCompute.Fingerprint)
	assert.NotEmpty(t, descriptor.ID)

	// The application's own fingerprint never reaches the trusted stages.
	td = testTask()
	td.InputFiles = []string{"https://files.example/a"}
	td.AppEnclaveConfig.Fingerprint = testPreFingerprint
	descriptor, err = f.builder.Build(context.Background(), testRequest(td))
	require.NoError(t, err)
	assert.Equal(t, testPreFingerprint, descriptor.AppCompute.Fingerprint)
	assert.Equal(t, testPostFingerprint, descriptor.PostCompute.Fingerprint)

	rendered := descriptor.Render()
	require.NotNil(t, rendered.PreCompute)
	assert.Equal(t, testPreFingerprint, rendered.PreCompute.Fingerprint)
	assert.Equal(t, testPostFingerprint, rendered.PostCompute.Fingerprint)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{PreComputeFingerprint: testPreFingerprint, PostComputeFingerprint: testPostFingerprint}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "empty", cfg: Config{}},
		{name: "no pre-compute", cfg: Config{PostComputeFingerprint: testPostFingerprint}},
		{name: "no post-compute", cfg: Config{PreComputeFingerprint: testPreFingerprint}},
		{name: "malformed", cfg: Config{PreComputeFingerprint: "pre", PostComputeFingerprint: testPostFingerprint}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

type mockComputeSecrets struct {
	mock.Mock
}

func (m *mockComputeSecrets) GetMany(ctx context.Context, keys []interfaces.ComputeSecretHeader) ([]interfaces.Secret[interfaces.ComputeSecretHeader], error) {
	args := m.Called(ctx, keys)
	records, _ := args.Get(0).([]interfaces.Secret[interfaces.ComputeSecretHeader])
	return records, args.Error(1)
}

type mockOwnerSecrets struct {
	mock.Mock
}

func (m *mockOwnerSecrets) Get(ctx context.Context, key interfaces.OwnerSecretKey, decrypt bool) (*interfaces.Secret[interfaces.OwnerSecretKey], error) {
	args := m.Called(ctx, key, decrypt)
	secret, _ := args.Get(0).(*interfaces.Secret[interfaces.OwnerSecretKey])
	return secret, args.Error(1)
}

type mockCredentials struct {
	mock.Mock
}

func (m *mockCredentials) GetOrCreate(ctx context.Context, taskID string) (*interfaces.TaskCredential, error) {
	args := m.Called(ctx, taskID)
	credential, _ := args.Get(0).(*interfaces.TaskCredential)
	return credential, args.Error(1)
}

type mockedBuilder struct {
	compute     *mockComputeSecrets
	datasets    *mockOwnerSecrets
	owners      *mockOwnerSecrets
	credentials *mockCredentials
	builder     *Builder
}

func newMockedBuilder() *mockedBuilder {
	m := &mockedBuilder{
		compute:     &mockComputeSecrets{},
		datasets:    &mockOwnerSecrets{},
		owners:      &mockOwnerSecrets{},
		credentials: &mockCredentials{},
	}
	m.builder = NewBuilder(Config{}, m.compute, m.datasets, m.owners, m.credentials, testLogger())
	return m
}

func (m *mockedBuilder) assertNoLookups(t *testing.T) {
	m.compute.AssertNotCalled(t, "GetMany", mock.Anything, mock.Anything)
	m.datasets.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	m.owners.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	m.credentials.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything)
}

func TestBuild_ErrorPrecedence(t *testing.T) {
	m := newMockedBuilder()

	_, err := m.builder.Build(context.Background(), nil)
	requireKind(t, err, KindNoSessionRequest)
	assert.ErrorIs(t, err, ErrNoSessionRequest)

	_, err = m.builder.Build(context.Background(), testRequest(nil))
	requireKind(t, err, KindNoTaskDescription)
	assert.ErrorIs(t, err, ErrNoTaskDescription)

	m.assertNoLookups(t)
}

func TestBuild_RequesterSecretsSingleBatch(t *testing.T) {
	m := newMockedBuilder()
	td := testTask()
	td.ResultStorageProvider = StorageProviderDropbox
	td.RequesterSecrets = map[string]string{"1": "a", "2": "b", "3": "c", "0": "zero"}

	appHeader, _ := interfaces.NewApplicationDeveloperSecretHeader(testAppAddress)
	headerA, _ := interfaces.NewRequesterSecretHeader(testRequester, "a")
	headerB, _ := interfaces.NewRequesterSecretHeader(testRequester, "b")
	headerC, _ := interfaces.NewRequesterSecretHeader(testRequester, "c")

	m.compute.On("GetMany", mock.Anything, mock.MatchedBy(func(keys []interfaces.ComputeSecretHeader) bool {
		return assert.ElementsMatch(t, []interfaces.ComputeSecretHeader{appHeader, headerA, headerB, headerC}, keys)
	})).Return([]interfaces.Secret[interfaces.ComputeSecretHeader]{
		{Key: headerC, Value: "C", Decrypted: true},
		{Key: headerA, Value: "A", Decrypted: true},
	}, nil).Once()
	m.owners.On("Get", mock.Anything, interfaces.OwnerSecretKey{OwnerAddress: testRequester, Name: interfaces.ResultDropboxTokenName}, true).
		Return(&interfaces.Secret[interfaces.OwnerSecretKey]{Value: "dropbox"}, nil)
	m.owners.On("Get", mock.Anything, mock.Anything, true).Return(nil, nil)
	m.credentials.On("GetOrCreate", mock.Anything, testTaskID).
		Return(&interfaces.TaskCredential{TaskID: testTaskID, Address: "0x1", PrivateKey: "0x2"}, nil)

	descriptor, err := m.builder.Build(context.Background(), testRequest(td))
	require.NoError(t, err)

	app := descriptor.AppCompute.Env()
	assert.Equal(t, "A", envValue(t, app, EnvRequesterSecretPrefix+"1"))
	assert.Equal(t, "C", envValue(t, app, EnvRequesterSecretPrefix+"3"))
	_, ok := app.Get(EnvRequesterSecretPrefix + "2")
	assert.False(t, ok)
	_, ok = app.Get(EnvRequesterSecretPrefix + "0")
	assert.False(t, ok)

	m.compute.AssertNumberOfCalls(t, "GetMany", 1)
}

func TestBuild_CredentialFailures(t *testing.T) {
	td := testTask()
	td.Callback = "0xcallback"

	t.Run("credential cannot be created", func(t *testing.T) {
		m := newMockedBuilder()
		m.compute.On("GetMany", mock.Anything, mock.Anything).Return(nil, nil)
		m.credentials.On("GetOrCreate", mock.Anything, testTaskID).Return(nil, errors.New("repository down"))

		_, err := m.builder.Build(context.Background(), testRequest(td))
		requireKind(t, err, KindPostComputeEmptyTeeChallenge)
	})

	t.Run("credential without private key", func(t *testing.T) {
		m := newMockedBuilder()
		m.compute.On("GetMany", mock.Anything, mock.Anything).Return(nil, nil)
		m.credentials.On("GetOrCreate", mock.Anything, testTaskID).
			Return(&interfaces.TaskCredential{TaskID: testTaskID, Address: "0x1"}, nil)

		_, err := m.builder.Build(context.Background(), testRequest(td))
		requireKind(t, err, KindPostComputeEmptyTeeCredentials)
	})
}

func TestBuild_StoreFaultIsTerminal(t *testing.T) {
	m := newMockedBuilder()
	td := testTask()
	td.DatasetAddress = testDatasetAddress

	m.datasets.On("Get", mock.Anything, mock.Anything, true).Return(nil, interfaces.ErrBackendUnavailable)

	_, err := m.builder.Build(context.Background(), testRequest(td))
	requireKind(t, err, KindSecureSessionGenerationFailed)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	var sessionErr *Error
	require.True(t, errors.As(err, &sessionErr))
	assert.True(t, sessionErr.Terminal())
}
