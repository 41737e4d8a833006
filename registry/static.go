package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ruteri/tee-secret-management-backend/interfaces"
)

// StaticProvider is an in-memory TaskDescriptionProvider and OwnerResolver.
type StaticProvider struct {
	mu     sync.RWMutex
	tasks  map[string]*interfaces.TaskDescription
	owners map[string]string
}

// staticFile is the on-disk form of a StaticProvider.
type staticFile struct {
	Tasks  map[string]*interfaces.TaskDescription `json:"tasks"`
	Owners map[string]string                      `json:"owners"`
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		tasks:  make(map[string]*interfaces.TaskDescription),
		owners: make(map[string]string),
	}
}

// LoadStaticProvider reads a registry file.
func LoadStaticProvider(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read registry file: %w", err)
	}

	var file staticFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("could not parse registry file %s: %w", path, err)
	}

	p := NewStaticProvider()
	for taskID, td := range file.Tasks {
		if td == nil {
			continue
		}
		if td.ChainTaskID == "" {
			td.ChainTaskID = taskID
		}
		p.AddTask(taskID, td)
	}
	for object, owner := range file.Owners {
		p.SetOwner(object, owner)
	}
	return p, nil
}

// AddTask registers or replaces the description of a task.
func (p *StaticProvider) AddTask(taskID string, td *interfaces.TaskDescription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks[strings.ToLower(taskID)] = td
}

// SetOwner records the owner of an application or dataset.
func (p *StaticProvider) SetOwner(objectAddress, owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owners[strings.ToLower(objectAddress)] = strings.ToLower(owner)
}

// TaskDescription implements interfaces.TaskDescriptionProvider. Unknown
// tasks yield nil. The returned description is a copy.
func (p *StaticProvider) TaskDescription(_ context.Context, taskID string) (*interfaces.TaskDescription, error) {
	p.mu.RLock()
	td, ok := p.tasks[strings.ToLower(taskID)]
	p.mu.RUnlock()
	if !ok || td == nil {
		return nil, nil
	}

	out := *td
	if td.AppEnclaveConfig != nil {
		cfg := *td.AppEnclaveConfig
		out.AppEnclaveConfig = &cfg
	}
	out.InputFiles = append([]string(nil), td.InputFiles...)
	if td.RequesterSecrets != nil {
		out.RequesterSecrets = make(map[string]string, len(td.RequesterSecrets))
		for k, v := range td.RequesterSecrets {
			out.RequesterSecrets[k] = v
		}
	}
	return &out, nil
}

// OwnerOf implements interfaces.OwnerResolver.
func (p *StaticProvider) OwnerOf(_ context.Context, objectAddress string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	owner, ok := p.owners[strings.ToLower(objectAddress)]
	if !ok || owner == "" {
		return "", fmt.Errorf("%w: %s", interfaces.ErrOwnerNotFound, objectAddress)
	}
	return owner, nil
}
