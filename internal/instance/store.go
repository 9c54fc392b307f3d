package instance

import (
	"sort"
	"sync"
	"time"

	"maestro/internal/api"
)

// metadataStore holds the instance metadata records. The API node is the
// only writer; everything it hands out is a clone.
type metadataStore struct {
	mu        sync.RWMutex
	instances map[string]*api.Instance
}

func newMetadataStore() *metadataStore {
	return &metadataStore{instances: make(map[string]*api.Instance)}
}

func (s *metadataStore) put(in *api.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[in.ID] = in.Clone()
}

func (s *metadataStore) get(id string) (*api.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	return in.Clone(), true
}

// list returns all instances sorted by name, then id for stable output.
func (s *metadataStore) list() []*api.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.Instance, 0, len(s.instances))
	for _, in := range s.instances {
		out = append(out, in.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// findByName returns the oldest instance carrying the given name. Names
// are not unique in general; definition files rely on them being unique
// within the definitions directory.
func (s *metadataStore) findByName(name string) (*api.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *api.Instance
	for _, in := range s.instances {
		if in.Name != name {
			continue
		}
		if found == nil || in.CreatedAt.Before(found.CreatedAt) {
			found = in
		}
	}
	if found == nil {
		return nil, false
	}
	return found.Clone(), true
}

// setStatus records a new lifecycle status and bumps the modification
// time. It reports the previous status and whether anything changed; an
// unknown id reports an empty old status and no change.
func (s *metadataStore) setStatus(id string, status api.InstanceStatus) (api.InstanceStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.instances[id]
	if !ok {
		return "", false
	}
	old := in.Status
	if old == status {
		return old, false
	}
	in.Status = status
	in.LastModifiedAt = time.Now()
	return old, true
}

func (s *metadataStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, id)
}

// configStore holds the declared configuration documents, one per
// instance.
type configStore struct {
	mu      sync.RWMutex
	configs map[string]*api.DeclaredConfiguration
}

func newConfigStore() *configStore {
	return &configStore{configs: make(map[string]*api.DeclaredConfiguration)}
}

func (s *configStore) put(id string, cfg *api.DeclaredConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[id] = cfg.Clone()
}

func (s *configStore) get(id string) (*api.DeclaredConfiguration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, false
	}
	return cfg.Clone(), true
}

func (s *configStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, id)
}

// runtimeStore caches the last observed runtime info per instance.
// Workers are the source of truth; this cache is not durable and an API
// restart forgets it.
type runtimeStore struct {
	mu    sync.RWMutex
	infos map[string]*api.RuntimeInfo
}

func newRuntimeStore() *runtimeStore {
	return &runtimeStore{infos: make(map[string]*api.RuntimeInfo)}
}

func (s *runtimeStore) put(info *api.RuntimeInfo) {
	if info == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[info.InstanceID] = info.Clone()
}

func (s *runtimeStore) get(id string) (*api.RuntimeInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[id]
	if !ok {
		return nil, false
	}
	return info.Clone(), true
}

// mergeStatus folds an observed status transition into the cached
// runtime info, creating a minimal record when none exists yet.
func (s *runtimeStore) mergeStatus(id string, status api.InstanceStatus, metadata map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.infos[id]
	if !ok {
		info = &api.RuntimeInfo{InstanceID: id}
		s.infos[id] = info
	}
	info.Status = status
	if len(metadata) > 0 {
		if info.Metadata == nil {
			info.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			info.Metadata[k] = v
		}
	}
	if status == api.StatusError {
		if msg, ok := metadata["error"]; ok {
			info.ErrorMessage = msg
		} else if msg, ok := metadata["reason"]; ok {
			info.ErrorMessage = msg
		}
	}
}

func (s *runtimeStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.infos, id)
}
