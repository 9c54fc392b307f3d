package api

import (
	"encoding/json"
	"time"
)

// PlatformKind identifies how a managed server instance is hosted.
type PlatformKind string

const (
	// PlatformProcess hosts the managed server as a bare OS process.
	PlatformProcess PlatformKind = "process"

	// PlatformContainer hosts the managed server in a container runtime.
	PlatformContainer PlatformKind = "container"

	// PlatformPod hosts the managed server as an orchestrator pod.
	PlatformPod PlatformKind = "pod"
)

// AllPlatforms lists every supported platform kind.
var AllPlatforms = []PlatformKind{PlatformProcess, PlatformContainer, PlatformPod}

// Valid reports whether the platform kind is one of the supported values.
func (p PlatformKind) Valid() bool {
	switch p {
	case PlatformProcess, PlatformContainer, PlatformPod:
		return true
	}
	return false
}

// InstanceStatus represents the lifecycle status of an instance as tracked
// by the API node.
type InstanceStatus string

const (
	// StatusCreated means the instance metadata exists but the managed
	// server has never been started.
	StatusCreated InstanceStatus = "Created"

	// StatusRunning means the managed server is believed to be running.
	StatusRunning InstanceStatus = "Running"

	// StatusStopped means the managed server was stopped on request.
	StatusStopped InstanceStatus = "Stopped"

	// StatusError means the last operation failed or the managed server
	// exited unexpectedly.
	StatusError InstanceStatus = "Error"

	// StatusConfigurationChanged marks an instance whose declared
	// configuration was patched after the last apply. It is raised by the
	// API node, never by workers, and signals the reconciler.
	StatusConfigurationChanged InstanceStatus = "ConfigurationChanged"
)

// Valid reports whether the status is one of the known values.
func (s InstanceStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusRunning, StatusStopped, StatusError, StatusConfigurationChanged:
		return true
	}
	return false
}

// Well-known sources for status transitions.
const (
	SourceAPI        = "api"
	SourceWorker     = "worker"
	SourceReconciler = "reconciler"
)

// Instance is the metadata record for a managed server instance. It is
// owned exclusively by the API node; workers and the reconciler only ever
// see copies.
type Instance struct {
	// ID is the opaque identifier assigned at creation.
	ID string `json:"id"`

	// Name is the user-provided display name. Names are not unique.
	Name string `json:"name"`

	// Description is free-form text.
	Description string `json:"description,omitempty"`

	// Platform selects the command channel the instance's lifecycle
	// commands are published on.
	Platform PlatformKind `json:"platformKind"`

	// Status is the current lifecycle status.
	Status InstanceStatus `json:"status"`

	CreatedAt      time.Time `json:"createdAt"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`

	// Tags carries free-form user labels.
	Tags map[string]string `json:"tags,omitempty"`
}

// Clone returns an independent copy of the instance metadata.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	cp := *i
	if i.Tags != nil {
		cp.Tags = make(map[string]string, len(i.Tags))
		for k, v := range i.Tags {
			cp.Tags[k] = v
		}
	}
	return &cp
}

// ServerBinding is the network identity a managed server listens on.
type ServerBinding struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	LogLevel string `json:"logLevel"`
}

// ConfigRecord is one entry in a declared-configuration list. The control
// plane never interprets record contents; equality is structural.
type ConfigRecord map[string]any

// DeclaredConfiguration is the user-intended state of a managed server.
// Exactly one exists per instance; it is created with the instance,
// patched in place, and deleted with the instance.
//
// The binding fields are flattened into the wire form, so the JSON shape
// is {host, port, logLevel, sources, queries, reactions}.
type DeclaredConfiguration struct {
	ServerBinding

	Sources   []ConfigRecord `json:"sources"`
	Queries   []ConfigRecord `json:"queries"`
	Reactions []ConfigRecord `json:"reactions"`
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// freely without aliasing the canonical document.
func (c *DeclaredConfiguration) Clone() *DeclaredConfiguration {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		// The document is built from JSON-compatible types only.
		cp := *c
		return &cp
	}
	var out DeclaredConfiguration
	if err := json.Unmarshal(raw, &out); err != nil {
		cp := *c
		return &cp
	}
	return &out
}

// RuntimeInfo is the observed state of an instance as reported by a
// platform worker or the status-update ingress. At most one exists per
// instance; absence means the instance never started.
type RuntimeInfo struct {
	InstanceID string         `json:"instanceId"`
	Status     InstanceStatus `json:"status"`

	StartedAt time.Time  `json:"startedAt"`
	StoppedAt *time.Time `json:"stoppedAt,omitempty"`

	// Platform-specific handle. Exactly one group is populated depending
	// on the platform kind.
	ProcessID    int    `json:"processId,omitempty"`
	ContainerID  string `json:"containerId,omitempty"`
	PodName      string `json:"podName,omitempty"`
	PodNamespace string `json:"podNamespace,omitempty"`

	Metadata     map[string]string `json:"metadata,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
}

// Clone returns an independent copy of the runtime info.
func (r *RuntimeInfo) Clone() *RuntimeInfo {
	if r == nil {
		return nil
	}
	cp := *r
	if r.StoppedAt != nil {
		t := *r.StoppedAt
		cp.StoppedAt = &t
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// CommandKind enumerates the lifecycle commands a worker executes.
type CommandKind string

const (
	CommandStart   CommandKind = "Start"
	CommandStop    CommandKind = "Stop"
	CommandRestart CommandKind = "Restart"
	CommandDelete  CommandKind = "Delete"
)

// Command is the message published on a platform's command channel.
// When the publisher awaits a response, the command travels inside a
// request envelope and the reply channel is delivered to the subscriber
// out of band (see the bus package).
type Command struct {
	Kind       CommandKind `json:"kind"`
	InstanceID string      `json:"instanceId"`

	// Configuration is carried by Start and Restart commands only.
	Configuration *DeclaredConfiguration `json:"configuration,omitempty"`

	// CorrelationID is unique per command; responses echo it.
	CorrelationID string `json:"correlationId"`
}

// Response is the worker's answer to a command, published on the
// command's reply channel.
type Response struct {
	InstanceID   string `json:"instanceId"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// ErrorKind classifies a failure (see ErrorKindOf) so the receiver
	// can rebuild a typed error instead of a generic platform failure.
	ErrorKind string `json:"errorKind,omitempty"`

	RuntimeInfo   *RuntimeInfo `json:"runtimeInfo,omitempty"`
	CorrelationID string       `json:"correlationId"`
}

// EventType enumerates broadcast lifecycle events.
type EventType string

const (
	EventInstanceStarted       EventType = "InstanceStarted"
	EventInstanceStopped       EventType = "InstanceStopped"
	EventInstanceDeleted       EventType = "InstanceDeleted"
	EventInstanceStatusChanged EventType = "InstanceStatusChanged"
	EventConfigurationChanged  EventType = "ConfigurationChanged"
)

// Event is the message broadcast on the events and status channels.
// OldStatus/NewStatus/Source are populated for InstanceStatusChanged.
type Event struct {
	Type          EventType      `json:"type"`
	InstanceID    string         `json:"instanceId"`
	CorrelationID string         `json:"correlationId"`
	OldStatus     InstanceStatus `json:"oldStatus,omitempty"`
	NewStatus     InstanceStatus `json:"newStatus,omitempty"`
	Source        string         `json:"source,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// StatusChangeRecord is one entry in the API node's bounded status ring.
type StatusChangeRecord struct {
	InstanceID string            `json:"instanceId"`
	OldStatus  InstanceStatus    `json:"oldStatus"`
	NewStatus  InstanceStatus    `json:"newStatus"`
	Source     string            `json:"source"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// StatusUpdate is the ingress payload for externally-observed status
// (out-of-band daemons, external monitors). It is informational: the API
// node records it but publishes no command in response.
type StatusUpdate struct {
	InstanceID string            `json:"instanceId"`
	Status     InstanceStatus    `json:"status"`
	Source     string            `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CreateInstanceRequest declares a new instance.
type CreateInstanceRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Platform    PlatformKind      `json:"platformKind"`
	Binding     *ServerBinding    `json:"binding,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}
