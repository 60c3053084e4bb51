// Package state defines the durable build record model and its document store.
package state

import (
	"slices"
	"time"

	derrors "git.home.luguber.info/inful/rombuilder/internal/errors"
)

// SourceKind identifies which part of the device build a source provides.
type SourceKind string

const (
	SourceDevice SourceKind = "device"
	SourceKernel SourceKind = "kernel"
	SourceVendor SourceKind = "vendor"
)

// SourceMethod identifies how a source is materialized.
type SourceMethod string

const (
	MethodGitHub SourceMethod = "github"
	MethodGitLab SourceMethod = "gitlab"
	MethodLocal  SourceMethod = "local"
	MethodURL    SourceMethod = "url"
)

// BuildVariant is the compilation profile for the final artifact.
type BuildVariant string

const (
	VariantUser      BuildVariant = "user"
	VariantUserdebug BuildVariant = "userdebug"
	VariantEng       BuildVariant = "eng"
)

// SourceConfig describes one source input (device tree, kernel, or vendor
// blobs). Immutable once submitted.
type SourceConfig struct {
	Kind   SourceKind   `json:"source_type" yaml:"source_type"`
	Method SourceMethod `json:"method" yaml:"method"`
	Value  string       `json:"value" yaml:"value"` // URL or local path
}

// BuildConfig is the caller-supplied configuration for one build.
type BuildConfig struct {
	DeviceName     string       `json:"device_name"`
	DeviceCodename string       `json:"device_codename"`
	AndroidVersion string       `json:"android_version"`
	BuildVariant   BuildVariant `json:"build_variant"`
	BuildDirectory string       `json:"build_directory"`
	DeviceTree     SourceConfig `json:"device_tree"`
	Kernel         SourceConfig `json:"kernel"`
	Vendor         SourceConfig `json:"vendor"`
}

// BuildRecordStatus represents the lifecycle status of a build record.
type BuildRecordStatus string

const (
	StatusStarted   BuildRecordStatus = "started"
	StatusBuilding  BuildRecordStatus = "building"
	StatusCompleted BuildRecordStatus = "completed"
	StatusFailed    BuildRecordStatus = "failed"
)

// Active reports whether the status counts toward the single build slot.
func (s BuildRecordStatus) Active() bool {
	return s == StatusStarted || s == StatusBuilding
}

// BuildRecord is the durable mirror of one build. Created once per build,
// mutated only by the pipeline, never deleted.
type BuildRecord struct {
	ID           string            `json:"id"`
	Config       BuildConfig       `json:"config"`
	Status       BuildRecordStatus `json:"status"`
	Progress     int               `json:"progress"`
	CurrentStage string            `json:"current_stage"`
	Logs         []string          `json:"logs"`
	StartedAt    time.Time         `json:"started_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Patch is a partial update applied to a build record. Nil fields are left
// untouched; any patch bumps updated_at.
type Patch struct {
	Status       *BuildRecordStatus
	Progress     *int
	CurrentStage *string
}

var (
	validKinds    = []SourceKind{SourceDevice, SourceKernel, SourceVendor}
	validMethods  = []SourceMethod{MethodGitHub, MethodGitLab, MethodLocal, MethodURL}
	validVariants = []BuildVariant{VariantUser, VariantUserdebug, VariantEng}
)

// Validate checks a SourceConfig's shape.
func (s SourceConfig) Validate(field string) error {
	if !slices.Contains(validKinds, s.Kind) {
		return derrors.ValidationFailed(field+".source_type", "must be one of device, kernel, vendor")
	}
	if !slices.Contains(validMethods, s.Method) {
		return derrors.ValidationFailed(field+".method", "must be one of github, gitlab, local, url")
	}
	if s.Value == "" {
		return derrors.ValidationFailed(field+".value", "must not be empty")
	}
	return nil
}

// Validate checks shape only; there are no cross-field invariants beyond
// non-empty strings.
func (c BuildConfig) Validate() error {
	if c.DeviceName == "" {
		return derrors.ValidationFailed("device_name", "must not be empty")
	}
	if c.DeviceCodename == "" {
		return derrors.ValidationFailed("device_codename", "must not be empty")
	}
	if c.AndroidVersion == "" {
		return derrors.ValidationFailed("android_version", "must not be empty")
	}
	if !slices.Contains(validVariants, c.BuildVariant) {
		return derrors.ValidationFailed("build_variant", "must be one of user, userdebug, eng")
	}
	if c.BuildDirectory == "" {
		return derrors.ValidationFailed("build_directory", "must not be empty")
	}
	if err := c.DeviceTree.Validate("device_tree"); err != nil {
		return err
	}
	if err := c.Kernel.Validate("kernel"); err != nil {
		return err
	}
	return c.Vendor.Validate("vendor")
}

// Sources returns the three source inputs in placement order.
func (c BuildConfig) Sources() []SourceConfig {
	return []SourceConfig{
		{Kind: SourceDevice, Method: c.DeviceTree.Method, Value: c.DeviceTree.Value},
		{Kind: SourceKernel, Method: c.Kernel.Method, Value: c.Kernel.Value},
		{Kind: SourceVendor, Method: c.Vendor.Method, Value: c.Vendor.Value},
	}
}
