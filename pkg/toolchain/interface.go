package toolchain

import (
	"context"

	"github.com/voidshard/flashd/pkg/structs"
)

// BuildResult is the outcome of a single build
type BuildResult struct {
	// ArtifactPath is the built firmware, set on success
	ArtifactPath string

	// Success is true if the build produced an artifact
	Success bool

	// Log is output captured from the build
	Log string
}

// Builder compiles a config into firmware.
//
// Builds must not alter the source tree and must be safe to call repeatedly.
type Builder interface {
	// Build compiles sourcePath with the toolchain named by builderID ("" is the default).
	// A failed build returns a result with Success false & whatever log was captured.
	Build(ctx context.Context, sourcePath, builderID string) (*BuildResult, error)
}

// DeployRequest describes one deploy
type DeployRequest struct {
	// Target is the device; a serial port, ip address or hostname
	Target string

	Transport structs.TransportMode

	// Path is the firmware to flash, or the config itself if nothing was compiled
	Path string

	// Source is the staged config the firmware was built from
	Source string

	// BuilderID selects the toolchain, as for Build
	BuilderID string
}

// Deployer puts firmware onto a device.
type Deployer interface {
	// Deploy flashes req.Path to req.Target. The context carries the deploy timeout;
	// implementations must stop the deploy (and anything it started) when it's cancelled.
	Deploy(ctx context.Context, req *DeployRequest) error
}

// DependencyExtractor lists the files a config references.
type DependencyExtractor interface {
	// Dependencies returns paths relative to the directory of sourcePath
	Dependencies(sourcePath string) ([]string, error)
}
