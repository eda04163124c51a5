package toolchain

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/voidshard/flashd/pkg/errors"
	"github.com/voidshard/flashd/pkg/structs"
)

// ESPHome builds & deploys with the esphome cli
type ESPHome struct {
	fs   afero.Fs
	opts *Options
	log  *zap.Logger

	// runner is swapped out in tests
	runner func(ctx context.Context, dir string, argv ...string) (string, error)
}

// NewESPHome returns a Builder & Deployer that shells out (without a shell) to esphome.
func NewESPHome(fs afero.Fs, opts *Options, log *zap.Logger) *ESPHome {
	if opts == nil {
		opts = &Options{}
	}
	opts.SetDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	e := &ESPHome{fs: fs, opts: opts, log: log}
	e.runner = func(ctx context.Context, dir string, argv ...string) (string, error) {
		return run(ctx, dir, e.opts.WaitDelay, argv...)
	}
	return e
}

// Build runs `esphome compile <config>` and finds the firmware it wrote.
func (e *ESPHome) Build(ctx context.Context, sourcePath, builderID string) (*BuildResult, error) {
	exe, err := e.executable(builderID)
	if err != nil {
		return &BuildResult{Log: err.Error()}, fmt.Errorf("%w %v", errors.ErrBuild, err)
	}

	e.log.Debug("compiling", zap.String("path", sourcePath), zap.String("builder", exe))
	out, err := e.runner(ctx, filepath.Dir(sourcePath), exe, "compile", sourcePath)
	result := &BuildResult{Log: out}
	if err != nil {
		return result, fmt.Errorf("%w compiling %s: %v", errors.ErrBuild, sourcePath, err)
	}

	artifact := e.findFirmware(sourcePath)
	if artifact == "" {
		return result, fmt.Errorf("%w no firmware found for %s", errors.ErrBuild, sourcePath)
	}

	result.ArtifactPath = artifact
	result.Success = true
	return result, nil
}

// Deploy runs `esphome upload [--device <target>] [--file <firmware>] <config>`.
//
// Network targets are probed on the OTA port first.
func (e *ESPHome) Deploy(ctx context.Context, req *DeployRequest) error {
	exe, err := e.executable(req.BuilderID)
	if err != nil {
		return fmt.Errorf("%w %v", errors.ErrDeploy, err)
	}

	if req.Transport == structs.TransportNetwork {
		err = e.probe(ctx, req.Target)
		if err != nil {
			return fmt.Errorf("%w device %s unreachable: %v", errors.ErrDeploy, req.Target, err)
		}
	}

	source := req.Source
	if source == "" {
		source = req.Path
	}
	argv := []string{exe, "upload"}
	if req.Target != "" {
		argv = append(argv, "--device", req.Target)
	}
	if req.Path != "" && req.Path != source && !isConfig(req.Path) {
		argv = append(argv, "--file", req.Path)
	}
	argv = append(argv, source)

	e.log.Debug("uploading", zap.String("target", req.Target), zap.Strings("argv", argv))
	out, err := e.runner(ctx, filepath.Dir(source), argv...)
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%w uploading to %s", errors.ErrDeployTimeout, req.Target)
	}
	return fmt.Errorf("%w uploading to %s: %v: %s", errors.ErrDeploy, req.Target, err, tail(out, 3))
}

// executable returns the esphome binary for the builder id
func (e *ESPHome) executable(builderID string) (string, error) {
	if builderID == "" {
		return e.opts.Executable, nil
	}
	exe, ok := e.opts.Versions[builderID]
	if !ok {
		return "", fmt.Errorf("%w unknown builder %s", errors.ErrInvalidArg, builderID)
	}
	return exe, nil
}

// findFirmware returns where esphome left the firmware for the config, if anywhere
func (e *ESPHome) findFirmware(sourcePath string) string {
	name := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	build := filepath.Join(filepath.Dir(sourcePath), ".esphome", "build", name)

	for _, candidate := range []string{
		filepath.Join(build, ".pioenvs", name, "firmware.bin"),
		filepath.Join(build, "firmware.bin"),
	} {
		ok, err := afero.Exists(e.fs, candidate)
		if err == nil && ok {
			return candidate
		}
	}
	return ""
}

// probe checks something is listening on the device's OTA port
func (e *ESPHome) probe(ctx context.Context, target string) error {
	d := net.Dialer{Timeout: e.opts.ProbeTimeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(target, strconv.Itoa(e.opts.OTAPort)))
	if err != nil {
		return err
	}
	return conn.Close()
}

func isConfig(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
