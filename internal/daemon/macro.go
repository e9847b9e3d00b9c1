package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rrflink/sbcd/internal/config"
	"github.com/rrflink/sbcd/pkg/gcode"
	"github.com/rrflink/sbcd/pkg/interpreter"
)

// MacroResolver implements scheduler.MacroResolver: it opens a macro
// or job file named by the firmware's ExecuteMacro request against the
// configured sys/macro directories.
type MacroResolver struct {
	sysDir   string
	macroDir string
}

// NewMacroResolver returns a resolver scoped to cfg's sys and macro
// directories.
func NewMacroResolver(cfg config.MacroConfig) *MacroResolver {
	return &MacroResolver{sysDir: cfg.SysDir, macroDir: cfg.MacroDir}
}

// Open resolves filename against the macro directory for every
// channel except File, which resolves against the sys directory
// (config.g, the job file itself is opened by whatever submitted it,
// not by ExecuteMacro). It rejects any filename that would escape its
// base directory.
func (r *MacroResolver) Open(channel gcode.Channel, filename string) (interpreter.ReadSeekCloser, error) {
	base := r.macroDir
	if channel == gcode.ChannelFile {
		base = r.sysDir
	}

	clean := filepath.Clean(filename)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("daemon: macro path %q escapes %s", filename, base)
	}

	path := filepath.Join(base, clean)
	if !strings.HasPrefix(path, filepath.Clean(base)+string(filepath.Separator)) {
		return nil, fmt.Errorf("daemon: macro path %q escapes %s", filename, base)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("daemon: opening macro %q: %w", filename, err)
	}
	return f, nil
}
