package wrapper

import (
	"context"
	"io"
	"os"

	"github.com/mbitsnbites/buildcache-go/internal/cache"
	"github.com/mbitsnbites/buildcache-go/internal/hasher"
	"github.com/mbitsnbites/buildcache-go/internal/procexec"
	"github.com/spf13/afero"
)

// HashVersion is embedded at the start of every fingerprint (segment V) so
// an incompatible change to the hashing scheme invalidates old entries
// rather than risk misinterpreting them.
const HashVersion = "buildcache-fp-1"

// Logf is a minimal structured-logging hook the orchestrator calls for
// degrade-don't-fail conditions (store/lookup I/O failures). The default
// is silent; cmd/buildcache wires it to its logger.
type Logf func(format string, v ...interface{})

// Deps bundles the orchestrator's external collaborators.
type Deps struct {
	Cache  cache.Cache
	Runner procexec.Runner
	FS     afero.Fs
	Log    Logf
	Stdout io.Writer
	Stderr io.Writer
}

func (d Deps) logf(format string, v ...interface{}) {
	if d.Log != nil {
		d.Log(format, v...)
	}
}

func (d Deps) stdout() io.Writer {
	if d.Stdout != nil {
		return d.Stdout
	}
	return os.Stdout
}

func (d Deps) stderr() io.Writer {
	if d.Stderr != nil {
		return d.Stderr
	}
	return os.Stderr
}

// Run drives a single invocation through ResolveArgs, fingerprinting, cache
// lookup, and either a cache-hit replay or a real compile followed by a
// cache store. It returns the process exit code the caller should use.
//
// Hook call order is fixed: ResolveArgs, Capabilities, (PreprocessSource
// if preprocessed mode), ProgramID, RelevantArguments, RelevantEnvVars,
// (InputFiles, ImplicitInputFiles if direct mode), (WorkingDirectory if
// WorkDirRelevant is declared), BuildFiles.
func Run(ctx context.Context, w Wrapper, deps Deps, realCmd procexec.Command) int {
	if err := w.ResolveArgs(); err != nil {
		deps.logf("buildcache: argument parsing failed, bypassing cache: %v", err)
		return runDirect(deps, realCmd)
	}

	caps := w.Capabilities()
	directMode := caps.Has(ForceDirectMode)

	fp := NewFingerprintBuilder()
	fp.HashVersion(HashVersion)

	var preprocessed []byte
	if !directMode {
		src, err := w.PreprocessSource()
		if err != nil {
			deps.logf("buildcache: preprocessing failed, bypassing cache: %v", err)
			return runDirect(deps, realCmd)
		}
		preprocessed = src
	}

	programID, err := w.ProgramID()
	if err != nil {
		deps.logf("buildcache: program identity probe failed, bypassing cache: %v", err)
		return runDirect(deps, realCmd)
	}
	fp.ProgramIdentity(programID)
	fp.Arguments(w.RelevantArguments())
	fp.EnvVars(w.RelevantEnvVars())

	if !directMode {
		fp.PreprocessedSource(preprocessed)
	} else {
		inputHashes, err := hashInputFiles(deps.FS, w)
		if err != nil {
			deps.logf("buildcache: hashing input files failed, bypassing cache: %v", err)
			return runDirect(deps, realCmd)
		}
		fp.InputFiles(inputHashes)
	}

	if caps.Has(WorkDirRelevant) {
		dir, err := w.WorkingDirectory()
		if err != nil {
			deps.logf("buildcache: working directory probe failed, bypassing cache: %v", err)
			return runDirect(deps, realCmd)
		}
		fp.WorkDir(dir)
	}

	fingerprint := fp.Finalize()

	if entry, found, err := deps.Cache.Lookup(ctx, fingerprint); err != nil {
		deps.logf("buildcache: cache lookup failed, degrading to direct execution: %v", err)
	} else if found {
		if code, ok := replay(deps, w, entry); ok {
			return code
		}
		deps.logf("buildcache: cache entry %s failed validation, treating as miss", fingerprint)
	}

	res, runErr := deps.Runner.Run(realCmd, nil)
	deps.stdout().Write(res.Stdout)
	deps.stderr().Write(res.Stderr)

	code := res.ExitCode
	if runErr != nil {
		if c, ok := procexec.ExitCode(runErr); ok {
			code = c
		} else {
			return 1
		}
	}
	if code != 0 {
		return code
	}

	entry, err := buildEntry(deps.FS, w, fingerprint, res, caps)
	if err != nil {
		deps.logf("buildcache: building cache entry failed, result not cached: %v", err)
		return code
	}
	if err := deps.Cache.Store(ctx, fingerprint, entry); err != nil {
		deps.logf("buildcache: cache store failed: %v", err)
	}
	return code
}

func runDirect(deps Deps, cmd procexec.Command) int {
	res, err := deps.Runner.Run(cmd, nil)
	deps.stdout().Write(res.Stdout)
	deps.stderr().Write(res.Stderr)
	if err != nil {
		if code, ok := procexec.ExitCode(err); ok {
			return code
		}
		return 1
	}
	return res.ExitCode
}

func hashInputFiles(fs afero.Fs, w Wrapper) ([]InputFileHash, error) {
	explicit := w.InputFiles()
	implicit, err := w.ImplicitInputFiles()
	if err != nil {
		return nil, WrapInternalErrorf(err, "wrapper: implicit input discovery")
	}
	all := make([]string, 0, len(explicit)+len(implicit))
	all = append(all, explicit...)
	all = append(all, implicit...)

	out := make([]InputFileHash, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, path := range all {
		if seen[path] {
			continue
		}
		seen[path] = true
		sum, err := hasher.HashFile(fs, path)
		if err != nil {
			return nil, WrapInternalErrorf(err, "wrapper: hash input %s", path)
		}
		out = append(out, InputFileHash{Path: path, ContentHash: sum})
	}
	return out, nil
}

// buildEntry reads every declared build file off disk and packages them
// with the captured subprocess output into a cache.Entry.
func buildEntry(fs afero.Fs, w Wrapper, fingerprint string, res procexec.Result, caps CapabilitySet) (*cache.Entry, error) {
	files := make(map[string][]byte)
	for label, expected := range w.BuildFiles() {
		data, err := afero.ReadFile(fs, expected.Path)
		if err != nil {
			if expected.Required {
				return nil, WrapInternalErrorf(err, "wrapper: required output %s (%s) missing", label, expected.Path)
			}
			continue
		}
		files[label] = data
	}

	capList := make([]string, 0, len(caps))
	for c, on := range caps {
		if on {
			capList = append(capList, string(c))
		}
	}

	return &cache.Entry{
		Fingerprint:  fingerprint,
		Files:        files,
		Stdout:       res.Stdout,
		Stderr:       res.Stderr,
		ExitCode:     res.ExitCode,
		Capabilities: capList,
	}, nil
}

// replay writes a cached entry's files back to their expected locations and
// emits its captured stdout/stderr. ok is false if the entry is missing a
// required file (cache corruption), in which case the caller must treat
// this as a miss.
func replay(deps Deps, w Wrapper, entry *cache.Entry) (code int, ok bool) {
	for label, expected := range w.BuildFiles() {
		data, present := entry.Files[label]
		if !present {
			if expected.Required {
				return 0, false
			}
			continue
		}
		if err := afero.WriteFile(deps.FS, expected.Path, data, 0o644); err != nil {
			return 0, false
		}
	}
	deps.stdout().Write(entry.Stdout)
	deps.stderr().Write(entry.Stderr)
	return entry.ExitCode, true
}
