package rust

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/mbitsnbites/buildcache-go/internal/arglist"
	"github.com/mbitsnbites/buildcache-go/internal/envutil"
	"github.com/mbitsnbites/buildcache-go/internal/fsutil"
	"github.com/mbitsnbites/buildcache-go/internal/hasher"
	"github.com/mbitsnbites/buildcache-go/internal/procexec"
	"github.com/mbitsnbites/buildcache-go/internal/wrapper"
)

// hashVersion is bumped when get_program_id's hashed content changes shape.
const hashVersion = "rust-1"

// sandboxedEnvDenylist is unset for the duration of any probe invocation of
// rustc (version, sysroot, dep-info), so host quirks never leak into a
// cached fingerprint.
var sandboxedEnvDenylist = []string{
	"LD_PRELOAD",
	"RUNNING_UNDER_RR",
	"HOSTNAME",
	"PWD",
	"HOST",
	"RPM_BUILD_ROOT",
	"SOURCE_DATE_EPOCH",
	"RPM_PACKAGE_RELEASE",
	"MINICOM",
	"RPM_PACKAGE_VERSION",
}

// Wrapper implements wrapper.Wrapper for rustc as invoked by cargo.
type Wrapper struct {
	exe  string
	argv []string
	env  envutil.Env
	fs   afero.Fs
	run  procexec.Runner

	resolved          bool
	relevantArgs      []string
	outputDir         string
	externs           []string
	staticLibraries   []string
	crateName         string
	depInfo           string
	emit              []string
	input             string

	depsProbed    bool
	depsProbeErr  error
	implicitFiles []string
	relevantEnv   map[string]string
}

// New constructs a Rust wrapper for one invocation. exe is the path to
// rustc as it would itself be invoked (used as argv[0] in probe commands).
func New(exe string, argv []string, env envutil.Env, fs afero.Fs, run procexec.Runner) *Wrapper {
	return &Wrapper{exe: exe, argv: argv, env: env, fs: fs, run: run}
}

var _ wrapper.Wrapper = (*Wrapper)(nil)

func (w *Wrapper) CanHandleCommand() bool {
	base := strings.ToLower(filepath.Base(w.exe))
	return base == "rustc"
}

func (w *Wrapper) panicf(format string, args ...interface{}) error {
	header := w.crateName
	if header == "" {
		header = "<unknown crate>"
	}
	return wrapper.NewUserErrorf(header, format, args...)
}

// ResolveArgs parses argv against the option table, classifying each token
// and collecting the state the other hooks need. It accumulates every
// error it finds rather than stopping at the first one, mirroring the
// original parse_options.
func (w *Wrapper) ResolveArgs() error {
	if w.resolved {
		return nil
	}
	w.resolved = true

	var errs wrapper.ParseErrors
	var relevantArgs []string
	var staticLibPaths, staticLibNames, externs []string
	var crateTypeRlib, crateTypeStaticLib bool
	var crateName, extraFilename, outputDir, input, depInfo string
	var emit []string

	i := 0
	for i < len(w.argv) {
		raw := w.argv[i]
		tok := classifyToken(raw)
		i++

		arg2 := tok.argument
		if tok.spec.hasArgument && arg2 == "" {
			if i < len(w.argv) {
				arg2 = w.argv[i]
				i++
			}
		}
		if tok.spec.hasArgument && arg2 == "" {
			errs = append(errs, w.panicf("missing argument for %s", tok.option))
			continue
		}

		switch tok.spec.typ {
		case optUnsupported:
			errs = append(errs, w.panicf("Unsupported compiler argument %s", tok.option))
			continue
		case optUnhandled:
			errs = append(errs, w.panicf("unhandled compiler argument %s", tok.option))
			continue
		case optIgnored:
			continue
		case optLibraryPath:
			parts := strings.SplitN(arg2, "=", 2)
			kind := ""
			if len(parts) == 2 {
				kind = parts[0]
			}
			path := parts[len(parts)-1]
			if kind == "" || kind == "native" || kind == "all" {
				staticLibPaths = append(staticLibPaths, path)
			}
			continue
		case optLibrary:
			parts := strings.SplitN(arg2, "=", 2)
			kind := ""
			if len(parts) == 2 {
				kind = parts[0]
			}
			if kind == "static" {
				staticLibNames = append(staticLibNames, parts[len(parts)-1])
			}
		case optCrateType:
			if !(crateTypeRlib && crateTypeStaticLib) {
				for _, t := range strings.Split(arg2, ",") {
					if t == "lib" || t == "rlib" {
						crateTypeRlib = true
					}
					if t == "staticlib" {
						crateTypeStaticLib = true
					}
				}
			}
		case optCrateName:
			crateName = arg2
			w.crateName = arg2
		case optEmit:
			if len(emit) != 0 {
				errs = append(errs, w.panicf("cannot handle more than one --emit"))
				continue
			}
			emit = strings.Split(arg2, ",")
			sort.Strings(emit)
		case optCodeGen:
			parts := strings.SplitN(arg2, "=", 2)
			name := parts[0]
			if name == "extra-filename" {
				if len(parts) < 2 || parts[1] == "" {
					errs = append(errs, w.panicf("can't cache extra-filename"))
					continue
				}
				extraFilename = parts[1]
			}
			if name == "incremental" {
				errs = append(errs, w.panicf("can't cache incremental builds"))
				continue
			}
		case optOutDir:
			outputDir = arg2
			continue
		case optTarget:
			if filepath.Ext(arg2) == ".json" {
				errs = append(errs, w.panicf("can't cache target %s", arg2))
				continue
			}
		case optExtern:
			parts := strings.SplitN(arg2, "=", 2)
			if len(parts) == 2 && parts[1] != "" {
				externs = append(externs, absFromCwd(w.env, parts[1]))
			}
			continue
		case optResponseFile:
			errs = append(errs, w.panicf("cannot handle response file %s", tok.option))
			continue
		case optPath:
			if input != "" {
				errs = append(errs, w.panicf("cannot handle multiple inputs %s", tok.option))
				continue
			}
			input = tok.option
		}

		relevantArgs = append(relevantArgs, tok.option)
		if arg2 != "" {
			relevantArgs = append(relevantArgs, arg2)
		}
	}

	if input == "" {
		errs = append(errs, w.panicf("input file required to cache cargo/rustc compilation"))
	}
	requiredEmit := map[string]bool{"link": true, "metadata": true}
	allowedEmit := map[string]bool{"dep-info": true, "link": true, "metadata": true}
	hasRequired := len(emit) > 0
	for name := range requiredEmit {
		found := false
		for _, e := range emit {
			if e == name {
				found = true
			}
		}
		hasRequired = hasRequired && found
	}
	for _, e := range emit {
		if !allowedEmit[e] {
			hasRequired = false
		}
	}
	if !hasRequired {
		errs = append(errs, w.panicf("--emit required to cache cargo/rustc compilation"))
	}
	if outputDir == "" {
		errs = append(errs, w.panicf("--out-dir required to cache cargo/rustc compilation"))
	}
	if crateName == "" {
		errs = append(errs, w.panicf("--crate-name required to cache cargo/rustc compilation"))
	}
	if !crateTypeRlib && !crateTypeStaticLib {
		errs = append(errs, w.panicf("--crate-type required to cache cargo/rustc compilation"))
	}

	var staticLibraries []string
	for _, name := range staticLibNames {
		for _, path := range staticLibPaths {
			for _, candidate := range []string{
				filepath.Join(path, "lib"+name+".a"),
				filepath.Join(path, name+".lib"),
				filepath.Join(path, name+".a"),
			} {
				if exists, _ := fsutil.Exists(w.fs, candidate); exists {
					staticLibraries = append(staticLibraries, candidate)
				}
			}
		}
	}
	sort.Strings(staticLibraries)
	sort.Strings(externs)

	if hasEmit(emit, "dep-info") {
		depInfo = crateName + extraFilename + ".d"
	}

	w.relevantArgs = relevantArgs
	w.outputDir = outputDir
	w.externs = externs
	w.staticLibraries = staticLibraries
	w.crateName = crateName
	w.depInfo = depInfo
	w.emit = emit
	w.input = input

	return errs.OrNil()
}

func hasEmit(emit []string, name string) bool {
	for _, e := range emit {
		if e == name {
			return true
		}
	}
	return false
}

func absFromCwd(env envutil.Env, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if cwd, ok := env.Get("PWD"); ok && cwd != "" {
		return filepath.Join(cwd, p)
	}
	return p
}

// Capabilities declares ForceDirectMode (rustc's invocation shape defeats
// preprocessed-mode hashing), HardLinks (rustc never overwrites an
// existing output file in place), and WorkDirRelevant (rustc bakes the
// invoking directory into debug info and relative-path diagnostics).
func (w *Wrapper) Capabilities() wrapper.CapabilitySet {
	return wrapper.NewCapabilitySet(wrapper.ForceDirectMode, wrapper.HardLinks, wrapper.WorkDirRelevant)
}

// WorkingDirectory returns the process's current working directory, read
// from PWD the same way the rest of this wrapper resolves relative paths.
func (w *Wrapper) WorkingDirectory() (string, error) {
	cwd, _ := w.env.Get("PWD")
	return cwd, nil
}

func (w *Wrapper) runRustc(args []string) (procexec.Result, error) {
	guard := envutil.ScopedUnsetAll(w.env, sandboxedEnvDenylist...)
	defer guard.Close()
	return w.run.Run(procexec.Command{Path: w.exe, Args: args}, nil)
}

// ProgramID hashes the hash-format version, rustc's "-vV" version string,
// every shared library rustc's own sysroot would load, and every static
// library named on the command line (by name and content). The working
// directory is not hashed here: Capabilities declares WorkDirRelevant, so
// the orchestrator folds it into its own fingerprint segment (segment C)
// instead of mixing it into the program identity.
func (w *Wrapper) ProgramID() (string, error) {
	h := hasher.New()
	h.UpdateString(hashVersion)

	res, err := w.runRustc([]string{"-vV"})
	if err != nil {
		return "", fmt.Errorf("rust: version probe: %w", err)
	}
	h.Update(res.Stdout)

	sysrootRes, err := w.runRustc([]string{"--print=sysroot"})
	if err != nil {
		return "", fmt.Errorf("rust: sysroot probe: %w", err)
	}
	sysroot := strings.TrimSpace(string(sysrootRes.Stdout))

	libDir := filepath.Join(sysroot, "lib")
	dllExt := ".so"
	if runtime.GOOS == "windows" {
		libDir = filepath.Join(sysroot, "bin")
		dllExt = ".dll"
	}

	// Not every sysroot ships a lib/bin directory (some minimal or
	// cross-compiled toolchains don't); that's not an error, just nothing
	// further to hash.
	if isDir, _ := fsutil.IsDir(w.fs, libDir); isDir {
		var sharedLibs []string
		if err := fsutil.WalkExtension(w.fs, libDir, dllExt, func(path string) error {
			sharedLibs = append(sharedLibs, path)
			return nil
		}); err != nil {
			return "", fmt.Errorf("rust: enumerate compiler shared libraries: %w", err)
		}
		sort.Strings(sharedLibs)
		for _, lib := range sharedLibs {
			if err := h.UpdateFileDeterministic(w.fs, lib); err != nil {
				return "", fmt.Errorf("rust: hash compiler shared library %s: %w", lib, err)
			}
		}
	}

	for _, lib := range w.staticLibraries {
		h.UpdateString(lib)
		if err := h.UpdateFileDeterministic(w.fs, lib); err != nil {
			return "", fmt.Errorf("rust: hash static library %s: %w", lib, err)
		}
	}

	return h.Finalize(), nil
}

// RelevantArguments returns the option/value pairs collected by
// ResolveArgs, excluding everything whose effect is captured elsewhere
// (library search paths, extern targets, output directory).
func (w *Wrapper) RelevantArguments() arglist.List {
	return arglist.List(w.relevantArgs)
}

// RelevantEnvVars triggers the dep-info probe (shared with
// ImplicitInputFiles) and returns the CARGO_* and #env-dep: variables it
// discovers.
func (w *Wrapper) RelevantEnvVars() map[string]string {
	_ = w.probeDepInfo()
	return w.relevantEnv
}

// InputFiles returns the single source input plus every extern library
// named on the command line.
func (w *Wrapper) InputFiles() []string {
	return append([]string{w.input}, w.externs...)
}

// ImplicitInputFiles triggers the dep-info probe (shared with
// RelevantEnvVars) and returns the header/module dependencies it found.
func (w *Wrapper) ImplicitInputFiles() ([]string, error) {
	if err := w.probeDepInfo(); err != nil {
		return nil, err
	}
	return w.implicitFiles, nil
}

// probeDepInfo runs rustc once with --emit=dep-info (in place of whatever
// --emit/--out-dir/-C options were given) and parses the resulting .d file
// for implicit source dependencies (first line) and "# env-dep:" entries
// (remaining lines), then folds in every CARGO_* variable from the
// process environment. Only actually probes once; RelevantEnvVars runs
// before ImplicitInputFiles in the fixed hook order and cannot return an
// error itself, so a failure here is cached in depsProbeErr and reported
// by whichever hook is asked next that can surface it.
func (w *Wrapper) probeDepInfo() error {
	if w.depsProbed {
		return w.depsProbeErr
	}
	w.depsProbed = true
	if err := w.doProbeDepInfo(); err != nil {
		w.depsProbeErr = err
		return err
	}
	return nil
}

func (w *Wrapper) doProbeDepInfo() error {
	tmpPath, remove, err := fsutil.TempFile(w.fs, ".", "buildcache-rust-dep", ".d")
	if err != nil {
		return fmt.Errorf("rust: create dep-info temp file: %w", err)
	}
	defer remove()

	var filtered []string
	skipNext := false
	for _, a := range w.argv {
		if skipNext {
			skipNext = false
			continue
		}
		if a == "--emit" || a == "--out-dir" || a == "-C" {
			skipNext = true
			continue
		}
		if strings.HasPrefix(a, "--emit=") || strings.HasPrefix(a, "--out-dir=") || strings.HasPrefix(a, "-C") {
			continue
		}
		filtered = append(filtered, a)
	}
	filtered = append(filtered, "-o", tmpPath, "--emit=dep-info")

	res, err := w.runRustc(filtered)
	if err != nil {
		return fmt.Errorf("rust: dep-info probe: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("rust: dep-info probe exited %d", res.ExitCode)
	}

	data, err := afero.ReadFile(w.fs, tmpPath)
	if err != nil {
		return fmt.Errorf("rust: read dep-info: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil
	}

	var implicit []string
	fields := strings.Fields(lines[0])
	if len(fields) > 1 {
		implicit = append(implicit, fields[1:]...)
	}

	relevantEnv := make(map[string]string)
	for _, line := range lines[1:] {
		const envDepPrefix = "# env-dep:"
		if !strings.HasPrefix(line, envDepPrefix) {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(line, envDepPrefix), "=", 2)
		name := kv[0]
		if name == "RUSTC_COLOR" || name == "CARGO_MAKEFLAGS" {
			continue
		}
		value := ""
		if len(kv) > 1 {
			value = kv[1]
		}
		relevantEnv[name] = value
	}

	for _, kv := range w.env.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if !strings.HasPrefix(parts[0], "CARGO_") || parts[0] == "CARGO_MAKEFLAGS" {
			continue
		}
		value := ""
		if len(parts) > 1 {
			value = parts[1]
		}
		relevantEnv[parts[0]] = value
	}

	sort.Strings(implicit)
	w.implicitFiles = implicit
	w.relevantEnv = relevantEnv
	return nil
}

// BuildFiles asks rustc for the exact output file names via "--print
// file-names" (the only reliable way to learn the library's platform-
// specific extension), adds the matching .rmeta files when metadata is
// emitted, and adds the dep-info file when requested.
func (w *Wrapper) BuildFiles() map[string]wrapper.ExpectedFile {
	res, err := w.runRustc(append(append([]string{}, w.argv...), "--print", "file-names"))
	if err != nil || res.ExitCode != 0 {
		return nil
	}

	var files []string
	for _, line := range strings.Split(string(res.Stdout), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}

	if hasEmit(w.emit, "metadata") {
		seen := make(map[string]bool)
		for _, f := range files {
			seen[f] = true
		}
		var metadata []string
		for _, f := range files {
			if filepath.Ext(f) == ".rlib" {
				rmeta := fsutil.ChangeExtension(f, ".rmeta")
				if !seen[rmeta] {
					metadata = append(metadata, rmeta)
					seen[rmeta] = true
				}
			}
		}
		files = append(files, metadata...)
	}

	if hasEmit(w.emit, "dep-info") && w.depInfo != "" {
		files = append(files, w.depInfo)
	}

	out := make(map[string]wrapper.ExpectedFile, len(files))
	for _, f := range files {
		out[f] = wrapper.ExpectedFile{Path: filepath.Join(w.outputDir, f), Required: true}
	}
	return out
}

// PreprocessSource is never called: Capabilities declares ForceDirectMode,
// so the orchestrator always uses direct-mode hashing for rustc.
func (w *Wrapper) PreprocessSource() ([]byte, error) {
	return nil, fmt.Errorf("rust: PreprocessSource called despite ForceDirectMode")
}
