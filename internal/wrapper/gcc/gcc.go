package gcc

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mbitsnbites/buildcache-go/internal/arglist"
	"github.com/mbitsnbites/buildcache-go/internal/envutil"
	"github.com/mbitsnbites/buildcache-go/internal/procexec"
	"github.com/mbitsnbites/buildcache-go/internal/wrapper"
	"github.com/spf13/afero"
)

// hashVersion is bumped whenever the classification rules below change in
// a way that would make an old fingerprint mean something different.
const hashVersion = "gcc-1"

var basenameMarkers = []string{"gcc", "g++", "clang", "clang++"}

// Wrapper implements wrapper.Wrapper for GCC and Clang, including
// target-triple-prefixed variants (e.g. "x86_64-cros-linux-gnu-clang++"),
// mirroring the teacher's 5-part basename split in newCommandBuilder.
type Wrapper struct {
	exe  string
	argv []string // excludes argv[0]
	env  envutil.Env
	fs   afero.Fs // unused: preprocessed-mode hashing needs no filesystem probing, kept for Factory parity
	run  procexec.Runner

	resolved bool
	// outputPath is the value of -o, if present.
	outputPath string
	// depFile is the value of -MF, if present.
	depFile string
	// depsRequested is true if -MD or -MMD is present.
	depsRequested bool
	inputFiles    []string
}

// New constructs a GCC-family wrapper for one invocation.
func New(exe string, argv []string, env envutil.Env, fs afero.Fs, run procexec.Runner) *Wrapper {
	return &Wrapper{exe: exe, argv: argv, env: env, fs: fs, run: run}
}

var _ wrapper.Wrapper = (*Wrapper)(nil)

// CanHandleCommand reports whether exe's basename looks like a GCC-family
// compiler, including target-triple-prefixed variants.
func (w *Wrapper) CanHandleCommand() bool {
	basename := filepath.Base(w.exe)
	for _, marker := range basenameMarkers {
		if basename == marker || strings.HasSuffix(basename, "-"+marker) {
			return true
		}
	}
	return false
}

// ResolveArgs scans argv once, locating -o, -MF, -MD/-MMD, and the input
// source files.
func (w *Wrapper) ResolveArgs() error {
	if w.resolved {
		return nil
	}
	w.resolved = true

	var errs wrapper.ParseErrors
	i := 0
	for i < len(w.argv) {
		tok := w.argv[i]
		switch tok {
		case "-o":
			if i+1 >= len(w.argv) {
				errs = append(errs, wrapper.NewUserErrorf("", "-o requires an argument"))
				break
			}
			w.outputPath = w.argv[i+1]
			i++
		case "-MF":
			if i+1 >= len(w.argv) {
				errs = append(errs, wrapper.NewUserErrorf("", "-MF requires an argument"))
				break
			}
			w.depFile = w.argv[i+1]
			i++
		case "-MD", "-MMD":
			w.depsRequested = true
		default:
			if strings.HasPrefix(tok, "-o") && tok != "-o" {
				w.outputPath = strings.TrimPrefix(tok, "-o")
			} else if !strings.HasPrefix(tok, "-") && isSourceLike(tok) {
				w.inputFiles = append(w.inputFiles, tok)
			}
		}
		i++
	}
	return errs.OrNil()
}

var sourceExtensions = map[string]bool{
	".c": true, ".cc": true, ".cpp": true, ".cxx": true, ".c++": true,
	".s": true, ".S": true,
}

func isSourceLike(tok string) bool {
	return sourceExtensions[filepath.Ext(tok)]
}

// Capabilities returns the empty set: GCC-family compilation is always
// hashed in preprocessed mode.
func (w *Wrapper) Capabilities() wrapper.CapabilitySet {
	return wrapper.NewCapabilitySet()
}

// ProgramID runs "<compiler> --version" and returns its output prefixed by
// the hash-format version, so an incompatible change to the fingerprint
// scheme invalidates entries even if the compiler's own version string is
// unchanged.
func (w *Wrapper) ProgramID() (string, error) {
	res, err := w.run.Run(procexec.Command{Path: w.exe, Args: []string{"--version"}}, nil)
	if err != nil {
		return "", fmt.Errorf("gcc: --version probe: %w", err)
	}
	return hashVersion + "\x00" + string(res.Stdout), nil
}

// RelevantArguments returns argv minus include/macro/output-path/cosmetic
// tokens, per classify.go's table.
func (w *Wrapper) RelevantArguments() arglist.List {
	return arglist.List(RelevantArguments(w.argv))
}

// RelevantEnvVars is empty for GCC-family compiles: preprocessed-mode
// hashing already captures every macro definition reachable at compile
// time, and GCC/Clang have no equivalent of Rust's CARGO_* build-script
// environment surface.
func (w *Wrapper) RelevantEnvVars() map[string]string {
	return nil
}

// InputFiles returns the source files found on the command line.
func (w *Wrapper) InputFiles() []string {
	return w.inputFiles
}

// ImplicitInputFiles returns no additional files: in preprocessed mode,
// every header the compiler would read is already baked into the bytes
// PreprocessSource returns, so there is nothing further to track.
func (w *Wrapper) ImplicitInputFiles() ([]string, error) {
	return nil, nil
}

// BuildFiles returns the object/assembly output (-o, required) plus the
// dependency file (-MF), required only when dependency generation was
// actually requested.
func (w *Wrapper) BuildFiles() map[string]wrapper.ExpectedFile {
	files := make(map[string]wrapper.ExpectedFile)
	if w.outputPath != "" {
		files["output"] = wrapper.ExpectedFile{Path: w.outputPath, Required: true}
	}
	if w.depFile != "" {
		files["dep"] = wrapper.ExpectedFile{Path: w.depFile, Required: w.depsRequested}
	}
	return files
}

// WorkingDirectory is never consulted: Capabilities never declares
// WorkDirRelevant for GCC-family compiles, since the preprocessed source
// already captures everything the working directory could have affected.
func (w *Wrapper) WorkingDirectory() (string, error) {
	return "", nil
}

// PreprocessSource builds the preprocessor command: the same args with
// -o/-c/-S removed and -E added, then runs it and returns stdout.
func (w *Wrapper) PreprocessSource() ([]byte, error) {
	var args []string
	i := 0
	for i < len(w.argv) {
		tok := w.argv[i]
		switch {
		case tok == "-o":
			i += 2
			continue
		case strings.HasPrefix(tok, "-o") && tok != "-o":
			i++
			continue
		case tok == "-c" || tok == "-S":
			i++
			continue
		default:
			args = append(args, tok)
			i++
		}
	}
	args = append(args, "-E")

	res, err := w.run.Run(procexec.Command{Path: w.exe, Args: args}, nil)
	if err != nil {
		return nil, fmt.Errorf("gcc: preprocess: %w", err)
	}
	return res.Stdout, nil
}
