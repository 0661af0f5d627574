// Package cppcheck implements the wrapper.Wrapper for the Cppcheck static
// analyzer, translating the original C++ cppcheck_wrapper's arg-pair
// parsing and supported-argument allowlist.
package cppcheck

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/mbitsnbites/buildcache-go/internal/arglist"
	"github.com/mbitsnbites/buildcache-go/internal/envutil"
	"github.com/mbitsnbites/buildcache-go/internal/procexec"
	"github.com/mbitsnbites/buildcache-go/internal/wrapper"
)

// hashVersion is bumped when the argument-classification rules change in a
// non-backwards-compatible way.
const hashVersion = "1"

var sourceExtensions = map[string]bool{
	".cpp": true, ".cxx": true, ".cc": true, ".c++": true, ".c": true,
	".ipp": true, ".ixx": true, ".tpp": true, ".txx": true,
}

func isSourceFile(arg string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(arg))]
}

// twoPartArgs take their value as the following argv token, or glued
// directly onto the flag ("-Ifoo" as well as "-I" "foo").
var twoPartArgs = map[string]bool{
	"-D": true, "-U": true, "-I": true, "-i": true, "-j": true, "-l": true,
}

// supportedArgs is the allowlist of flags Cppcheck caching understands; an
// argument outside this set (and not a source file) aborts caching rather
// than silently mis-hashing an option it does not know the effect of.
var supportedArgs = map[string]bool{
	"--check-level":             true,
	"--check-library":           true,
	"--disable":                 true,
	"-D":                        true,
	"--enable":                  true,
	"--error-exitcode":          true,
	"--exitcode-suppressions":   true,
	"--file-filter":             true,
	"-f":                        true,
	"--force":                   true,
	"--fsigned-char":            true,
	"--funsigned-char":          true,
	"-I":                        true,
	"-i":                        true,
	"--inconclusive":            true,
	"--inline-suppr":            true,
	"--language":                true,
	"--max-configs":             true,
	"--max-ctu-depth":           true,
	"--output-file":             true,
	"--platform":                true,
	"--premium":                 true,
	"-q":                        true,
	"--quiet":                   true,
	"-rp":                       true,
	"--relative-paths":          true,
	"--rule":                    true,
	"--showtime":                true,
	"--std":                     true,
	"--suppress":                true,
	"--template":                true,
	"--template-location":       true,
	"-U":                        true,
	"-v":                        true,
	"--verbose":                 true,
	"--xml":                     true,
}

func isSupportedArg(arg string) bool {
	return supportedArgs[arg] || isSourceFile(arg)
}

// argPair is one parsed argv token: a flag with an optional value, and
// whether the two were written as "flag=value" (equalSeparator) as opposed
// to "flag value" or glued "flagvalue".
type argPair struct {
	arg            string
	opt            string
	equalSeparator bool
}

// get reconstructs the original token(s) for re-invoking Cppcheck.
func (p argPair) get() []string {
	if p.equalSeparator {
		return []string{p.arg + "=" + p.opt}
	}
	if p.opt == "" {
		return []string{p.arg}
	}
	return []string{p.arg, p.opt}
}

// Wrapper implements wrapper.Wrapper for Cppcheck.
type Wrapper struct {
	exe  string
	argv []string
	env  envutil.Env
	fs   afero.Fs // unused: preprocessed-mode hashing needs no filesystem probing, kept for Factory parity
	run  procexec.Runner

	resolved bool
	argPairs []argPair
}

// New constructs a Cppcheck wrapper for one invocation.
func New(exe string, argv []string, env envutil.Env, fs afero.Fs, run procexec.Runner) *Wrapper {
	return &Wrapper{exe: exe, argv: argv, env: env, fs: fs, run: run}
}

var _ wrapper.Wrapper = (*Wrapper)(nil)

// CanHandleCommand matches any executable whose basename contains
// "cppcheck", mirroring the original's substring match (which tolerates
// "cppcheck-2.13" style versioned binaries).
func (w *Wrapper) CanHandleCommand() bool {
	return strings.Contains(strings.ToLower(filepath.Base(w.exe)), "cppcheck")
}

// ResolveArgs groups argv into flag/value pairs (two-part, glued, or
// "flag=value"), then verifies every flag it found is on the supported
// allowlist.
func (w *Wrapper) ResolveArgs() error {
	if w.resolved {
		return nil
	}
	w.resolved = true

	var pairs []argPair
	i := 0
	for i < len(w.argv) {
		arg := w.argv[i]
		if twoPartArgs[arg] && i+1 < len(w.argv) {
			pairs = append(pairs, argPair{arg: arg, opt: w.argv[i+1]})
			i += 2
			continue
		}
		if len(arg) >= 2 && twoPartArgs[arg[:2]] {
			pairs = append(pairs, argPair{arg: arg[:2], opt: arg[2:]})
			i++
			continue
		}
		if eq := strings.IndexByte(arg, '='); eq >= 0 {
			pairs = append(pairs, argPair{arg: arg[:eq], opt: arg[eq+1:], equalSeparator: true})
			i++
			continue
		}
		pairs = append(pairs, argPair{arg: arg})
		i++
	}

	var errs wrapper.ParseErrors
	outputFiles := 0
	for _, p := range pairs {
		if !isSupportedArg(p.arg) {
			errs = append(errs, wrapper.NewUserErrorf("", "unsupported argument: %s", strings.Join(p.get(), " ")))
		}
		if p.arg == "--output-file" {
			outputFiles++
		}
	}
	if outputFiles > 1 {
		errs = append(errs, wrapper.NewUserErrorf("", "only a single output file can be specified"))
	}

	w.argPairs = pairs
	return errs.OrNil()
}

// Capabilities returns the empty set: Cppcheck analysis is always hashed
// in preprocessed mode.
func (w *Wrapper) Capabilities() wrapper.CapabilitySet {
	return wrapper.NewCapabilitySet()
}

// ProgramID runs "cppcheck --version" and prefixes the output with the
// hash-format version.
func (w *Wrapper) ProgramID() (string, error) {
	res, err := w.run.Run(procexec.Command{Path: w.exe, Args: []string{"--version"}}, nil)
	if err != nil {
		return "", fmt.Errorf("cppcheck: --version probe: %w", err)
	}
	return hashVersion + string(res.Stdout), nil
}

// RelevantArguments drops -I/-D/-U (their effect is already captured by
// the preprocessed source) but keeps a bare "--output-file" marker (using
// it changes Cppcheck's output mode even though the path itself does not
// matter), plus the executable's own basename so a rename doesn't silently
// collide fingerprints.
func (w *Wrapper) RelevantArguments() arglist.List {
	out := arglist.List{filepath.Base(w.exe)}
	for _, p := range w.argPairs {
		switch p.arg {
		case "-I", "-D", "-U":
			continue
		case "--output-file":
			out = out.Append("--output-file")
		default:
			out = out.Append(p.get()...)
		}
	}
	return out
}

// RelevantEnvVars is empty: no environment variable is known to affect a
// Cppcheck analysis result.
func (w *Wrapper) RelevantEnvVars() map[string]string {
	return nil
}

// InputFiles returns every source file named on the command line.
func (w *Wrapper) InputFiles() []string {
	var files []string
	for _, p := range w.argPairs {
		if p.opt == "" && isSourceFile(p.arg) {
			files = append(files, p.arg)
		}
	}
	return files
}

// ImplicitInputFiles returns no additional files: preprocessed-mode
// hashing already captures every header Cppcheck would read.
func (w *Wrapper) ImplicitInputFiles() ([]string, error) {
	return nil, nil
}

// BuildFiles returns the single --output-file target, if one was given.
func (w *Wrapper) BuildFiles() map[string]wrapper.ExpectedFile {
	files := make(map[string]wrapper.ExpectedFile)
	for _, p := range w.argPairs {
		if p.arg == "--output-file" {
			files["output_file"] = wrapper.ExpectedFile{Path: p.opt, Required: true}
		}
	}
	return files
}

// WorkingDirectory is never consulted: Capabilities never declares
// WorkDirRelevant for Cppcheck, since its analysis result does not depend
// on the invoking directory.
func (w *Wrapper) WorkingDirectory() (string, error) {
	return "", nil
}

// PreprocessSource re-runs Cppcheck with --output-file dropped and -E
// added, returning its stdout.
func (w *Wrapper) PreprocessSource() ([]byte, error) {
	var args []string
	for _, p := range w.argPairs {
		if p.arg == "--output-file" {
			continue
		}
		args = append(args, p.get()...)
	}
	args = append(args, "-E")

	res, err := w.run.Run(procexec.Command{Path: w.exe, Args: args}, nil)
	if err != nil {
		return nil, fmt.Errorf("cppcheck: preprocess: %w", err)
	}
	return res.Stdout, nil
}
