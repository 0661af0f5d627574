// Package rust implements the wrapper.Wrapper for rustc as invoked by
// cargo, translating the option-classification table and sandboxed
// dependency-info probe from the original C++ rust_wrapper, which was
// itself modeled on sccache's Rust support (see sccache's docs/Rust.md for
// the caveats that also apply here).
package rust

import "strings"

// optionType categorizes how one rustc option affects caching.
type optionType int

const (
	optUnsupported optionType = iota // caching must not proceed
	optUnhandled                     // bypass to the real compiler untouched
	optIgnored                      // affects output, but not via content we hash separately
	optLibraryPath
	optLibrary
	optCrateType
	optCrateName
	optEmit
	optCodeGen
	optOutDir
	optTarget
	optExtern
	optResponseFile
	optPath // a bare path: the input source file
)

type optionSpec struct {
	typ         optionType
	hasArgument bool
}

// optionTable mirrors get_option_type's option_specification map.
var optionTable = map[string]optionSpec{
	"-h":                  {optUnhandled, false},
	"--help":              {optUnhandled, false},
	"--cfg":               {optIgnored, true},
	"-L":                  {optLibraryPath, true},
	"-l":                  {optLibrary, true},
	"--crate-type":        {optCrateType, true},
	"--crate-name":        {optCrateName, true},
	"--edition":           {optIgnored, true},
	"--emit":              {optEmit, true},
	"--print":             {optUnhandled, true},
	"-g":                  {optCodeGen, false},
	"-O":                  {optCodeGen, false},
	"-o":                  {optUnsupported, true},
	"--out-dir":           {optOutDir, true},
	"--explain":           {optUnhandled, true},
	"--test":              {optUnhandled, false},
	"--target":            {optTarget, true},
	"-A":                  {optIgnored, true},
	"--allow":             {optIgnored, true},
	"-W":                  {optIgnored, true},
	"--warn":              {optIgnored, true},
	"--force-warn":        {optIgnored, true},
	"-D":                  {optIgnored, true},
	"--deny":              {optIgnored, true},
	"-F":                  {optIgnored, true},
	"--forbid":            {optIgnored, true},
	"--cap-lints":         {optIgnored, true},
	"-C":                  {optCodeGen, true},
	"--codegen":           {optCodeGen, true},
	"-V":                  {optUnhandled, false},
	"--version":           {optUnhandled, false},
	"-v":                  {optIgnored, false},
	"--verbose":           {optIgnored, false},
	"--extern":            {optExtern, true},
	"--sysroot":           {optUnsupported, true},
	"--error-format":      {optIgnored, true},
	"--json":              {optIgnored, true},
	"--color":             {optIgnored, true},
	"--diagnostic-width":  {optIgnored, true},
	"--remap-path-prefix": {optUnsupported, true},
}

// parsedOption is one tokenized argv entry: its classification, and its
// value (for two-part "--opt value", "--opt=value", or glued "-ovalue"
// forms). isResponse is true for a bare "@file" token.
type parsedOption struct {
	option       string
	argument     string
	spec         optionSpec
	isPath       bool
	isResponse   bool
	isBareDash   bool
}

// glueableShortFlags are the single-character short options that may take
// their argument glued on, e.g. "-ofoo.o" as well as "-o" "foo.o".
var glueableShortFlags = map[byte]bool{
	'h': true, 'L': true, 'l': true, 'g': true, 'O': true,
	'o': true, 'A': true, 'W': true, 'D': true, 'F': true, 'C': true, 'V': true, 'v': true,
}

// classifyToken splits one raw argv token into its option name and glued
// argument (if any), without yet consuming the following token for
// two-part forms; parseOptions does that.
func classifyToken(tok string) parsedOption {
	if tok == "-" {
		return parsedOption{option: "-", isBareDash: true, spec: optionSpec{typ: optUnsupported}}
	}
	if strings.HasPrefix(tok, "@") && len(tok) > 1 {
		return parsedOption{option: "@", argument: tok[1:], isResponse: true, spec: optionSpec{typ: optResponseFile}}
	}
	if strings.HasPrefix(tok, "--") {
		if eq := strings.IndexByte(tok, '='); eq >= 0 {
			name := tok[:eq]
			return parsedOption{option: name, argument: tok[eq+1:], spec: lookupSpec(name)}
		}
		return parsedOption{option: tok, spec: lookupSpec(tok)}
	}
	if len(tok) >= 2 && tok[0] == '-' && glueableShortFlags[tok[1]] {
		name := tok[:2]
		rest := tok[2:]
		return parsedOption{option: name, argument: rest, spec: lookupSpec(name)}
	}
	return parsedOption{option: tok, isPath: true, spec: optionSpec{typ: optPath}}
}

func lookupSpec(name string) optionSpec {
	if s, ok := optionTable[name]; ok {
		return s
	}
	return optionSpec{typ: optPath, hasArgument: false}
}
