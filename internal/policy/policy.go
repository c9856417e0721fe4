// Package policy loads the audit reference data: the expected tool catalog,
// the critical-field list, the outlier monitors, and the completeness
// floor. Policies are CUE files; a vetted default ships embedded in the
// binary so the pipeline runs without any flags.
package policy

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/quarrylabs/quarry/internal/source"
)

//go:embed default.cue
var defaultCUE string

// Monitor flags one numeric field for outlier detection. Values deviating
// from the field mean by strictly more than MaxSigma population standard
// deviations are reported.
type Monitor struct {
	Field    string  `json:"field"`
	MaxSigma float64 `json:"max_sigma"`
}

// Policy is the static reference the Quality Auditor reads. It never
// changes during a run.
type Policy struct {
	Catalog struct {
		Tools []string `json:"tools"`
	} `json:"catalog"`
	Critical struct {
		Fields []string `json:"fields"`
	} `json:"critical"`
	Outliers struct {
		Monitors []Monitor `json:"monitors"`
	} `json:"outliers"`
	Completeness struct {
		MinRatio float64 `json:"min_ratio"`
	} `json:"completeness"`
}

// Error is a policy load or validation failure, carrying the CUE source
// position when one is known.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: policy: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return "policy: " + e.Message
}

// Load reads and validates a policy. An empty path loads the embedded
// default.
func Load(path string) (*Policy, error) {
	if path == "" {
		return parse(defaultCUE, "default.cue")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("reading %s: %v", path, err)}
	}
	return parse(string(data), path)
}

func parse(src, filename string) (*Policy, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(src, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, cueError("compiling policy", err)
	}

	var p Policy
	if err := val.Decode(&p); err != nil {
		return nil, cueError("decoding policy", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// validate enforces shape. Whether the named fields actually exist on the
// integrated table is checked by the auditor, which owns the column set.
func (p *Policy) validate() error {
	if len(p.Catalog.Tools) == 0 {
		return &Error{Message: "catalog.tools must list at least one tool"}
	}
	seen := make(map[string]bool, len(p.Catalog.Tools))
	for i, tool := range p.Catalog.Tools {
		canon := source.NormalizeToolID(tool)
		if canon == "" {
			return &Error{Message: fmt.Sprintf("catalog.tools[%d] is empty", i)}
		}
		if seen[canon] {
			return &Error{Message: fmt.Sprintf("catalog.tools[%d] duplicates %q", i, canon)}
		}
		seen[canon] = true
		p.Catalog.Tools[i] = canon
	}

	if len(p.Critical.Fields) == 0 {
		return &Error{Message: "critical.fields must list at least one field"}
	}
	for i, f := range p.Critical.Fields {
		if f == "" {
			return &Error{Message: fmt.Sprintf("critical.fields[%d] is empty", i)}
		}
	}

	for i, m := range p.Outliers.Monitors {
		if m.Field == "" {
			return &Error{Message: fmt.Sprintf("outliers.monitors[%d]: field is required", i)}
		}
		if m.MaxSigma <= 0 {
			return &Error{Message: fmt.Sprintf("outliers.monitors[%d]: max_sigma must be positive, got %v", i, m.MaxSigma)}
		}
	}

	if p.Completeness.MinRatio < 0 || p.Completeness.MinRatio > 1 {
		return &Error{Message: fmt.Sprintf("completeness.min_ratio must be within [0, 1], got %v", p.Completeness.MinRatio)}
	}
	return nil
}

// ExpectedTools returns the catalog as a set of canonical tool ids.
func (p *Policy) ExpectedTools() map[string]bool {
	set := make(map[string]bool, len(p.Catalog.Tools))
	for _, t := range p.Catalog.Tools {
		set[t] = true
	}
	return set
}

func cueError(context string, err error) *Error {
	pos := token.NoPos
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		pos = positions[0]
	}
	return &Error{
		Message: fmt.Sprintf("%s: %v", context, err),
		Pos:     pos,
	}
}
