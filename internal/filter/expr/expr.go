// Package expr implements a filter.Filter backed by github.com/expr-lang/expr:
// a single boolean rule expression, compiled once at construction, is
// evaluated against each metric and log line to decide whether it survives.
// This is cernan's embedded scripting collaborator — the narrow VM contract
// spec'd as process_metric/process_log/tick can be satisfied by any engine,
// and expr-lang gives a real, already-used-in-this-dependency-pack one
// rather than a fabricated binding.
package expr

import (
	"fmt"
	"os"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/cernan/cernan/internal/event"
	"github.com/cernan/cernan/internal/filter"
)

// Filter drops any metric or log line for which the compiled rule
// evaluates to false.
type Filter struct {
	name   string
	source string
	rule   *vm.Program
}

// New reads the rule expression from scriptPath and compiles it as a
// boolean expr-lang program. The rule is evaluated once per metric against
// an environment of `name`, `value`, `kind`, `tags` (and once per log line
// against `path`, `value`, `fields`, `tags`) — the same compile-rule,
// build-environment, run-rule shape cc-backend's job classifier uses for
// its own expr-lang requirements and rule expressions.
func New(name, scriptPath string) (*Filter, error) {
	b, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("expr: read %s: %w", scriptPath, err)
	}
	src := strings.TrimSpace(string(b))
	program, err := expr.Compile(src, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("expr: compile %s: %w", scriptPath, err)
	}
	return &Filter{name: name, source: src, rule: program}, nil
}

func (f *Filter) Name() string { return f.name }

func (f *Filter) Tick(p *filter.Payload) {}

// ProcessMetric drops every metric the rule rejects, in place.
func (f *Filter) ProcessMetric(p *filter.Payload) {
	kept := p.Metrics[:0]
	for _, m := range p.Metrics {
		if f.keep(map[string]any{
			"name":  m.Name,
			"value": m.Value,
			"kind":  m.Kind.String(),
			"tags":  tagMap(m.Tags),
		}) {
			kept = append(kept, m)
		}
	}
	p.Metrics = kept
}

// ProcessLog drops every log line the rule rejects, in place.
func (f *Filter) ProcessLog(p *filter.Payload) {
	kept := p.Logs[:0]
	for _, l := range p.Logs {
		if f.keep(map[string]any{
			"path":   l.Path,
			"value":  l.Name,
			"fields": l.Fields,
			"tags":   tagMap(l.Tags),
		}) {
			kept = append(kept, l)
		}
	}
	p.Logs = kept
}

// keep runs the compiled rule against env, defaulting to true (keep) on a
// runtime evaluation error rather than silently dropping the event.
func (f *Filter) keep(env map[string]any) bool {
	out, err := expr.Run(f.rule, env)
	if err != nil {
		return true
	}
	ok, _ := out.(bool)
	return ok
}

func tagMap(t event.Tags) map[string]string {
	m := make(map[string]string, t.Len())
	t.Range(func(k, v string) { m[k] = v })
	return m
}
