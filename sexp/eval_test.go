// Copyright 2025 The Taskrt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sexp

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrivas-oss/taskrt/core"
	"github.com/mrivas-oss/taskrt/template"
	"github.com/mrivas-oss/taskrt/tool"
)

// recordingRunner captures every SubtaskRequest and returns a canned
// COMPLETE result echoing the request name.
type recordingRunner struct {
	requests []*core.SubtaskRequest
}

func (r *recordingRunner) Execute(_ context.Context, req *core.SubtaskRequest) *core.TaskResult {
	r.requests = append(r.requests, req)
	return &core.TaskResult{
		Status:  core.StatusComplete,
		Content: "ran:" + req.Name,
		Notes:   core.Notes{"template_used": req.Name},
	}
}

func newTestEvaluator(t *testing.T) (*Evaluator, *recordingRunner) {
	t.Helper()
	templates := template.NewRegistry()
	require.NoError(t, templates.Register(&template.Template{
		Name: "summarize", Type: "atomic",
		Params:       []template.Param{{Name: "text"}, {Name: "style"}},
		Instructions: "Summarize {{text}} as {{style}}",
	}))

	tools := tool.NewRegistry()
	require.NoError(t, tools.Register("upcase", tool.Entry{
		Schema: tool.Schema{Name: "upcase", Description: "uppercase"},
		Kind:   tool.KindDirect,
		Executor: func(_ context.Context, args map[string]any) (string, error) {
			s, _ := args["text"].(string)
			out := ""
			for _, r := range s {
				if r >= 'a' && r <= 'z' {
					r -= 32
				}
				out += string(r)
			}
			return out, nil
		},
	}))

	runner := &recordingRunner{}
	return New(Config{Templates: templates, Tools: tools, Runner: runner}), runner
}

func evalOK(t *testing.T, ev *Evaluator, src string) Value {
	t.Helper()
	v, err := ev.EvalString(context.Background(), src)
	require.NoError(t, err, src)
	return v
}

func evalErr(t *testing.T, ev *Evaluator, src string) *Error {
	t.Helper()
	_, err := ev.EvalString(context.Background(), src)
	require.Error(t, err, src)
	e, ok := err.(*Error)
	require.True(t, ok, "expected an evaluation error for %s, got %T", src, err)
	return e
}

func TestEval_Arithmetic(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	assert.Equal(t, float64(7), evalOK(t, ev, "(+ 3 4)"))
	assert.Equal(t, float64(6), evalOK(t, ev, "(* 1 2 3)"))
	assert.Equal(t, float64(-5), evalOK(t, ev, "(- 5)"))
	assert.Equal(t, 2.5, evalOK(t, ev, "(/ 5 2)"))
	assert.Equal(t, true, evalOK(t, ev, "(< 1 2)"))
	assert.Equal(t, false, evalOK(t, ev, "(= 1 2)"))
}

func TestEval_LetAndClosure(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	// S5 from the design scenarios.
	assert.Equal(t, float64(15), evalOK(t, ev, "(let ((n 10)) ((lambda (x) (+ x n)) 5))"))
}

func TestEval_ClosureSeesDefiningEnvironment(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	// The closure captures n=1 lexically; the calling environment's
	// n=99 must not leak in.
	src := `
(progn
  (bind make-adder (lambda (n) (lambda (x) (+ x n))))
  (bind add1 (make-adder 1))
  (let ((n 99)) (add1 10)))`
	assert.Equal(t, float64(11), evalOK(t, ev, src))
}

func TestEval_LetIsParallel(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	// Both init expressions see the outer x, not each other.
	src := `
(progn
  (bind x 1)
  (let ((x 2) (y x)) y))`
	assert.Equal(t, float64(1), evalOK(t, ev, src))
}

func TestEval_IfTruthiness(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	assert.Equal(t, "yes", evalOK(t, ev, `(if 1 "yes" "no")`))
	assert.Equal(t, "no", evalOK(t, ev, `(if 0 "yes" "no")`))
	assert.Equal(t, "no", evalOK(t, ev, `(if "" "yes" "no")`))
	assert.Equal(t, "no", evalOK(t, ev, `(if nil "yes" "no")`))
	assert.Equal(t, Nil, evalOK(t, ev, `(if false "yes")`))
}

func TestEval_QuoteAndList(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	assert.Equal(t, Symbol("foo"), evalOK(t, ev, "(quote foo)"))
	assert.Equal(t, List{float64(1), float64(2)}, evalOK(t, ev, "(list 1 2)"))
	assert.Equal(t, Nil, evalOK(t, ev, "(list)"))
}

func TestEval_Loop(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	src := `
(progn
  (bind counter 0)
  (loop 4 (bind counter (+ counter 1)))
  counter)`
	assert.Equal(t, float64(4), evalOK(t, ev, src))

	assert.Equal(t, Nil, evalOK(t, ev, "(loop 0 (+ 1 1))"))

	e := evalErr(t, ev, "(loop -1 (+ 1 1))")
	assert.Equal(t, core.ReasonInputValidationFailure, e.Reason)
	e = evalErr(t, ev, `(loop "three" (+ 1 1))`)
	assert.Equal(t, core.ReasonInputValidationFailure, e.Reason)
}

func TestEval_Progn(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	assert.Equal(t, float64(3), evalOK(t, ev, "(progn 1 2 3)"))
	assert.Equal(t, Nil, evalOK(t, ev, "(progn)"))
}

func TestEval_Errors(t *testing.T) {
	ev, _ := newTestEvaluator(t)

	e := evalErr(t, ev, "(nonexistent-op 1 2)")
	assert.Equal(t, core.ReasonUndefinedOperator, e.Reason)

	e = evalErr(t, ev, "some-unbound-symbol")
	assert.Equal(t, core.ReasonUnboundSymbol, e.Reason)

	e = evalErr(t, ev, "((lambda (x) x) 1 2)")
	assert.Equal(t, core.ReasonArityMismatch, e.Reason)
}

func TestEval_TaskInvocationNamedArgs(t *testing.T) {
	ev, runner := newTestEvaluator(t)
	v := evalOK(t, ev, `(summarize (text "the body") (style "short"))`)

	res, ok := v.(*core.TaskResult)
	require.True(t, ok)
	assert.Equal(t, "ran:summarize", res.Content)

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, "summarize", req.Name)
	assert.Equal(t, "the body", req.Inputs["text"])
	assert.Equal(t, "short", req.Inputs["style"])
}

func TestEval_TaskInvocationPositionalArgs(t *testing.T) {
	ev, runner := newTestEvaluator(t)
	evalOK(t, ev, `(summarize "the body" "short")`)

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, "the body", req.Inputs["text"])
	assert.Equal(t, "short", req.Inputs["style"])
}

func TestEval_ReservedFilesAndContextArgs(t *testing.T) {
	ev, runner := newTestEvaluator(t)
	src := `(summarize
  (text "body")
  (style "short")
  (files (list "/tmp/a.go" "/tmp/b.go"))
  (context (inherit_context none) (fresh_context enabled)))`
	evalOK(t, ev, src)

	require.Len(t, runner.requests, 1)
	req := runner.requests[0]
	assert.Equal(t, []string{"/tmp/a.go", "/tmp/b.go"}, req.FilePaths)
	require.NotNil(t, req.ContextMgmt)
	assert.Equal(t, core.InheritNone, *req.ContextMgmt.InheritContext)
	assert.Equal(t, core.FreshEnabled, *req.ContextMgmt.FreshContext)
	// Reserved args never become inputs.
	assert.NotContains(t, req.Inputs, "files")
	assert.NotContains(t, req.Inputs, "context")
}

func TestEval_FailedTaskResultIsAValue(t *testing.T) {
	templates := template.NewRegistry()
	require.NoError(t, templates.Register(&template.Template{
		Name: "flaky", Type: "atomic", Params: nil, Instructions: "x",
	}))
	runner := &failingRunner{}
	ev := New(Config{Templates: templates, Tools: tool.NewRegistry(), Runner: runner})

	v := evalOK(t, ev, `(if (= 1 1) (flaky) "skipped")`)
	res, ok := v.(*core.TaskResult)
	require.True(t, ok)
	assert.Equal(t, core.StatusFailed, res.Status)
}

type failingRunner struct{}

func (failingRunner) Execute(context.Context, *core.SubtaskRequest) *core.TaskResult {
	return core.Failed(core.ReasonUnexpectedError, "boom", nil)
}

func TestEval_DirectToolInvocation(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	assert.Equal(t, "HELLO", evalOK(t, ev, `(upcase (text "hello"))`))
}

func TestEval_Defatom(t *testing.T) {
	ev, runner := newTestEvaluator(t)
	src := `
(progn
  (defatom greet
    (params (who string))
    (instructions "Greet {{who}} warmly.")
    (description "greets someone"))
  (greet (who "ada")))`
	v := evalOK(t, ev, src)

	res, ok := v.(*core.TaskResult)
	require.True(t, ok)
	assert.Equal(t, "ran:greet", res.Content)
	require.Len(t, runner.requests, 1)
	assert.Equal(t, "ada", runner.requests[0].Inputs["who"])
}

func TestEval_DefatomValidatesPlaceholders(t *testing.T) {
	ev, _ := newTestEvaluator(t)
	e := evalErr(t, ev, `(defatom broken (params (x string)) (instructions "{{y}}"))`)
	assert.Equal(t, core.ReasonInputValidationFailure, e.Reason)
	assert.Contains(t, e.Message, "y")
}

func TestEval_GetContext(t *testing.T) {
	templates := template.NewRegistry()
	tools := tool.NewRegistry()
	m := &pathMatcher{paths: []string{"/src/a.go", "/src/b.go"}}
	ev := New(Config{Templates: templates, Tools: tools, Runner: &recordingRunner{}, Matcher: m})

	v := evalOK(t, ev, `(get_context (query "auth middleware"))`)
	assert.Equal(t, List{"/src/a.go", "/src/b.go"}, v)
	assert.Equal(t, "auth middleware", m.lastQuery.Query)
}

type pathMatcher struct {
	paths     []string
	lastQuery core.MatchQuery
}

func (m *pathMatcher) Match(_ context.Context, q core.MatchQuery) (*core.AssociativeMatchResult, error) {
	m.lastQuery = q
	items := make([]core.MatchItem, len(m.paths))
	for i, p := range m.paths {
		items[i] = core.MatchItem{SourcePath: p, RelevanceScore: 1 - float64(i)*0.1}
	}
	return &core.AssociativeMatchResult{Matches: items}, nil
}

func TestEval_Determinism(t *testing.T) {
	// Same program, fresh evaluator: identical value and identical
	// request stream.
	var firstReqs string
	for i := 0; i < 3; i++ {
		ev, runner := newTestEvaluator(t)
		v := evalOK(t, ev, `(progn (summarize "a" "b") (summarize "c" "d") (+ 1 2))`)
		assert.Equal(t, float64(3), v)
		reqs := ""
		for _, req := range runner.requests {
			reqs += fmt.Sprintf("%+v\n", *req)
		}
		if firstReqs == "" {
			firstReqs = reqs
		} else {
			assert.Equal(t, firstReqs, reqs)
		}
	}
}
