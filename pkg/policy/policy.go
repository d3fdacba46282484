package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Query is the Rego rule evaluated for every inbound message. It is a set of
// denial reasons; an empty or undefined set admits the message.
const Query = "data.nova.inbound.deny"

// Input is the document passed to the policy as `input`
type Input struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Policy is a prepared admission policy for inbound messages
type Policy struct {
	query *rego.PreparedEvalQuery
}

// Load reads every .rego file in policyDir. It returns nil without error when
// the directory has no policy files.
func Load(ctx context.Context, policyDir string) (*Policy, error) {
	files, err := filepath.Glob(filepath.Join(policyDir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files", goerr.V("dir", policyDir))
	}
	if len(files) == 0 {
		return nil, nil
	}

	modules := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules[file] = string(data)
	}

	return New(ctx, modules)
}

// New prepares a policy from module name to Rego source
func New(ctx context.Context, modules map[string]string) (*Policy, error) {
	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query(Query))

	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		options = append(options, rego.Module(name, modules[name]))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare query", goerr.V("query", Query))
	}

	return &Policy{query: &prepared}, nil
}

// Evaluate returns an error tagged ErrTagPolicyDenied when any deny rule matches
func (p *Policy) Evaluate(ctx context.Context, input Input) error {
	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return goerr.Wrap(err, "failed to evaluate inbound policy")
	}

	var reasons []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			values, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, v := range values {
				reasons = append(reasons, fmt.Sprint(v))
			}
		}
	}

	if len(reasons) > 0 {
		sort.Strings(reasons)
		return goerr.New("inbound message denied by policy",
			goerr.V("reasons", reasons),
			goerr.V("chat_id", input.ChatID),
			goerr.T(model.ErrTagPolicyDenied),
		)
	}

	return nil
}
