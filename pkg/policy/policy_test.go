package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/policy"
)

const lengthPolicy = `package nova.inbound

deny contains msg if {
	count(input.text) > 10
	msg := "text too long"
}

deny contains msg if {
	input.user_id == "banned"
	msg := "user is banned"
}
`

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	p, err := policy.New(ctx, map[string]string{"length.rego": lengthPolicy})
	gt.NoError(t, err)

	testCases := []struct {
		name   string
		input  policy.Input
		denied bool
	}{
		{"short text is admitted", policy.Input{ChatID: "c1", UserID: "u1", Text: "hello"}, false},
		{"long text is denied", policy.Input{ChatID: "c1", UserID: "u1", Text: "hello hello hello"}, true},
		{"banned user is denied", policy.Input{ChatID: "c1", UserID: "banned", Text: "hi"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.Evaluate(ctx, tc.input)
			if tc.denied {
				gt.Error(t, err)
				gt.True(t, goerr.HasTag(err, model.ErrTagPolicyDenied))
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestEvaluateWithoutDenyRule(t *testing.T) {
	ctx := context.Background()
	p, err := policy.New(ctx, map[string]string{"empty.rego": "package nova.inbound\n\nallow := true\n"})
	gt.NoError(t, err)
	gt.NoError(t, p.Evaluate(ctx, policy.Input{Text: "anything"}))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("empty directory yields no policy", func(t *testing.T) {
		p, err := policy.Load(ctx, t.TempDir())
		gt.NoError(t, err)
		gt.Nil(t, p)
	})

	t.Run("loads rego files", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "length.rego"), []byte(lengthPolicy), 0600))

		p, err := policy.Load(ctx, dir)
		gt.NoError(t, err)
		gt.NotNil(t, p)
		gt.Error(t, p.Evaluate(ctx, policy.Input{Text: "this is far too long"}))
	})

	t.Run("invalid rego", func(t *testing.T) {
		dir := t.TempDir()
		gt.NoError(t, os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package nova.inbound\n\ndeny contains"), 0600))

		_, err := policy.Load(ctx, dir)
		gt.Error(t, err)
	})
}
