package worker

import (
	"context"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/avi3tal/agentrunner/internal/patch"
	"github.com/avi3tal/agentrunner/internal/pipeline"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantType  string
		retryable bool
	}{
		{
			name:      "pipeline transport error is transient",
			err:       &pipeline.TransportError{Err: assert.AnError},
			wantType:  errTypeTransient,
			retryable: true,
		},
		{
			name:      "forward transport error is transient",
			err:       pkgerrors.Wrap(&patch.TransportError{Err: assert.AnError}, "patch rejected"),
			wantType:  errTypeTransient,
			retryable: true,
		},
		{
			name:      "context deadline is transient",
			err:       pkgerrors.Wrap(context.DeadlineExceeded, "reasoning request failed"),
			wantType:  errTypeTransient,
			retryable: true,
		},
		{
			name:      "validation error is not retryable",
			err:       pkgerrors.Wrap(&patch.ValidationError{Index: 0, Message: "bad op"}, "patch rejected"),
			wantType:  errTypeValidation,
			retryable: false,
		},
		{
			name:      "unknown tool is a configuration error",
			err:       pkgerrors.Wrap(&UnknownToolError{Name: "summon_demon"}, "dispatch failed"),
			wantType:  errTypeConfig,
			retryable: false,
		},
		{
			name:      "anything else is permanent",
			err:       pkgerrors.New("invalid pipeline"),
			wantType:  errTypePermanent,
			retryable: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotType, gotRetry := classify(tc.err)
			assert.Equal(t, tc.wantType, gotType)
			assert.Equal(t, tc.retryable, gotRetry)
		})
	}
}
