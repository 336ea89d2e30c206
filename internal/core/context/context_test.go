package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserID_RoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-1")
	assert.Equal(t, "user-1", GetUserID(ctx))
	assert.Empty(t, GetUserID(context.Background()))
}

func TestTrace_Absent(t *testing.T) {
	assert.Nil(t, GetTrace(context.Background()))

	tc := NewTraceContext()
	ctx := WithTrace(context.Background(), tc)
	assert.Same(t, tc, GetTrace(ctx))
}
