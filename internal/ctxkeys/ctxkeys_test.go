package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
}

func TestRequestIDMissing(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	_, ok = RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok)
}

func TestAuthSubjectRoundTrip(t *testing.T) {
	ctx := WithAuthSubject(context.Background(), "operator")

	sub, ok := AuthSubject(ctx)
	assert.True(t, ok)
	assert.Equal(t, "operator", sub)
}

func TestKeysDoNotCollide(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithAuthSubject(ctx, "operator")

	id, _ := RequestID(ctx)
	sub, _ := AuthSubject(ctx)
	assert.Equal(t, "req-1", id)
	assert.Equal(t, "operator", sub)
}
