package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccessorsFallBack(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, uuid.Nil, SessionID(ctx))
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, Device(ctx))
	assert.WithinDuration(t, time.Now(), Now(ctx), time.Second)
}

func TestAccessorsRoundTrip(t *testing.T) {
	id := uuid.New()
	pinned := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	ctx := WithSessionID(context.Background(), id)
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithDevice(ctx, "Safari on iPhone")
	ctx = WithTime(ctx, pinned)

	assert.Equal(t, id, SessionID(ctx))
	assert.Equal(t, "req-42", RequestID(ctx))
	assert.Equal(t, "Safari on iPhone", Device(ctx))
	assert.Equal(t, pinned, Now(ctx))
}
