package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/insight-pipeline/internal/llm"
	"github.com/jonathan/insight-pipeline/internal/llm/llmtest"
)

func TestGuardedClient_PassesThrough(t *testing.T) {
	mock := &llmtest.MockClient{GenerateJSONFunc: llmtest.Respond(`{"ok": true}`)}
	client := llm.NewGuardedClient(mock, llm.GuardOptions{Timeout: time.Second})

	text, err := client.GenerateJSON(context.Background(), "prompt", llm.TierLite)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, text)
	assert.Equal(t, 1, mock.Calls())
	assert.Equal(t, "mock-model", client.GetModel(llm.TierLite))
}

func TestGuardedClient_RetriesTransientErrors(t *testing.T) {
	attempts := 0
	mock := &llmtest.MockClient{
		GenerateContentFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("503 service unavailable")
			}
			return "valid", nil
		},
	}
	client := llm.NewGuardedClient(mock, llm.GuardOptions{
		MaxTries:        3,
		InitialInterval: time.Millisecond,
	})

	text, err := client.GenerateContent(context.Background(), "judge", llm.TierLite)
	require.NoError(t, err)
	assert.Equal(t, "valid", text)
	assert.Equal(t, 3, attempts)
}

func TestGuardedClient_GivesUpAfterMaxTries(t *testing.T) {
	var observed error
	mock := &llmtest.MockClient{
		GenerateJSONFunc: func(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}
	client := llm.NewGuardedClient(mock, llm.GuardOptions{
		MaxTries:        2,
		InitialInterval: time.Millisecond,
		Observer: func(_ llm.ModelTier, err error, _ time.Duration) {
			observed = err
		},
	})

	_, err := client.GenerateJSON(context.Background(), "plan", llm.TierAdvanced)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 2, mock.Calls())
	assert.Equal(t, err, observed)
}

func TestGuardedClient_Timeout(t *testing.T) {
	mock := &llmtest.MockClient{
		GenerateJSONFunc: func(ctx context.Context, _ string, _ llm.ModelTier) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	client := llm.NewGuardedClient(mock, llm.GuardOptions{Timeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := client.GenerateJSON(context.Background(), "plan", llm.TierAdvanced)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, mock.Calls(), "timed out calls are not retried")
}

func TestGuardedClient_ParentCancelIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &llmtest.MockClient{
		GenerateJSONFunc: func(ctx context.Context, _ string, _ llm.ModelTier) (string, error) {
			return "", ctx.Err()
		},
	}
	client := llm.NewGuardedClient(mock, llm.GuardOptions{Timeout: time.Second})

	_, err := client.GenerateJSON(ctx, "plan", llm.TierAdvanced)
	require.Error(t, err)
	assert.False(t, errors.Is(err, llm.ErrTimeout))
}
