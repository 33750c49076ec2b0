package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/argument-tutor/internal/history"
	"github.com/sells-group/argument-tutor/internal/model"
)

type failingBackend struct {
	*history.MemoryBackend
}

func (failingBackend) DeleteSession(context.Context, string) error {
	return errors.New("locked")
}

func TestSessions_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewSessions(&stubEvaluator{}, history.NewMemoryBackend())

	id1, s1 := m.Create()
	id2, _ := m.Create()
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, m.Len())

	got, ok := m.Get(id1)
	require.True(t, ok)
	assert.Same(t, s1, got)

	existed, err := m.Delete(ctx, id1)
	require.NoError(t, err)
	assert.True(t, existed)

	_, ok = m.Get(id1)
	assert.False(t, ok)

	existed, err = m.Delete(ctx, id1)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestSessions_IndependentHistory(t *testing.T) {
	ctx := context.Background()
	m := NewSessions(&stubEvaluator{}, history.NewMemoryBackend())

	_, s1 := m.Create()
	_, s2 := m.Create()
	require.NoError(t, s1.SelectClaim(model.ClaimAgree))
	_, err := s1.SubmitEvidence(ctx, "spiders")
	require.NoError(t, err)

	assert.Len(t, s1.History(ctx, model.ClaimAgree), 1)
	assert.Empty(t, s2.History(ctx, model.ClaimAgree))
}

func TestSessions_DeleteBackendError(t *testing.T) {
	m := NewSessions(&stubEvaluator{}, failingBackend{history.NewMemoryBackend()})
	id, _ := m.Create()

	existed, err := m.Delete(context.Background(), id)
	assert.True(t, existed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete history")
	assert.Equal(t, 0, m.Len())
}
