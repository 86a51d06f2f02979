package producer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/burrow/pkg/engine"
)

func TestHolderCommitPromotesPending(t *testing.T) {
	var h readStateHolder
	assert.False(t, h.HasCurrent())
	assert.Nil(t, h.newest())

	first := NewReadState(1001, engine.NewReadEngine())
	h.setPending(first)
	assert.Equal(t, first, h.newest())
	h.commit()
	assert.Equal(t, first, h.Current())
	assert.Nil(t, h.Pending())

	second := NewReadState(1002, engine.NewReadEngine())
	h.setPending(second)
	h.commit()
	assert.Equal(t, second, h.Current())
	assert.Nil(t, h.Pending())
}

func TestHolderSwapThenCommit(t *testing.T) {
	var h readStateHolder
	base := NewReadState(1001, engine.NewReadEngine())
	next := NewReadState(1002, engine.NewReadEngine())

	h.setPending(base)
	h.commit()
	h.setPending(next)

	h.swap()
	assert.Equal(t, next, h.Current(), "swap adopts the new state into the current slot")
	assert.Equal(t, base, h.Pending())
	assert.Equal(t, next, h.newest())

	h.commit()
	assert.Equal(t, next, h.Current())
	assert.Nil(t, h.Pending())
}

func TestHolderRollbackUndoesSwap(t *testing.T) {
	var h readStateHolder
	base := NewReadState(1001, engine.NewReadEngine())
	next := NewReadState(1002, engine.NewReadEngine())

	h.setPending(base)
	h.commit()

	// Failure before swap: pending is simply dropped.
	h.setPending(next)
	h.rollback()
	assert.Equal(t, base, h.Current())
	assert.Nil(t, h.Pending())

	// Failure after swap: the base returns to the current slot.
	h.setPending(next)
	h.swap()
	h.rollback()
	assert.Equal(t, base, h.Current())
	assert.Nil(t, h.Pending())
}

func TestHolderInstallReplacesEverything(t *testing.T) {
	var h readStateHolder
	h.setPending(NewReadState(1001, engine.NewReadEngine()))
	h.commit()
	h.setPending(NewReadState(1002, engine.NewReadEngine()))

	restored := NewReadState(2000, engine.NewReadEngine())
	h.install(restored)
	assert.Equal(t, restored, h.Current())
	assert.Nil(t, h.Pending())
}
