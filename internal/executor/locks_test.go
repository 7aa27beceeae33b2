package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockTable_AcquireIsAllOrNothing(t *testing.T) {
	lt := NewLockTable()

	assert.True(t, lt.Acquire("d1", []string{"a.ini", "b.ini"}))
	assert.False(t, lt.Acquire("d2", []string{"b.ini", "c.ini"}))

	// The failed acquire must not have claimed c.ini.
	assert.True(t, lt.Acquire("d3", []string{"c.ini"}))
}

func TestLockTable_ReleaseOnlyOwn(t *testing.T) {
	lt := NewLockTable()

	assert.True(t, lt.Acquire("d1", []string{"a.ini"}))
	lt.Release("d2", []string{"a.ini"})
	assert.Equal(t, "d1", lt.Holder("a.ini"))

	lt.Release("d1", []string{"a.ini"})
	assert.Empty(t, lt.Holder("a.ini"))
	assert.True(t, lt.Acquire("d2", []string{"a.ini"}))
}

func TestLockTable_Reentrant(t *testing.T) {
	lt := NewLockTable()

	assert.True(t, lt.Acquire("d1", []string{"a.ini"}))
	assert.True(t, lt.Acquire("d1", []string{"a.ini"}))
}
