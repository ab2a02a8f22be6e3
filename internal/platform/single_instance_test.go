package platform

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleInstance(t *testing.T) {
	name := fmt.Sprintf("tock-test-%d", time.Now().UnixNano())

	guard, err := AcquireSingleInstance(name)
	require.NoError(t, err)

	activated := make(chan struct{}, 1)
	guard.Serve(func() { activated <- struct{}{} })

	_, err = AcquireSingleInstance(name)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	select {
	case <-activated:
	case <-time.After(2 * time.Second):
		t.Fatal("running instance was not activated")
	}

	require.NoError(t, guard.Release())

	again, err := AcquireSingleInstance(name)
	require.NoError(t, err)
	assert.Equal(t, guard.Address(), again.Address())
	assert.NoError(t, again.Release())
}

func TestPortFromNameStable(t *testing.T) {
	port := portFromName("tock")
	assert.Equal(t, port, portFromName("tock"))
	assert.GreaterOrEqual(t, port, 20000)
	assert.LessOrEqual(t, port, 39999)
}

func TestNilGuard(t *testing.T) {
	var guard *InstanceGuard
	guard.Serve(nil)
	assert.NoError(t, guard.Release())
	assert.Empty(t, guard.Address())
}
