package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectServices(t *testing.T) {
	enabled, err := selectServices([]string{"Inventory", " billing "})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"inventory": true, "billing": true}, enabled)

	_, err = selectServices([]string{"inventory", "pharmacy"})
	assert.ErrorContains(t, err, `unknown service "pharmacy"`)

	enabled, err = selectServices([]string{"patients", "clinical"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"patients": true, "clinical": true}, enabled)

	_, err = selectServices(nil)
	assert.Error(t, err)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "create-user", "refresh-aging"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
