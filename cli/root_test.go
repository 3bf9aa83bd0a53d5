package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdmgate/mdmgate/pkg/config"
)

func TestRootCmd(t *testing.T) {
	t.Run("Should register the serve command with transport flags", func(t *testing.T) {
		root := RootCmd()
		assert.Equal(t, "mdmgate", root.Use)

		serve, _, err := root.Find([]string{"serve"})
		require.NoError(t, err)
		assert.Equal(t, "serve", serve.Use)
		assert.NotNil(t, serve.Flags().Lookup("transport"))
		assert.NotNil(t, serve.Flags().Lookup("host"))
		assert.NotNil(t, serve.Flags().Lookup("port"))
	})

	t.Run("Should expose log flags on the root", func(t *testing.T) {
		root := RootCmd()
		assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
		assert.NotNil(t, root.PersistentFlags().Lookup("log-json"))
		assert.NotNil(t, root.PersistentFlags().Lookup("log-source"))
	})

	t.Run("Should reject an unknown transport flag value", func(t *testing.T) {
		serve := ServeCmd()
		require.NoError(t, serve.Flags().Set("transport", "websocket"))

		cfg := config.Default()
		err := applyServeFlags(serve, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid transport")
	})

	t.Run("Should override config from changed flags only", func(t *testing.T) {
		serve := ServeCmd()
		require.NoError(t, serve.Flags().Set("transport", "sse"))
		require.NoError(t, serve.Flags().Set("port", "9000"))

		cfg := config.Default()
		require.NoError(t, applyServeFlags(serve, cfg))
		assert.Equal(t, "sse", cfg.Server.Transport)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host, "untouched flag keeps the config value")
	})
}
