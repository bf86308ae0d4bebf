package conf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCLIDefaults(t *testing.T) {
	cli, err := ParseCLI([]string{"-i", "in.ts"})
	require.NoError(t, err)

	require.Equal(t, "in.ts", cli.Input)
	require.False(t, cli.HasSID())
	require.False(t, cli.HasWindowSize())
	require.Equal(t, 1, cli.TargetDuration)
	require.Equal(t, 8080, cli.Port)
}

func TestParseCLIExplicitSIDAndWindowSize(t *testing.T) {
	cli, err := ParseCLI([]string{"-i", "in.ts", "-s", "256", "-w", "12"})
	require.NoError(t, err)

	require.True(t, cli.HasSID())
	require.Equal(t, 256, cli.SID)
	require.True(t, cli.HasWindowSize())
	require.Equal(t, 12, cli.WindowSize)
}
