package schema

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchema(t *testing.T) {
	root := &cobra.Command{Use: "tokenintel"}
	child := &cobra.Command{Use: "token", Short: "token commands"}
	leaf := &cobra.Command{
		Use:         "analyze <address>",
		Short:       "analyze a token",
		Aliases:     []string{"a"},
		Example:     "  tokenintel token analyze 0xabc --chain bsc\n",
		Annotations: map[string]string{"chains": "bsc,solana"},
	}
	leaf.Flags().String("chain", "solana", "chain to analyze")
	leaf.Flags().String("rpc", "", "rpc override")
	require.NoError(t, leaf.MarkFlagRequired("rpc"))
	child.AddCommand(leaf)
	root.AddCommand(child)

	s, err := Build(root, "token analyze")
	require.NoError(t, err)
	assert.Equal(t, "tokenintel token analyze", s.Path)
	require.Len(t, s.Flags, 2)
	assert.Equal(t, "chain", s.Flags[0].Name)
	assert.Equal(t, "solana", s.Flags[0].Default)
	assert.False(t, s.Flags[0].Required)
	assert.Equal(t, "rpc", s.Flags[1].Name)
	assert.True(t, s.Flags[1].Required)
	assert.Equal(t, "tokenintel token analyze 0xabc --chain bsc", s.Example)
	assert.Equal(t, "bsc,solana", s.Annotations["chains"])

	byAlias, err := Build(root, "token a")
	require.NoError(t, err)
	assert.Equal(t, s.Path, byAlias.Path)

	whole, err := Build(root, "")
	require.NoError(t, err)
	require.Len(t, whole.Subcommands, 1)
	assert.Equal(t, "token", whole.Subcommands[0].Use)

	_, err = Build(root, "token missing")
	require.Error(t, err)
}
