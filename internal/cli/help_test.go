package cli

import (
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type helpCLI struct {
	Version bool     `short:"v" help:"Show version information"`
	Preset  string   `short:"p" default:"podcast" group:"processing" help:"Preset to use"`
	Logs    bool     `group:"output" help:"Save logs"`
	Debug   bool     `hidden:""`
	Takes   []string `arg:"" name:"takes" help:"Recorded takes" optional:""`
}

func TestRenderHelp(t *testing.T) {
	parser, err := kong.New(&helpCLI{},
		kong.Name("takemaster"),
		kong.ExplicitGroups([]kong.Group{
			{Key: "processing", Title: "Processing"},
			{Key: "output", Title: "Output"},
		}),
	)
	require.NoError(t, err)

	out := renderHelp(parser.Model.Name, parser.Model.Node, []string{"broadcast", "podcast"})

	assert.Contains(t, out, "takemaster [flags] <takes> ...")
	assert.Contains(t, out, "Recorded takes")
	assert.Contains(t, out, "-v, --version")
	assert.Contains(t, out, "Preset to use")
	assert.Contains(t, out, "(default: podcast)")
	assert.Contains(t, out, "broadcast, podcast")
	assert.NotContains(t, out, "--debug")

	// Grouped flags follow the ungrouped ones, in declaration order.
	flags := strings.Index(out, "Flags:")
	processing := strings.Index(out, "Processing:")
	output := strings.Index(out, "Output:")
	assert.True(t, flags >= 0 && flags < processing && processing < output,
		"sections out of order: flags %d, processing %d, output %d", flags, processing, output)
	assert.Greater(t, strings.Index(out, "--logs"), output)
}

func TestRenderHelpWithoutPresets(t *testing.T) {
	parser, err := kong.New(&helpCLI{}, kong.Name("takemaster"))
	require.NoError(t, err)

	out := renderHelp(parser.Model.Name, parser.Model.Node, nil)
	assert.NotContains(t, out, "Presets:")
}
