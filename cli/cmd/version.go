package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/ample-labs/geyser-gateway/cli/render"
	"github.com/ample-labs/geyser-gateway/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Protocol uint16 `json:"protocol_version"`
}

// VersionCommand returns the version command. It must not dial upstream.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show build version and protocol information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		resp := VersionResponse{
			Version:  types.Version,
			Commit:   commit,
			Protocol: types.ProtocolVersion,
		}

		return r.Render(resp)
	}
}
