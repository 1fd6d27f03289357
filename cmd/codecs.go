package cmd

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pixconv/config"
)

func newCodecsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "codecs",
		Short: "List the configured codec backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), codecTable(cfg))
			return nil
		},
	}
}

func codecTable(cfg *config.Config) string {
	rows := make([][]string, 0, len(cfg.Codecs))
	for _, c := range cfg.Codecs {
		rows = append(rows, []string{
			c.Name,
			c.Kind,
			strings.Join(c.Decode, ","),
			strings.Join(c.Encode, ","),
			yesNo(c.SIMD),
			yesNo(c.Threads),
			strconv.Itoa(c.MaxFileSizeMB),
			codecSource(cfg, c),
		})
	}
	return renderTable(
		[]string{"Name", "Kind", "Decode", "Encode", "SIMD", "Threads", "Max MB", "Source"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func codecSource(cfg *config.Config, c config.Codec) string {
	if c.Kind == config.CodecKindCommand {
		if path, err := exec.LookPath(c.Command); err == nil {
			return path
		}
		return c.Command + " (not installed)"
	}
	if cfg.Loader.WASMBaseURL == "" {
		return "(no module URL)"
	}
	return cfg.Loader.WASMBaseURL + "/wasm/" + c.Name + ".wasm"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
