package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// InitCmd creates the init command.
func InitCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Deploy and verify the audio decoder",
		Long: `Locate the bundled decoder and prober, copy them to the deployment
directory when needed, and verify that they run.

The binaries are always deployed to ~/.minutesgen/bin (config bin-dir)
and verified there. Development packaging only changes where they are
looked up first: third_party/ in the working directory instead of the
resources/ dir next to the executable.`,
		Example: `  minutesgen init
  MINUTESGEN_PACKAGING=development minutesgen init`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.Context(), env)
		},
	}
}

func runInit(ctx context.Context, env *Env) error {
	cfg, logger, err := loadSettings(env)
	if err != nil {
		return err
	}
	binaries, _, err := env.ToolchainFactory.NewToolchain(cfg, logger)
	if err != nil {
		return err
	}
	if err := binaries.EnsureProvisioned(ctx); err != nil {
		return err
	}

	paths := binaries.Paths()
	_, _ = fmt.Fprintf(env.Stdout, "decoder\t%s\nprober\t%s\n", paths.Decoder, paths.Prober)
	return nil
}
