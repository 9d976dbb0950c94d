package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	required                             bool
	isBool                               bool
}

var (
	configFlag = commandLineFlag{
		name:      "config",
		shorthand: "c",
		usage:     "config file (default is ./flitpipe.yaml or $HOME/.config/flitpipe/flitpipe.yaml)",
	}
	quietFlag = commandLineFlag{
		name:      "quiet",
		shorthand: "q",
		usage:     "suppress output below warning level",
		isBool:    true,
	}
	seedFlag = commandLineFlag{
		name:  "seed",
		usage: "random seed for reproducible generation",
	}
)

func initFlags(cmd *cobra.Command, addFlags ...commandLineFlag) {
	addFlags = append(addFlags, configFlag, quietFlag)
	for _, flag := range addFlags {
		if flag.isBool {
			cmd.Flags().BoolP(flag.name, flag.shorthand, flag.defaultValue == "true", flag.usage)
		} else {
			cmd.Flags().StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
		}
		if flag.required {
			if err := cmd.MarkFlagRequired(flag.name); err != nil {
				fmt.Printf("failed to mark flag %s as required: %v\n", flag.name, err)
			}
		}
	}
}

func bindFlags(cmd *cobra.Command, _ []commandLineFlag) error {
	// Only the config path goes through viper; command flags are read
	// directly so unset flags never mask file or env settings.
	if err := viper.BindPFlag("config", cmd.Flags().Lookup("config")); err != nil {
		return fmt.Errorf("failed to bind flag config: %w", err)
	}
	return nil
}
