// Command gocred runs the goCred HTTP service and its operator tools.
//
//	gocred serve --config gocred.yaml
//	gocred migrate
//	gocred user put --subject u1 --email alice@example.com < password.txt
//	gocred user enroll-totp --subject u1
//	gocred hash-password < password.txt
//	gocred score 'Correct-Horse1'
//
// Configuration is read from the YAML file, then .env, then GOCRED_*
// environment variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func (o *rootOptions) load() (Config, error) {
	cfg, err := loadConfig(o.configPath, o.envFile)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "gocred",
		Short:         "Credential lifecycle service: passwords, verification codes, lockout and sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("GOCRED_CONFIG"), "path to a YAML config file (env GOCRED_CONFIG)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment, ignored when missing")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newUserCommand(opts),
		newHashPasswordCommand(opts),
		newScoreCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gocred:", err)
		os.Exit(1)
	}
}
