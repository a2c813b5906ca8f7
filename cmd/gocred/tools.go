package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/directory/memdir"
	"github.com/MrEthical07/goCred/directory/postgres"
	"github.com/MrEthical07/goCred/password"
	"github.com/MrEthical07/goCred/policy"
	"github.com/spf13/cobra"
)

// readSecret reads one line from r, so passwords never appear in argv or
// shell history.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password on stdin")
	}
	return line, nil
}

// offlineEngine wires an engine on the memory backend for one-shot tooling.
// Nothing it issues outlives the process.
func offlineEngine(cfg Config, dir goCred.Directory) (*goCred.Engine, error) {
	if dir == nil {
		dir = memdir.New()
	}
	return goCred.New().WithConfig(cfg.Engine).WithMemoryBackend().WithDirectory(dir).Build()
}

// hashChecked applies the password policy unless skip is set, then hashes.
func hashChecked(cfg Config, plain string, skip bool) (string, error) {
	if skip {
		h, err := password.NewArgon2(password.Config{
			Memory:           cfg.Engine.Password.Memory,
			Time:             cfg.Engine.Password.Time,
			Parallelism:      cfg.Engine.Password.Parallelism,
			SaltLength:       cfg.Engine.Password.SaltLength,
			KeyLength:        cfg.Engine.Password.KeyLength,
			MaxPasswordBytes: cfg.Engine.Password.MaxPasswordBytes,
		})
		if err != nil {
			return "", err
		}
		return h.Hash(plain)
	}

	engine, err := offlineEngine(cfg, nil)
	if err != nil {
		return "", err
	}
	defer engine.Close()

	hash, err := engine.HashPassword(plain)
	var perr *goCred.PolicyError
	if errors.As(err, &perr) {
		msgs := make([]string, 0, len(perr.Violations))
		for _, v := range perr.Violations {
			msgs = append(msgs, v.Message)
		}
		return "", fmt.Errorf("password rejected: %s", strings.Join(msgs, "; "))
	}
	return hash, err
}

func newHashPasswordCommand(opts *rootOptions) *cobra.Command {
	var skipPolicy bool
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its Argon2id hash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			plain, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := hashChecked(cfg, plain, skipPolicy)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "hash even if the password fails the policy")
	return cmd
}

func newScoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "score [password]",
		Short: "Print the strength score of a password as JSON (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				s, err := readSecret(cmd.InOrStdin())
				if err != nil {
					return err
				}
				plain = s
			}
			out := struct {
				policy.Strength
				Violations []policy.Violation `json:"violations,omitempty"`
			}{
				Strength:   policy.Score(plain),
				Violations: policy.Default().Validate(plain).Violations,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func openStore(cmd *cobra.Command, cfg Config) (*postgres.Store, error) {
	if cfg.Postgres.DSN == "" {
		return nil, errors.New("postgres dsn is required (GOCRED_POSTGRES_DSN)")
	}
	return postgres.Open(cmd.Context(), cfg.Postgres.DSN, cfg.Postgres.Pool)
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the credentials table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "credentials table ready")
			return nil
		},
	}
}

func newUserCommand(opts *rootOptions) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage credentials in the Postgres directory",
	}

	var subject, email, name string
	var skipPolicy bool
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a credential; the password is read from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if subject == "" || email == "" {
				return errors.New("--subject and --email are required")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			plain, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}
			hash, err := hashChecked(cfg, plain, skipPolicy)
			if err != nil {
				return err
			}
			store, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Upsert(cmd.Context(), goCred.Credential{
				Subject:      subject,
				Email:        email,
				Name:         name,
				PasswordHash: hash,
				Algorithm:    "argon2id",
			})
		},
	}
	put.Flags().StringVar(&subject, "subject", "", "stable subject id")
	put.Flags().StringVar(&email, "email", "", "login email")
	put.Flags().StringVar(&name, "name", "", "display name used in messages")
	put.Flags().BoolVar(&skipPolicy, "skip-policy", false, "store even if the password fails the policy")

	var enrollSubject string
	var disable bool
	enroll := &cobra.Command{
		Use:   "enroll-totp",
		Short: "Generate an authenticator secret, enable TOTP step-up and print the otpauth URI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if enrollSubject == "" {
				return errors.New("--subject is required")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if disable {
				return store.SetTwoFactor(cmd.Context(), enrollSubject, nil, "")
			}

			cred, err := store.FindBySubject(cmd.Context(), enrollSubject)
			if err != nil {
				return err
			}
			engine, err := offlineEngine(cfg, store)
			if err != nil {
				return err
			}
			defer engine.Close()
			enrollment, err := engine.NewTOTPEnrollment(cred.Email)
			if err != nil {
				return err
			}
			if err := store.SetTwoFactor(cmd.Context(), enrollSubject, enrollment.Secret, goCred.ChannelTOTP); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enrollment.URI)
			return nil
		},
	}
	enroll.Flags().StringVar(&enrollSubject, "subject", "", "subject to enroll")
	enroll.Flags().BoolVar(&disable, "disable", false, "remove the secret and disable step-up")

	user.AddCommand(put, enroll)
	return user
}
