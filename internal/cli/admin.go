package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/karingamassive/membership-service/internal/domain"
	"github.com/karingamassive/membership-service/internal/service"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type bootstrapOptions struct {
	in            service.RegisterInput
	passwordStdin bool
}

func newAdminCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Operator commands against the account store"}
	cmd.AddCommand(newBootstrapCommand(rt))
	cmd.AddCommand(newSetStatusCommand(rt))
	return cmd
}

func newBootstrapCommand(rt *runtime) *cobra.Command {
	opts := &bootstrapOptions{}
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create an active SUPERADMIN account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := resolvePassword(cmd.InOrStdin(), cmd.ErrOrStderr(), opts.passwordStdin)
			if err != nil {
				return err
			}
			opts.in.Password = password

			cfg, err := rt.loadConfig()
			if err != nil {
				return err
			}
			backend, err := rt.openAdmin(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			user, err := backend.Bootstrap(cmd.Context(), opts.in)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created SUPERADMIN id=%d contact=%s\n", user.ID, user.Contact)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.in.FullName, "full-name", "", "full name")
	f.StringVar(&opts.in.IdentificationNumber, "id-number", "", "national identification number")
	f.StringVar(&opts.in.Contact, "contact", "", "international phone number")
	f.StringVar(&opts.in.Email, "email", "", "email address")
	f.StringVar(&opts.in.Village, "village", "", "village")
	f.StringVar(&opts.in.Area, "area", "", "area")
	f.StringVar(&opts.in.RegistrationNumber, "registration-number", "", "membership registration number")
	f.StringVar(&opts.in.Occupation, "occupation", "administrator", "occupation")
	f.BoolVar(&opts.passwordStdin, "password-stdin", false, "read the password from stdin instead of prompting")
	for _, name := range []string{"full-name", "id-number", "contact", "email", "village", "area", "registration-number"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newSetStatusCommand(rt *runtime) *cobra.Command {
	var actorID, userID uint
	var status string
	cmd := &cobra.Command{
		Use:   "set-status",
		Short: "Change an account status; leaving ACTIVE revokes its refresh token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := domain.ParseStatus(status)
			if err != nil {
				return err
			}
			cfg, err := rt.loadConfig()
			if err != nil {
				return err
			}
			backend, err := rt.openAdmin(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			user, err := backend.SetStatus(cmd.Context(), actorID, userID, parsed)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d status=%s\n", user.ID, user.Status)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "target account id")
	cmd.Flags().UintVar(&actorID, "actor-id", 0, "operator account id recorded on the event")
	cmd.Flags().StringVar(&status, "status", "", "PENDING, ACTIVE or SUSPENDED")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func resolvePassword(in io.Reader, prompt io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(prompt, "Password: ")
	raw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

// describe flattens field errors so operators see every rejected flag.
func describe(err error) error {
	se, ok := service.AsError(err)
	if !ok || len(se.Fields) == 0 {
		return err
	}
	parts := make([]string, 0, len(se.Fields))
	for field, reason := range se.Fields {
		parts = append(parts, field+" "+reason)
	}
	return fmt.Errorf("%s: %s", se.Message, strings.Join(parts, "; "))
}
