package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/credstore"
	"github.com/grovetools/tether/pkg/device"
	"github.com/grovetools/tether/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// credentialFlags are shared by login and signup.
type credentialFlags struct {
	role          string
	userID        string
	passwordStdin bool
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.role, "role", "r", "", "Account kind: host, member")
	cmd.Flags().StringVar(&f.userID, "id", "", "Host or member identifier")
	cmd.Flags().BoolVar(&f.passwordStdin, "password-stdin", false, "Read the password from stdin")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("id")
}

func (f *credentialFlags) parse(cmd *cobra.Command) (models.Role, string, error) {
	role, err := models.ParseRole(f.role)
	if err != nil {
		return "", "", errors.InvalidInput("role", err.Error())
	}
	password, err := readPassword(cmd, f.passwordStdin)
	if err != nil {
		return "", "", err
	}
	return role, password, nil
}

// readPassword reads one line from stdin when fromStdin is set, and otherwise
// prompts without echo on a terminal.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	in := cmd.InOrStdin()
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errors.InvalidInput("password", "stdin is not a terminal; use --password-stdin")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	data, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(data), nil
}

// rejected turns an unsuccessful auth result into an error.
func rejected(op, message string) error {
	if message == "" {
		message = op + " was rejected"
	}
	return errors.New(errors.ErrCodeUnauthorized, message).WithDetail("op", op)
}

func NewLoginCmd() *cobra.Command {
	var flags credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in as a host or member",
		Long: `Sign in and store the issued tokens in the credential store.

Examples:
  tether login --role host --id alice
  echo "$PASSWORD" | tether login --role member --id bob --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.requireServer(); err != nil {
				return err
			}
			role, password, err := flags.parse(cmd)
			if err != nil {
				return err
			}

			result, err := a.sessions.Login(cmd.Context(), role, flags.userID, password)
			if err != nil {
				return err
			}
			if !result.Success {
				return rejected("login", result.Message)
			}

			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"success": true, "role": result.Role})
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Success(fmt.Sprintf("Logged in as %s %s", result.Role, flags.userID))
			if loc := credstore.Location(a.store); loc != "" {
				pretty.Path("Credentials", loc)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func NewSignupCmd() *cobra.Command {
	var flags credentialFlags
	var deviceID string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new host or member account",
		Long: `Register a new account. Members are bound to the device they sign up
from; its identifier is generated once and kept in the state directory.

Examples:
  tether signup --role host --id alice
  tether signup --role member --id bob --device 0b6f2a46-5f8e-4f5e-9a3c-2d6c1c9f0e11`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.requireServer(); err != nil {
				return err
			}
			role, password, err := flags.parse(cmd)
			if err != nil {
				return err
			}

			var id string
			if role == models.RoleMember {
				override := deviceID
				if override == "" {
					override = a.cfg.DeviceID
				}
				if id, err = device.ID(override); err != nil {
					return err
				}
			}

			result, err := a.sessions.Signup(cmd.Context(), role, id, flags.userID, password)
			if err != nil {
				return err
			}
			if !result.Success {
				return rejected("signup", result.Message)
			}

			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"success": true, "role": role, "deviceId": id})
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			pretty.Success(fmt.Sprintf("Registered %s %s", role, flags.userID))
			if id != "" {
				pretty.Field("Device", id)
			}
			pretty.Muted("Run 'tether login' to sign in.")
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&deviceID, "device", "", "Device identifier for member signup (generated when empty)")
	return cmd
}

func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			status := a.sessions.CheckStoredSession()
			a.sessions.Logout(context.WithoutCancel(cmd.Context()))

			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"success": true, "wasLoggedIn": status.Success})
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if status.Success {
				pretty.Success(fmt.Sprintf("Logged out (%s)", status.Role))
			} else {
				pretty.InfoPretty("No stored session")
			}
			return nil
		},
	}
}

// StatusOutput is the JSON form of the status command.
type StatusOutput struct {
	LoggedIn bool        `json:"logged_in"`
	Role     models.Role `json:"role,omitempty"`
	Store    string      `json:"store,omitempty"`
	Server   string      `json:"server,omitempty"`
}

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is stored",
		Long:  "Show whether a session is stored. The server is not contacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			status := a.sessions.CheckStoredSession()
			out := StatusOutput{
				LoggedIn: status.Success,
				Role:     status.Role,
				Store:    credstore.Location(a.store),
				Server:   a.cfg.Server.BaseURL,
			}

			if a.opts.JSONOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			pretty := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
			if out.LoggedIn {
				pretty.Field("Session", "logged in as "+out.Role.String())
			} else {
				pretty.Field("Session", "not logged in")
			}
			if out.Server != "" {
				pretty.Field("Server", out.Server)
			}
			if out.Store != "" {
				pretty.Path("Credentials", out.Store)
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
