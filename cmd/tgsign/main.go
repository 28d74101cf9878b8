// Command tgsign produces and checks signed Telegram Login Widget callbacks
// for local testing of the auth bridge.
//
//	tgsign callback --id 42 --first-name Ann --redirect https://dramz.tv/x
//	tgsign payload --id 42 --first-name Ann --query-id abc
//	tgsign verify 'http://localhost:7865/auth/telegram?id=42&...'
package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/MGallo-Code/tgbridge/internal/telegram"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Same .env the server reads; a missing file is fine.
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// signFlags are the assertion fields shared by callback and payload.
type signFlags struct {
	token     string
	id        int64
	firstName string
	lastName  string
	username  string
	photoURL  string
	authDate  int64
}

func (f *signFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.token, "token", "", "bot token (default $TELEGRAM_BOT_TOKEN)")
	cmd.Flags().Int64Var(&f.id, "id", 0, "telegram user id (required)")
	cmd.Flags().StringVar(&f.firstName, "first-name", "", "first_name field")
	cmd.Flags().StringVar(&f.lastName, "last-name", "", "last_name field")
	cmd.Flags().StringVar(&f.username, "username", "", "username field")
	cmd.Flags().StringVar(&f.photoURL, "photo-url", "", "photo_url field")
	cmd.Flags().Int64Var(&f.authDate, "auth-date", 0, "auth_date unix seconds (default now)")
	_ = cmd.MarkFlagRequired("id")
}

// sign builds and signs the assertion described by the flags.
func (f *signFlags) sign() (*telegram.Assertion, error) {
	token := f.token
	if token == "" {
		token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if token == "" {
		return nil, errors.New("no bot token: pass --token or set TELEGRAM_BOT_TOKEN")
	}
	if f.id <= 0 {
		return nil, errors.New("--id must be a positive integer")
	}
	a := &telegram.Assertion{
		ID:        f.id,
		FirstName: f.firstName,
		LastName:  f.lastName,
		Username:  f.username,
		PhotoURL:  f.photoURL,
		AuthDate:  f.authDate,
	}
	if a.AuthDate == 0 {
		a.AuthDate = time.Now().Unix()
	}
	a.Hash = telegram.Sign(telegram.NewSigningContext(token), a)
	return a, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tgsign",
		Short:         "Sign and verify Telegram Login Widget callbacks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCallbackCmd(), newPayloadCmd(), newVerifyCmd())
	return root
}

func newCallbackCmd() *cobra.Command {
	var (
		f        signFlags
		baseURL  string
		redirect string
	)
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Print a signed GET /auth/telegram callback URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.sign()
			if err != nil {
				return err
			}
			u, err := callbackURL(baseURL, a, redirect)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:7865", "bridge base URL")
	cmd.Flags().StringVar(&redirect, "redirect", "", "redirect target carried through the callback")
	return cmd
}

func newPayloadCmd() *cobra.Command {
	var (
		f       signFlags
		queryID string
	)
	cmd := &cobra.Command{
		Use:   "payload",
		Short: "Print the initData payload the bridge would send to the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.sign()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), telegram.Payload(a, queryID))
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&queryID, "query-id", "", "correlation id sent as query_id")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "verify <callback-url>",
		Short: "Check the signature of a callback URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("TELEGRAM_BOT_TOKEN")
			}
			if token == "" {
				return errors.New("no bot token: pass --token or set TELEGRAM_BOT_TOKEN")
			}
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing url: %w", err)
			}
			a, err := telegram.ParseAssertion(u.Query())
			if err != nil {
				return err
			}
			if err := telegram.NewVerifier(telegram.NewSigningContext(token)).Check(a); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: telegram user %d, signed %s\n",
				a.ID, time.Unix(a.AuthDate, 0).UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bot token (default $TELEGRAM_BOT_TOKEN)")
	return cmd
}

// callbackURL appends a's fields (and redirect) to base + /auth/telegram.
func callbackURL(base string, a *telegram.Assertion, redirect string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing --base-url: %w", err)
	}
	u = u.JoinPath("auth", "telegram")

	q := url.Values{}
	q.Set(telegram.FieldID, strconv.FormatInt(a.ID, 10))
	for name, v := range map[string]string{
		telegram.FieldFirstName: a.FirstName,
		telegram.FieldLastName:  a.LastName,
		telegram.FieldUsername:  a.Username,
		telegram.FieldPhotoURL:  a.PhotoURL,
	} {
		if v != "" {
			q.Set(name, v)
		}
	}
	q.Set(telegram.FieldAuthDate, strconv.FormatInt(a.AuthDate, 10))
	q.Set(telegram.FieldHash, a.Hash)
	if redirect != "" {
		q.Set("redirect", redirect)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
