package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"smart-todo/internal/auth"
)

const oauthTimeout = 5 * time.Minute

func (a *app) credentials(cmd *cobra.Command) (string, string, error) {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")

	var err error
	if email == "" {
		if email, err = a.prompt("Email"); err != nil {
			return "", "", err
		}
	}
	if password == "" {
		if password, err = a.prompt("Password"); err != nil {
			return "", "", err
		}
	}
	return email, password, nil
}

func loginCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			if err := a.session.SignIn(cmd.Context(), email, password); err != nil {
				return err
			}
			u, _ := a.session.User()
			a.printf("Signed in as %s\n", u.Email)
			return nil
		},
	}
	cmd.Flags().StringP("email", "e", "", "account email")
	cmd.Flags().StringP("password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func signupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, password, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			if err := a.session.SignUp(cmd.Context(), email, password); err != nil {
				return err
			}
			a.println("Check your email to confirm your account.")
			return nil
		},
	}
	cmd.Flags().StringP("email", "e", "", "account email")
	cmd.Flags().StringP("password", "p", "", "account password (prompted when omitted)")
	return cmd
}

// loginGoogleCmd runs the PKCE flow with a loopback redirect.
func loginGoogleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login-google",
		Short: "Sign in with Google (enables calendar sync)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), oauthTimeout)
			defer cancel()

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return err
			}
			redirect := fmt.Sprintf("http://%s/callback", ln.Addr())

			start, err := a.session.SignInWithGoogle(redirect)
			if err != nil {
				ln.Close()
				return err
			}

			type result struct {
				code string
				err  error
			}
			done := make(chan result, 1)
			send := func(res result) {
				select {
				case done <- res:
				default:
				}
			}
			srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/callback" {
					http.NotFound(w, r)
					return
				}
				q := r.URL.Query()
				if e := q.Get("error"); e != "" {
					msg := q.Get("error_description")
					if msg == "" {
						msg = e
					}
					fmt.Fprintln(w, "Sign-in failed. You can close this window.")
					send(result{err: errors.New(msg)})
					return
				}
				fmt.Fprintln(w, "Signed in. You can close this window.")
				send(result{code: q.Get("code")})
			}), ReadHeaderTimeout: 10 * time.Second}
			go srv.Serve(ln)
			defer srv.Close()

			a.println("Open this URL in your browser to continue:")
			a.println(start.URL)

			select {
			case <-ctx.Done():
				return errors.New("sign-in expired, please try again")
			case res := <-done:
				if res.err != nil {
					return res.err
				}
				if err := a.session.CompleteOAuth(ctx, res.code, start.Verifier); err != nil {
					return err
				}
			}

			u, _ := a.session.User()
			a.printf("Signed in as %s (calendar sync available)\n", u.Email)
			return nil
		},
	}
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.SignOut(cmd.Context()); err != nil {
				return err
			}
			a.println("Signed out.")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.session.Current()
			if s == nil {
				a.println("Not signed in.")
				return nil
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				return json.NewEncoder(a.out).Encode(map[string]any{
					"user":               s.User,
					"calendar_connected": s.HasCalendarIdentity() && s.ProviderToken != "",
				})
			}

			u := s.User
			a.printf("ID:        %s\n", u.ID)
			a.printf("Email:     %s\n", u.Email)
			a.printf("Name:      %s\n", valueOr(u.FullName, "-"))
			a.printf("Provider:  %s\n", valueOr(u.Provider, "email"))
			if s.HasCalendarIdentity() {
				a.printf("Calendar:  %s\n", connected(s.ProviderToken != ""))
			}
			return nil
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")
	return cmd
}

func profileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update display name or avatar",
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd auth.ProfileUpdate
			if cmd.Flags().Changed("name") {
				name, _ := cmd.Flags().GetString("name")
				upd.FullName = &name
			}
			if cmd.Flags().Changed("avatar") {
				avatar, _ := cmd.Flags().GetString("avatar")
				upd.AvatarURL = &avatar
			}
			if upd.FullName == nil && upd.AvatarURL == nil {
				return errors.New("nothing to update: pass --name or --avatar")
			}

			if err := a.session.UpdateProfile(cmd.Context(), upd); err != nil {
				return err
			}
			u, _ := a.session.User()
			a.printf("Profile updated: %s\n", valueOr(u.FullName, u.Email))
			return nil
		},
	}
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("avatar", "", "avatar URL")
	return cmd
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func connected(ok bool) string {
	if ok {
		return "connected"
	}
	return "not connected"
}
