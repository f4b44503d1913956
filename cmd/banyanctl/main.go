// Command banyanctl manages Banyan's identity store: minting and revoking
// the Basic-auth request tokens providers and workers present to banyand
// (spec.md §6). It talks to the same Redis document store banyand runs
// against rather than going through the HTTP API, the way the teacher
// pack's auth-user-seed command manages identities directly against the
// store instead of round-tripping through its own server.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/banyan/banyan/internal/auth"
	"github.com/banyan/banyan/internal/config"
	"github.com/banyan/banyan/internal/domain/task"
	"github.com/banyan/banyan/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "banyanctl",
		Short: "Manage Banyan provider and worker identities",
	}
	root.AddCommand(newAddCmd(), newRemoveCmd(), newListCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "banyanctl: %v\n", err)
		os.Exit(1)
	}
}

func newIdentityStore() (*auth.IdentityStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr(), DB: cfg.RedisDB})
	return auth.NewIdentityStore(store.NewRedisStore(rdb)), func() { rdb.Close() }, nil
}

func newAddCmd() *cobra.Command {
	var name, roleStr string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a new user and print its Basic-auth token",
		RunE: func(cmd *cobra.Command, args []string) error {
			role := task.ParseRole(roleStr)
			if role == "" {
				return fmt.Errorf("--role must be %q or %q", task.RoleProvider, task.RoleWorker)
			}
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			identities, closeFn, err := newIdentityStore()
			if err != nil {
				return err
			}
			defer closeFn()

			u, plain, err := identities.CreateUser(context.Background(), name, role)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			fmt.Printf("created %s %q (id %s)\n", u.Role, u.Name, u.ID)
			fmt.Printf("Authorization: Basic %s\n", auth.BasicAuthKey(plain))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user name (required)")
	cmd.Flags().StringVar(&roleStr, "role", "", "provider or worker (required)")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a user by name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			identities, closeFn, err := newIdentityStore()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := identities.RemoveUser(context.Background(), name); err != nil {
				return fmt.Errorf("remove user: %w", err)
			}
			fmt.Printf("removed %q\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "user name (required)")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered user",
		RunE: func(cmd *cobra.Command, args []string) error {
			identities, closeFn, err := newIdentityStore()
			if err != nil {
				return err
			}
			defer closeFn()

			users, err := identities.List(context.Background())
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Name, u.Role)
			}
			return w.Flush()
		},
	}
}
