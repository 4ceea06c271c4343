package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dispatch-backend/internal/database"
	"dispatch-backend/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func openDatabase() (*sqlx.DB, error) {
	url := viper.GetString("database-url")
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set (use --database-url)")
	}
	db, err := database.Connect(url)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newCreateUserCmd() *cobra.Command {
	var acc database.SeedAccount

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a driver or admin login",
		RunE: func(cmd *cobra.Command, args []string) error {
			acc.Email = strings.ToLower(strings.TrimSpace(acc.Email))
			if acc.Email == "" || acc.Password == "" {
				return fmt.Errorf("--email and --password are required")
			}
			if acc.Role != models.RoleDriver && acc.Role != models.RoleAdmin {
				return fmt.Errorf("invalid role %q: want driver or admin", acc.Role)
			}

			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := database.NewAccount(acc, time.Now())
			if err != nil {
				return err
			}
			if err := database.NewDriverStore(db).CreateUser(context.Background(), user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ %s (%s) ready\n", acc.Email, acc.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&acc.Email, "email", "", "login email")
	cmd.Flags().StringVar(&acc.Password, "password", "", "login password")
	cmd.Flags().StringVar(&acc.Name, "name", "", "display name")
	cmd.Flags().StringVar(&acc.Role, "role", models.RoleDriver, "driver or admin")
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo logins and deliveries on an empty database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := context.Background()
			if err := database.SeedUsers(ctx, db, database.DefaultSeedAccounts); err != nil {
				return err
			}
			if err := database.SeedDeliveries(ctx, db, database.DefaultSeedAccounts[0].Email); err != nil {
				return err
			}

			for _, acc := range database.DefaultSeedAccounts {
				fmt.Fprintf(cmd.OutOrStdout(), "  📧 %s: %s / %s\n", acc.Role, acc.Email, acc.Password)
			}
			return nil
		},
	}
}
