package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/NOVASWAY/Seth2.0-sub005/services/auth-service/models"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/config"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
)

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user with one or more roles",
	Long: `Create a user with a bcrypt-hashed password and grant it roles.

The password is read from --password or, when that is empty, from the
CLINIC_USER_PASSWORD environment variable.

Roles: ADMIN, RECEPTIONIST, NURSE, CLINICAL_OFFICER, PHARMACIST,
INVENTORY_MANAGER, CLAIMS_MANAGER, LAB_TECHNICIAN, CASHIER`,
	Example: `  clinic create-user --username admin --roles ADMIN
  clinic create-user --username jmwangi --email j.mwangi@clinic.test --roles PHARMACIST,CASHIER`,
	RunE: runCreateUser,
}

func init() {
	rootCmd.AddCommand(createUserCmd)

	createUserCmd.Flags().String("username", "", "Login name")
	createUserCmd.Flags().String("email", "", "Email address")
	createUserCmd.Flags().String("first-name", "", "First name")
	createUserCmd.Flags().String("last-name", "", "Last name")
	createUserCmd.Flags().String("password", "", "Password (at least 8 characters)")
	createUserCmd.Flags().StringSlice("roles", nil, "Roles to grant")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("roles")
}

func runCreateUser(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.WithComponent("create-user")

	input := models.CreateUserInput{}
	input.Username, _ = cmd.Flags().GetString("username")
	input.Email, _ = cmd.Flags().GetString("email")
	input.FirstName, _ = cmd.Flags().GetString("first-name")
	input.LastName, _ = cmd.Flags().GetString("last-name")
	input.Password, _ = cmd.Flags().GetString("password")
	input.Roles, _ = cmd.Flags().GetStringSlice("roles")
	if input.Password == "" {
		input.Password = os.Getenv("CLINIC_USER_PASSWORD")
	}

	if err := validator.New().Struct(input); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	db, err := config.ConnectDB(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	user, err := models.NewUserStore(db).CreateUser(cmd.Context(), input)
	if errors.Is(err, models.ErrDuplicateUser) {
		return fmt.Errorf("user %q already exists", input.Username)
	}
	if err != nil {
		return err
	}

	log.Info().Str("user_id", user.ID).Str("username", user.Username).Strs("roles", input.Roles).Msg("User created")
	return nil
}
