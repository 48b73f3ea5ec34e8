package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/GoCodeAlone/modular"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/taskflow/internal/domain"
	"github.com/GoCodeAlone/taskflow/modules/store"
)

// ErrInvalidSeed is returned for a seed file entry that cannot become a user.
var ErrInvalidSeed = errors.New("invalid seed file")

type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Role     string `yaml:"role"`
	Inactive bool   `yaml:"inactive"`
}

func (s seedUser) user() (domain.User, error) {
	if s.Name == "" || s.Email == "" {
		return domain.User{}, fmt.Errorf("%w: user needs name and email", ErrInvalidSeed)
	}
	role := domain.Role(s.Role)
	if role == "" {
		role = domain.RoleTeamMember
	}
	if !role.Valid() {
		return domain.User{}, fmt.Errorf("%w: user %s has role %q", ErrInvalidSeed, s.Email, s.Role)
	}
	return domain.User{
		Name:   s.Name,
		Email:  s.Email,
		Phone:  s.Phone,
		Role:   role,
		Active: !s.Inactive,
	}, nil
}

// NewSeedCommand creates the seed command
func NewSeedCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Create or update users from a YAML file",
		Long: `Seed reads a list of users and creates each one, or updates the user
already registered under the same email.`,
		Example: `  users:
    - name: Alice
      email: alice@example.com
      phone: "+15550001"
      role: admin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading seed file: %w", err)
			}
			var file seedFile
			if err := yaml.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidSeed, err)
			}
			users := make([]domain.User, 0, len(file.Users))
			for _, su := range file.Users {
				u, err := su.user()
				if err != nil {
					return err
				}
				users = append(users, u)
			}

			return withInitialized(cmd, g, func(app modular.Application) error {
				var st store.Store
				if err := app.GetService(store.ServiceName, &st); err != nil {
					return fmt.Errorf("store: %w", err)
				}
				created, updated, err := seedUsers(cmd, st, users)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded users: %d created, %d updated\n", created, updated)
				return nil
			})
		},
	}
}

func seedUsers(cmd *cobra.Command, st store.Store, users []domain.User) (created, updated int, err error) {
	ctx := cmd.Context()
	for _, u := range users {
		existing, err := st.FindUserByEmail(ctx, u.Email)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if _, err := st.CreateUser(ctx, u); err != nil {
				return created, updated, fmt.Errorf("creating %s: %w", u.Email, err)
			}
			created++
		case err != nil:
			return created, updated, fmt.Errorf("looking up %s: %w", u.Email, err)
		default:
			u.ID, u.CreatedAt = existing.ID, existing.CreatedAt
			if err := st.UpdateUser(ctx, u); err != nil {
				return created, updated, fmt.Errorf("updating %s: %w", u.Email, err)
			}
			updated++
		}
	}
	return created, updated, nil
}
