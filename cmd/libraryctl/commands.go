package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/library-system/internal/model"
	"github.com/mmeshcher/library-system/internal/repository"
	"github.com/mmeshcher/library-system/internal/service"
)

var sampleBooks = []service.BookInput{
	{Barcode: "9780134685991", Title: "Effective TypeScript", Authors: []string{"Dan Vanderkam"}, CopiesTotal: 3},
	{Barcode: "9781492051725", Title: "Learning React", Authors: []string{"Alex Banks", "Eve Porcello"}, CopiesTotal: 2},
	{Barcode: "9780132350884", Title: "Clean Code", Authors: []string{"Robert C. Martin"}, CopiesTotal: 4},
	{Barcode: "9780596007126", Title: "Head First Design Patterns", Authors: []string{"Eric Freeman", "Elisabeth Robson"}, CopiesTotal: 2},
	{Barcode: "9780135957059", Title: "The Pragmatic Programmer", Authors: []string{"David Thomas", "Andrew Hunt"}, CopiesTotal: 3},
}

type sampleUser struct {
	in   service.RegisterInput
	role model.Role
}

var sampleUsers = []sampleUser{
	{in: service.RegisterInput{Name: "John Doe", RollNo: "STU001", Email: "john@college.edu"}, role: model.RoleStudent},
	{in: service.RegisterInput{Name: "Jane Smith", RollNo: "STU002", Email: "jane@college.edu"}, role: model.RoleStudent},
	{in: service.RegisterInput{Name: "Admin User", RollNo: "ADM001", Email: "admin@college.edu"}, role: model.RoleAdmin},
	{in: service.RegisterInput{Name: "Librarian User", RollNo: "LIB001", Email: "librarian@college.edu"}, role: model.RoleLibrarian},
	{in: service.RegisterInput{Name: "Gate Guard", RollNo: "GRD001", Email: "guard@college.edu"}, role: model.RoleGuard},
}

// catalog описывает операции сервиса, которые использует утилита.
type catalog interface {
	AddBook(ctx context.Context, in service.BookInput) (*model.Book, error)
	CreateUser(ctx context.Context, in service.RegisterInput, role model.Role) (*model.User, error)
	ReconcileInventory(ctx context.Context) ([]repository.BookDrift, error)
	Close() error
}

type openFunc func(databaseURI string) (catalog, error)

func openService(databaseURI string) (catalog, error) {
	if databaseURI == "" {
		return nil, errors.New("database URI is required: pass --database or set DATABASE_URI")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	repo, err := repository.NewPostgresRepository(context.Background(), databaseURI, logger.Named("repository"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return service.NewService(repo, logger, nil, nil, nil), nil
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(openService)
}

func buildRootCmd(open openFunc) *cobra.Command {
	var databaseURI string

	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Maintenance commands for the library service",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVar(&databaseURI, "database", os.Getenv("DATABASE_URI"), "database URI (defaults to $DATABASE_URI)")

	withService := func(fn func(ctx context.Context, svc catalog, out io.Writer, args []string) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			svc, err := open(databaseURI)
			if err != nil {
				return err
			}
			defer svc.Close()
			return fn(cmd.Context(), svc, cmd.OutOrStdout(), args)
		}
	}

	root.AddCommand(
		newSeedCmd(withService),
		newReconcileCmd(withService),
		newUserCmd(withService),
	)

	return root
}

type runner func(fn func(ctx context.Context, svc catalog, out io.Writer, args []string) error) func(cmd *cobra.Command, args []string) error

func newSeedCmd(with runner) *cobra.Command {
	var (
		withUsers bool
		password  string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Add the sample catalog and, optionally, sample accounts",
		Args:  cobra.NoArgs,
	}
	cmd.Flags().BoolVar(&withUsers, "with-users", false, "also create sample student, staff and guard accounts")
	cmd.Flags().StringVar(&password, "password", "password123", "password for the sample accounts")

	cmd.RunE = with(func(ctx context.Context, svc catalog, out io.Writer, _ []string) error {
		for _, in := range sampleBooks {
			_, err := svc.AddBook(ctx, in)
			switch {
			case errors.Is(err, service.ErrBookExists):
				fmt.Fprintf(out, "skip  %s - %s (exists)\n", in.Barcode, in.Title)
			case err != nil:
				return fmt.Errorf("add book %s: %w", in.Barcode, err)
			default:
				fmt.Fprintf(out, "added %s - %s\n", in.Barcode, in.Title)
			}
		}

		if !withUsers {
			return nil
		}

		for _, u := range sampleUsers {
			in := u.in
			in.Password = password
			_, err := svc.CreateUser(ctx, in, u.role)
			switch {
			case errors.Is(err, service.ErrUserExists):
				fmt.Fprintf(out, "skip  %s (%s, exists)\n", in.RollNo, u.role)
			case err != nil:
				return fmt.Errorf("create user %s: %w", in.RollNo, err)
			default:
				fmt.Fprintf(out, "added %s (%s)\n", in.RollNo, u.role)
			}
		}
		return nil
	})

	return cmd
}

func newReconcileCmd(with runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reset available copies to total copies minus active loans",
		Args:  cobra.NoArgs,
	}

	cmd.RunE = with(func(ctx context.Context, svc catalog, out io.Writer, _ []string) error {
		drifts, err := svc.ReconcileInventory(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			fmt.Fprintf(out, "%s: %d -> %d\n", d.Barcode, d.Previous, d.Actual)
		}
		fmt.Fprintf(out, "%d book(s) corrected\n", len(drifts))
		return nil
	})

	return cmd
}

func newUserCmd(with runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}

	var (
		in   service.RegisterInput
		role string
	)

	add := &cobra.Command{
		Use:     "add <roll-no>",
		Short:   "Create an account with any role",
		Example: "  libraryctl user add LIB002 --name \"Mary Major\" --email mary@college.edu --password s3cret! --role librarian",
		Args:    cobra.ExactArgs(1),
	}
	f := add.Flags()
	f.StringVar(&in.Name, "name", "", "full name")
	f.StringVar(&in.Email, "email", "", "email address")
	f.StringVar(&in.Password, "password", "", "initial password")
	f.StringVar(&role, "role", string(model.RoleStudent), "student, librarian, guard or admin")

	add.RunE = with(func(ctx context.Context, svc catalog, out io.Writer, args []string) error {
		in.RollNo = args[0]
		u, err := svc.CreateUser(ctx, in, model.Role(role))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "created user %d %s (%s)\n", u.ID, u.RollNo, u.Role)
		return nil
	})

	cmd.AddCommand(add)
	return cmd
}
