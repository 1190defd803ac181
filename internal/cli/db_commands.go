package cli

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dialogtool/internal/answerstore"
	"dialogtool/internal/store"
)

func initDBCommand(a *app) *cobra.Command {
	var dbConnStr string

	return withDBFlag(&cobra.Command{
		Use:   "init-db",
		Short: "Create the comparison runs and answer units tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn := a.connString(dbConnStr)

			s, err := store.NewStore(conn)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.InitDB(cmd.Context()); err != nil {
				return err
			}

			answers := answerstore.NewPostgresStore(sqlx.NewDb(s.DB(), "postgres"))
			if err := answers.InitSchema(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Database schema created on %s\n", maskConnectionString(conn))
			return nil
		},
	}, &dbConnStr)
}

func importAnswersCommand(a *app) *cobra.Command {
	var dbConnStr string

	return withDBFlag(&cobra.Command{
		Use:   "import-answers <answers.json>",
		Short: "Import an answer units JSON file into the database",
		Long: `Import an answer units JSON file into the database.

Units already stored are replaced with their new content and mapping URIs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := answerstore.LoadFile(args[0])
			if err != nil {
				return err
			}

			db, err := sqlx.ConnectContext(cmd.Context(), "postgres", a.connString(dbConnStr))
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			units := file.Units()
			if err := answerstore.NewPostgresStore(db).Import(cmd.Context(), units); err != nil {
				return err
			}
			a.logger.Info("answer units imported", zap.String("file", args[0]), zap.Int("count", len(units)))
			fmt.Fprintf(cmd.OutOrStdout(), "%d answer units imported\n", len(units))
			return nil
		},
	}, &dbConnStr)
}

func withDBFlag(cmd *cobra.Command, dbConnStr *string) *cobra.Command {
	cmd.Flags().StringVar(dbConnStr, "db", "", "Database connection string (overrides config)")
	return cmd
}

func (a *app) connString(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return a.cfg.DBConnString
}

// maskConnectionString masks sensitive parts of database connection string for display
func maskConnectionString(connStr string) string {
	if len(connStr) > 20 {
		return connStr[:10] + "..." + connStr[len(connStr)-10:]
	}
	return "***"
}
