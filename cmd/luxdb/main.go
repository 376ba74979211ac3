// Package main: luxdb, the postgres schema manager.
//
//	luxdb --conf cmd/conf.yaml init
//	luxdb --db postgres://... status
//	luxdb admin --email ops@luxhedge.com --name Ops --password ********
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli"

	"github.com/tarancss/luxhedge/lib/auth"
	"github.com/tarancss/luxhedge/lib/config"
	"github.com/tarancss/luxhedge/lib/store"
	"github.com/tarancss/luxhedge/lib/store/postgres"
	"github.com/tarancss/luxhedge/lib/util"
)

// ErrNoEmail is returned by admin without --email.
var ErrNoEmail = errors.New("--email is required")

// tables created by postgres.Schema.
var tables = []string{ //nolint:gochecknoglobals // read only
	"users", "plans", "funds", "goals", "withdrawals", "wallets", "performance", "otp", "watcher",
}

func main() {
	app := cli.NewApp()
	app.Name = "luxdb"
	app.Usage = "luxhedge postgres database manager"

	// Declare flags common to commands, and pass them in Flags below.
	confFlag := cli.StringFlag{
		Name:  "conf",
		Usage: "path to a json or yaml config",
	}

	dbFlag := cli.StringFlag{
		Name:  "db",
		Usage: "postgres connection url, overrides the config",
	}

	force := cli.BoolFlag{
		Name:  "force",
		Usage: "drop every table before creating the schema",
	}

	app.Commands = []cli.Command{
		{
			Name:  "init",
			Usage: "Create the schema",
			Flags: []cli.Flag{confFlag, dbFlag, force},
			Action: func(clictx *cli.Context) error {
				p, err := open(clictx)
				if err != nil {
					return err
				}
				defer p.Close()

				if clictx.Bool("force") {
					fmt.Println("dropping tables")

					if err = drop(p.DB()); err != nil {
						return err
					}
				}

				if _, err = p.DB().Exec(postgres.Schema); err != nil {
					return fmt.Errorf("creating schema: %w", err)
				}

				fmt.Println("schema created")

				return nil
			},
		},
		{
			Name:  "status",
			Usage: "Print the number of rows of every table",
			Flags: []cli.Flag{confFlag, dbFlag},
			Action: func(clictx *cli.Context) error {
				p, err := open(clictx)
				if err != nil {
					return err
				}
				defer p.Close()

				return status(os.Stdout, p.DB())
			},
		},
		{
			Name:  "admin",
			Usage: "Create a verified admin user",
			Flags: []cli.Flag{
				confFlag, dbFlag,
				cli.StringFlag{Name: "email", Usage: "email of the admin"},
				cli.StringFlag{Name: "name", Usage: "name of the admin", Value: "Admin"},
				cli.StringFlag{Name: "password", Usage: "password of the admin"},
			},
			Action: func(clictx *cli.Context) error {
				p, err := open(clictx)
				if err != nil {
					return err
				}
				defer p.Close()

				u, err := createAdmin(context.Background(), p, clictx.String("email"), clictx.String("name"),
					clictx.String("password"))
				if err != nil {
					return err
				}

				fmt.Printf("admin %s created with id %s\n", u.Email, u.ID)

				return nil
			},
		},
	}

	// Global flags. Used when no "command" passed. Must be repeated above for commands.
	app.Flags = []cli.Flag{confFlag, dbFlag}

	// There is no "default" command. Print help and exit.
	app.Action = func(clictx *cli.Context) error {
		fmt.Printf("Must specify command. Run `%s help` for info\n", app.Name)

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// open connects to the database of the config file or of the --db flag. The schema is created if missing.
func open(clictx *cli.Context) (*postgres.Postgres, error) {
	conn := clictx.String("db")
	if conn == "" {
		conf, err := config.ExtractConfiguration(clictx.String("conf"))
		if err != nil {
			return nil, err
		}

		if !strings.HasPrefix(conf.DBConn, "postgres") {
			return nil, fmt.Errorf("not a postgres connection: %q", conf.DBConn)
		}

		conn = conf.DBConn
	}

	return postgres.New(conn)
}

// drop drops every table of the schema.
func drop(db *sqlx.DB) error {
	if _, err := db.Exec("drop table if exists " + strings.Join(tables, ", ") + " cascade"); err != nil {
		return fmt.Errorf("dropping tables: %w", err)
	}

	return nil
}

// status writes the row count of every table to out.
func status(out io.Writer, db *sqlx.DB) error {
	for _, t := range tables {
		var n int64
		if err := db.Get(&n, "select count(*) from "+t); err != nil {
			return fmt.Errorf("counting %s: %w", t, err)
		}

		fmt.Fprintf(out, "%-12s %d\n", t, n)
	}

	return nil
}

// createAdmin stores a verified admin with KYC approved.
func createAdmin(ctx context.Context, db store.DB, email, name, password string) (store.User, error) {
	email = util.NormEmail(email)
	if email == "" {
		return store.User{}, ErrNoEmail
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return store.User{}, err
	}

	u := store.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         store.RoleAdmin,
		Verified:     true,
		KYC:          store.KYCApproved,
		CreatedAt:    time.Now().UTC(),
	}

	if err = db.CreateUser(ctx, u); err != nil {
		return store.User{}, fmt.Errorf("creating admin %s: %w", email, err)
	}

	return u, nil
}
