// Command createadmin provisions an admin account. The password is read
// from the terminal without echo.
//
//	createadmin -name "Board Admin" -email admin@example.com
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/account"
	accountentity "github.com/ovaphlow/pitchfork/service-board-auth/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/credential"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/utilities"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

type adminCreator interface {
	CreateAdmin(ctx context.Context, name, email, password string) (*accountentity.View, error)
}

func main() {
	_ = godotenv.Load()

	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "admin email")
	flag.Parse()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	ctx := context.Background()
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	repos := repomanager.NewPostgresManager()
	if err := repos.RunMigrations(ctx, db.DB); err != nil {
		sugar.Fatalf("migrations: %v", err)
	}
	ids, err := utilities.NewIDGenerator(utilities.NodeFromEnv())
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}
	svc := account.NewService(account.Deps{
		DB: db, Repos: repos, Hasher: credential.NewBcryptHasher(credential.CostFromEnv()), IDs: ids, Logger: sugar,
	})

	if err := run(ctx, svc, *name, *email, bufio.NewReader(os.Stdin), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "createadmin: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc adminCreator, name, email string, in *bufio.Reader, out io.Writer) error {
	var err error
	if name == "" {
		if name, err = prompt(in, out, "Name: "); err != nil {
			return err
		}
	}
	if email == "" {
		if email, err = prompt(in, out, "Email: "); err != nil {
			return err
		}
	}
	pw, err := password(out, "Password: ")
	if err != nil {
		return err
	}
	confirm, err := password(out, "Confirm password: ")
	if err != nil {
		return err
	}
	if pw != confirm {
		return errors.New("passwords do not match")
	}

	v, err := svc.CreateAdmin(ctx, name, email, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "admin %s created with id %d\n", v.Email, v.ID)
	return nil
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func password(out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
