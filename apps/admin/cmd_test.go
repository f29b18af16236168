package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/user"
	testutil "github.com/imusici/accademia/tests"
)

func setup(t *testing.T) (*testutil.Env, *commandLine) {
	env := testutil.Setup(t)
	return env, &commandLine{
		db:    new(sql.DB), // never used: migrateFunc is mocked
		users: env.Users,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantKind   core.Kind
	secret     string // typed at the prompt
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest, check func(t *testing.T, tt cliTest)) {
	t.Helper()
	for _, tt := range tests {
		tt := tt
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			readPasswordFunc = func(fd int) ([]byte, error) {
				return []byte(tt.secret), nil
			}

			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			case tt.wantKind != core.KindUnknown:
				assert.Equal(t, tt.wantKind, core.KindOf(err))
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				require.NoError(t, err)
				if check != nil {
					check(t, tt)
				}
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	_, cli := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "lessons", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}, nil)
}

func Test_commandLine_addUser(t *testing.T) {
	env, cli := setup(t)
	ctx := context.Background()
	existing := env.CreateUser(t, user.RoleTeacher, "Luca", "Bianchi")
	_, err := env.Users.Update(ctx, existing.ID, user.UpdateUser{IsActive: new(bool)})
	require.NoError(t, err)

	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "p.neri@scuola.it", "-first", "Paola", "-last", "Neri"}, wantErr: errHelp},
		{
			name: "unknown role", args: []string{"adduser", "-email", "p.neri@scuola.it", "-first", "Paola", "-last", "Neri", "-role", "janitor"},
			secret: "Pianoforte#88", wantKind: core.KindInvalidInput,
		},
	}, nil)

	t.Run("admin", func(t *testing.T) {
		readPasswordFunc = func(int) ([]byte, error) { return []byte("Pianoforte#88"), nil }
		require.NoError(t, cli.run([]string{"admin", "adduser", "-email", "P.Neri@scuola.it", "-first", "Paola", "-last", "Neri"}))

		usr, err := env.Users.GetByEmail(ctx, "p.neri@scuola.it")
		require.NoError(t, err)
		assert.Equal(t, user.RoleAdmin, usr.Role)
		assert.True(t, env.Creds.Verify("Pianoforte#88", usr.PasswordHash))

		// admins start with the default PIN
		_, err = env.Auth.BeginAdminLogin(ctx, usr.Email, env.Conf.Auth.DefaultAdminPIN)
		assert.NoError(t, err)
	})

	t.Run("existing user is reactivated", func(t *testing.T) {
		readPasswordFunc = func(int) ([]byte, error) { return []byte("Chitarra#2024"), nil }
		require.NoError(t, cli.run([]string{"admin", "adduser", "-email", existing.Email, "-first", "Luca", "-last", "Bianchi"}))

		usr, err := env.Users.Get(ctx, existing.ID)
		require.NoError(t, err)
		assert.True(t, usr.IsActive)
		assert.Equal(t, user.RoleTeacher, usr.Role)
		assert.True(t, env.Creds.Verify("Chitarra#2024", usr.PasswordHash))
	})
}

func Test_commandLine_resetPassword(t *testing.T) {
	env, cli := setup(t)
	usr := env.CreateUser(t, user.RoleStudent, "Anna", "Verdi")

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", usr.Email}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "ghost@scuola.it"}, secret: "Flauto#2024", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, secret: "Flauto#2024"},
		{name: "reset (any case)", args: []string{"resetpassword", "-email", "ANNA.verdi@scuola.it"}, secret: "Arpa#2025"},
	}, func(t *testing.T, tt cliTest) {
		refreshed, err := env.Users.Get(context.Background(), usr.ID)
		require.NoError(t, err)
		assert.False(t, bytes.Equal(refreshed.PasswordHash, usr.PasswordHash))
		assert.True(t, env.Creds.Verify(tt.secret, refreshed.PasswordHash))
	})
}

func Test_commandLine_setPIN(t *testing.T) {
	env, cli := setup(t)
	admin := env.CreateUser(t, user.RoleAdmin, "Paola", "Neri")
	student := env.CreateUser(t, user.RoleStudent, "Anna", "Verdi")

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"setpin"}, wantErr: errHelp},
		{name: "no PIN", args: []string{"setpin", "-email", admin.Email}, wantErr: errHelp},
		{name: "not an admin", args: []string{"setpin", "-email", student.Email}, secret: "5678", wantErr: user.ErrNotAdmin},
		{name: "too short", args: []string{"setpin", "-email", admin.Email}, secret: "12", wantKind: core.KindInvalidInput},
		{name: "set", args: []string{"setpin", "-email", admin.Email}, secret: "5678"},
	}, func(t *testing.T, tt cliTest) {
		_, err := env.Auth.BeginAdminLogin(context.Background(), admin.Email, tt.secret)
		assert.NoError(t, err)
	})
}
