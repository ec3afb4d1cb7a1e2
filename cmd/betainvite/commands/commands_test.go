package commands

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aussiebroadwan/betainvite/internal/betainvite/domain"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/mail"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/service"
	"github.com/aussiebroadwan/betainvite/internal/betainvite/store"
	"github.com/stretchr/testify/require"
)

func setupEnv(t *testing.T) {
	t.Helper()

	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_FILE", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("INVITATIONS_PER_USER", "5")
	t.Setenv("OPS_ADDR", "off")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("WAITLIST_SEND_RATE", "0")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInviteCommands(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "invite", "create", "--issuer", "alice")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	key := lines[0]
	require.Len(t, key, 32)
	require.True(t, strings.HasPrefix(lines[1], "expires "))

	out, err = run(t, "quota", "alice")
	require.NoError(t, err)
	require.Equal(t, "4\n", out)

	out, err = run(t, "invite", "validate", key)
	require.NoError(t, err)
	require.Equal(t, "valid\n", out)

	_, err = run(t, "invite", "consume", key, "bob")
	require.NoError(t, err)

	out, err = run(t, "invite", "validate", key)
	require.NoError(t, err)
	require.Equal(t, "invalid: already used\n", out)

	out, err = run(t, "invite", "validate", "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	require.Equal(t, "invalid: unknown key\n", out)

	out, err = run(t, "cleanup")
	require.NoError(t, err)
	require.Equal(t, "deleted 0 expired invitation keys\n", out)
}

func TestInvalidReason(t *testing.T) {
	require.Equal(t, "unknown key", invalidReason(domain.InvitationKey{}, false))
	require.Equal(t, "already used", invalidReason(domain.InvitationKey{Registrant: "bob"}, true))
	require.Equal(t, "expired", invalidReason(domain.InvitationKey{}, true))
	require.Equal(t, "expired", invalidReason(domain.InvitationKey{AllowMultiUse: true, Registrant: "bob"}, true))
}

func TestInviteCreateMultiUse(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "invite", "create", "--multi-use")
	require.ErrorIs(t, err, errMultiUseNeedsIssuer)

	first, err := run(t, "invite", "create", "--multi-use", "--issuer", "alice")
	require.NoError(t, err)
	second, err := run(t, "invite", "create", "--multi-use", "--issuer", "alice")
	require.NoError(t, err)
	require.Equal(t, first, second)

	out, err := run(t, "quota", "alice")
	require.NoError(t, err)
	require.Equal(t, "4\n", out)
}

func TestWaitlistCommands(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "waitlist", "add", "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "added a@x.com\n", out)

	_, err = run(t, "waitlist", "add", "a@x.com")
	require.ErrorIs(t, err, service.ErrDuplicateEmail)

	_, err = run(t, "waitlist", "add", "nope")
	require.ErrorIs(t, err, service.ErrInvalidEmail)

	_, err = run(t, "waitlist", "add", "b@x.com")
	require.NoError(t, err)

	out, err = run(t, "waitlist", "list", "--pending")
	require.NoError(t, err)
	require.Contains(t, out, "a@x.com")
	require.Contains(t, out, "b@x.com")

	// Without SMTP_HOST nothing can be delivered and entries stay pending.
	out, err = run(t, "waitlist", "invite", "--limit", "1")
	require.ErrorIs(t, err, service.ErrDeliveryFailure)
	require.ErrorIs(t, err, mail.ErrNotConfigured)
	require.Equal(t, "invited 0 entries\n", out)

	out, err = run(t, "waitlist", "list", "--pending")
	require.NoError(t, err)
	require.Contains(t, out, "a@x.com")
	require.Contains(t, out, "b@x.com")

	_, err = run(t, "waitlist", "invite", "a@x.com")
	require.ErrorIs(t, err, mail.ErrNotConfigured)

	_, err = run(t, "waitlist", "invite", "missing@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfigErrorsSurface(t *testing.T) {
	setupEnv(t)
	t.Setenv("DATABASE_DRIVER", "mysql")

	_, err := run(t, "quota", "alice")
	require.ErrorContains(t, err, "unknown DATABASE_DRIVER")
}
