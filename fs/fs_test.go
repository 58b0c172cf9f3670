package appfs

import (
	"io/fs"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edtools/edcore/core"
	testutil "github.com/edtools/edcore/tests"
)

func TestMigrations(t *testing.T) {
	names, err := fs.Glob(FS, MigrationsDir+"/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)
	for _, name := range names {
		data, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "-- +goose Up", name)
		assert.Contains(t, string(data), "-- +goose Down", name)
	}
}

func TestCredentialsTemplate(t *testing.T) {
	conf := &core.Config{AppName: "EdCore", FrontendBaseURL: "https://portal.example.org", TestMode: true}
	logger := testutil.NewLogger()
	core.ParseEmailTemplates(FS, EmailTemplatesDir, conf, logger)
	require.Empty(t, logger.Entries, "templates failed to parse")

	msg := &core.EmailMessage{
		To:           []mail.Address{{Address: "ana@gmail.com"}},
		TemplateName: "credentials",
		TemplateData: map[string]interface{}{
			"StudentName":        "Ana Pérez",
			"InstitutionalEmail": "ana.perez@example.org",
			"Password":           "Ab1!cdEf2@gh",
			"PortalURL":          "https://portal.example.org",
		},
	}
	require.NoError(t, msg.Render(conf))
	assert.True(t, strings.HasPrefix(msg.TextContent, "Hola Ana Pérez,"))
	assert.Contains(t, msg.TextContent, "ana.perez@example.org")
	assert.Contains(t, msg.TextContent, "Ab1!cdEf2@gh")
	assert.Contains(t, msg.HTMLContent, "<strong>ana.perez@example.org</strong>")
	assert.Contains(t, msg.HTMLContent, `<a href="https://portal.example.org">EdCore</a>`)
}
