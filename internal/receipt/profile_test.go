package receipt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfileDefaultsWithoutPath(t *testing.T) {
	profile, err := LoadProfile("")
	require.NoError(t, err)
	assert.Equal(t, "Raphietro Atelier", profile.BusinessName)
	assert.Equal(t, "Seu estilo, nossa arte.", profile.Tagline)
	assert.Equal(t, "80mm", profile.PageWidth)
	assert.NotNil(t, profile.Location)
}

func TestLoadProfileFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "receipt.yaml")
	content := "business_name: Raphietro Atelier Centro\ntime_zone: UTC\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	profile, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "Raphietro Atelier Centro", profile.BusinessName)
	assert.Equal(t, "Seu estilo, nossa arte.", profile.Tagline, "unset keys keep defaults")
	assert.Equal(t, "UTC", profile.Location.String())
}

func TestLoadProfileFooter(t *testing.T) {
	profile, err := parseProfile([]byte("footer_html: \"<p>Seg a Sex, 9h-18h</p>\"\n"), DefaultProfile())
	require.NoError(t, err)
	assert.Equal(t, "<p>Seg a Sex, 9h-18h</p>", profile.FooterHTML)
	assert.Equal(t, "Raphietro Atelier", profile.BusinessName)
}

func TestLoadProfileRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"page width": "page_width: \"80mm; color: red\"\n",
		"time zone":  "time_zone: Mars/Base\n",
		"yaml":       "business_name: [unterminated\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseProfile([]byte(content), DefaultProfile())
			assert.Error(t, err)
		})
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
