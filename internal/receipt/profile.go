package receipt

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
)

const (
	defaultBusinessName = "Raphietro Atelier"
	defaultTagline      = "Seu estilo, nossa arte."
	defaultPageWidth    = "80mm"
	// UnknownActor is printed for history entries without an acting identity.
	UnknownActor = "Desconhecido"
)

var pageWidthPattern = regexp.MustCompile(`^\d+(\.\d+)?(mm|cm|in)$`)

// Profile carries the branding printed on every receipt.
type Profile struct {
	BusinessName string
	Tagline      string
	PageWidth    string
	// FooterHTML is printed under each copy as markup (address, opening
	// hours). It is sanitized before use.
	FooterHTML string
	Location   *time.Location
}

type profileFile struct {
	BusinessName string `yaml:"business_name"`
	Tagline      string `yaml:"tagline"`
	PageWidth    string `yaml:"page_width"`
	TimeZone     string `yaml:"time_zone"`
	FooterHTML   string `yaml:"footer_html"`
}

// DefaultProfile returns the atelier's standard branding in the local zone.
func DefaultProfile() Profile {
	return Profile{
		BusinessName: defaultBusinessName,
		Tagline:      defaultTagline,
		PageWidth:    defaultPageWidth,
		Location:     domain.DefaultLocation(),
	}
}

// LoadProfile reads a YAML profile from path. Missing keys keep their
// defaults; an empty path returns DefaultProfile.
func LoadProfile(path string) (Profile, error) {
	profile := DefaultProfile()
	path = strings.TrimSpace(path)
	if path == "" {
		return profile, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("receipt: read profile %s: %w", path, err)
	}
	return parseProfile(raw, profile)
}

func parseProfile(raw []byte, profile Profile) (Profile, error) {
	var file profileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Profile{}, fmt.Errorf("receipt: decode profile: %w", err)
	}

	if v := strings.TrimSpace(file.BusinessName); v != "" {
		profile.BusinessName = v
	}
	if v := strings.TrimSpace(file.Tagline); v != "" {
		profile.Tagline = v
	}
	if v := strings.TrimSpace(file.PageWidth); v != "" {
		if !pageWidthPattern.MatchString(v) {
			return Profile{}, fmt.Errorf("receipt: invalid page_width %q", v)
		}
		profile.PageWidth = v
	}
	if v := strings.TrimSpace(file.FooterHTML); v != "" {
		profile.FooterHTML = v
	}
	if v := strings.TrimSpace(file.TimeZone); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return Profile{}, fmt.Errorf("receipt: invalid time_zone %q: %w", v, err)
		}
		profile.Location = loc
	}
	if profile.BusinessName == "" {
		return Profile{}, errors.New("receipt: business name is required")
	}
	return profile, nil
}
