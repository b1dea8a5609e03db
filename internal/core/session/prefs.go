package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Preference keys stored next to the session id.
const (
	PrefTheme            = "theme"
	PrefSidebarCollapsed = "sidebar_collapsed"
)

// Themes accepted for PrefTheme. ThemeAuto leaves the terminal's choice alone.
const (
	ThemeAuto  = "auto"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Preferences are UI settings persisted per install.
type Preferences struct {
	Theme            string
	SidebarCollapsed bool
}

// PrefStore reads and writes settings. db.DB satisfies it.
type PrefStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// PreferenceKeys lists the keys SetPreference accepts.
func PreferenceKeys() []string {
	return []string{PrefTheme, PrefSidebarCollapsed}
}

// LoadPreferences returns the stored preferences. Missing or unreadable
// values fall back to the defaults.
func LoadPreferences(store PrefStore) (Preferences, error) {
	prefs := Preferences{Theme: ThemeAuto}

	theme, err := store.GetSetting(PrefTheme)
	if err != nil {
		return prefs, fmt.Errorf("read %s: %w", PrefTheme, err)
	}
	if normalized, ok := normalizeTheme(theme); ok {
		prefs.Theme = normalized
	}

	collapsed, err := store.GetSetting(PrefSidebarCollapsed)
	if err != nil {
		return prefs, fmt.Errorf("read %s: %w", PrefSidebarCollapsed, err)
	}
	if b, err := strconv.ParseBool(collapsed); err == nil {
		prefs.SidebarCollapsed = b
	}
	return prefs, nil
}

// SetPreference validates and stores one preference.
func SetPreference(store PrefStore, key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case PrefTheme:
		theme, ok := normalizeTheme(value)
		if !ok {
			return fmt.Errorf("theme must be %s, %s or %s", ThemeAuto, ThemeLight, ThemeDark)
		}
		value = theme
	case PrefSidebarCollapsed:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false", PrefSidebarCollapsed)
		}
		value = strconv.FormatBool(b)
	default:
		return fmt.Errorf("unknown preference %q", key)
	}
	return store.SetSetting(key, value)
}

func normalizeTheme(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ThemeAuto:
		return ThemeAuto, true
	case ThemeLight:
		return ThemeLight, true
	case ThemeDark:
		return ThemeDark, true
	}
	return "", false
}
