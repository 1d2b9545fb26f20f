package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/jackdes93/webrunner/archive"
	"github.com/jackdes93/webrunner/webapp"
)

// SettingsPath is the env file inside the archive that configures the
// launcher. The process environment is never consulted.
const SettingsPath = "WEB-INF/webrunner.env"

type Settings struct {
	AppName  string
	AppEnv   string
	LogLevel string
	GinMode  string
}

func DefaultSettings() Settings {
	return Settings{
		AppName:  "webrunner",
		AppEnv:   webapp.DevEnv,
		LogLevel: "info",
		GinMode:  gin.ReleaseMode,
	}
}

// LoadSettings reads SettingsPath from root over the defaults. A missing file
// leaves the defaults in place.
func LoadSettings(root *archive.Resource) (Settings, error) {
	s := DefaultSettings()
	f, err := root.FS().Open(SettingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("open %s: %w", SettingsPath, err)
	}
	defer f.Close()

	env, err := godotenv.Parse(f)
	if err != nil {
		return s, fmt.Errorf("parse %s: %w", SettingsPath, err)
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(env[key]); v != "" {
			*dst = v
		}
	}
	set(&s.AppName, "APP_NAME")
	set(&s.AppEnv, "APP_ENV")
	set(&s.LogLevel, "LOG_LEVEL")
	set(&s.GinMode, "GIN_MODE")

	switch s.GinMode {
	case gin.ReleaseMode, gin.DebugMode, gin.TestMode:
	default:
		return s, fmt.Errorf("%s: unknown GIN_MODE %q", SettingsPath, s.GinMode)
	}
	return s, nil
}
