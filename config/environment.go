package config

import (
	"os"
	"strings"
)

const appEnvVar = "APP_ENV"

// Environment is the deployment stage selected through APP_ENV.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"dev":   Development,
	"local": Development,
	"stage": Staging,
	"stag":  Staging,
	"stg":   Staging,
	"prod":  Production,
	"prd":   Production,
}

var envConfigPaths = map[Environment]string{
	Production: "config/config.production.yml",
	Staging:    "config/config.staging.yml",
}

// AppEnvironment reads APP_ENV, resolving aliases. An empty value means
// development; unknown values are returned lower-cased as they are.
func AppEnvironment() Environment {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return Development
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return Environment(env)
}

// ProductionLike reports whether a missing run lock or similar gap deserves a
// warning.
func (e Environment) ProductionLike() bool {
	return e == Production || e == Staging
}

// ResolvePath picks the environment specific configuration file for APP_ENV
// when path is empty or the default one and such a file exists.
func ResolvePath(path string) string {
	if path == "" {
		path = DefaultPath
	}
	if path != DefaultPath {
		return path
	}

	envPath, ok := envConfigPaths[AppEnvironment()]
	if !ok {
		return path
	}
	if _, err := os.Stat(envPath); err != nil {
		return path
	}
	return envPath
}
