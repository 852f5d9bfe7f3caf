package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{env://([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// parseVariableWithDefault splits "VAR:-default" into its parts.
func parseVariableWithDefault(varPart string) (varName, defaultValue string, hasDefault bool) {
	if strings.Contains(varPart, ":-") {
		parts := strings.SplitN(varPart, ":-", 2)
		return parts[0], parts[1], true
	}
	return varPart, "", false
}

// EnvSubstituter handles environment variable substitution in config file
// content before parsing.
type EnvSubstituter struct{}

// SubstituteEnvVars replaces ${env://VAR} and ${env://VAR:-default}
// patterns with environment variables. A referenced variable that is
// unset and has no default is an error.
func (e *EnvSubstituter) SubstituteEnvVars(content string) (string, error) {
	var errs []string

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varPart := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${env://")
		varName, defaultValue, hasDefault := parseVariableWithDefault(varPart)

		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		if hasDefault {
			return defaultValue
		}

		errs = append(errs, fmt.Sprintf("required environment variable %s not set in %s", varName, match))
		return match
	})

	if len(errs) > 0 {
		return "", fmt.Errorf("environment variable substitution failed: %s", strings.Join(errs, ", "))
	}
	return result, nil
}

// HasEnvVars checks if content contains environment variable patterns.
func HasEnvVars(content string) bool {
	return envVarPattern.MatchString(content)
}
