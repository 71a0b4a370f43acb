package main

import (
	"context"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/emacs-straight/gnu-elpa-mirror/auth"
	"github.com/emacs-straight/gnu-elpa-mirror/mirror"
)

var defaultWorkDir = path.Join(os.TempDir(), "gnu-elpa-mirror")

// parseConfigFile reads the optional yaml config. An empty path yields
// a config running entirely on defaults.
func parseConfigFile(path string) (*mirror.Config, error) {
	conf := &mirror.Config{}
	if path == "" {
		return conf, nil
	}

	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(yamlFile, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func applyDefaults(conf *mirror.Config) *mirror.Config {
	if conf.WorkDir == "" {
		conf.WorkDir = defaultWorkDir
	}
	conf.GitENVs = []string{fmt.Sprintf("PATH=%s", os.Getenv("PATH"))}
	return conf
}

// resolveToken returns the hosting access token, either directly from
// ACCESS_TOKEN or minted from GitHub App credentials.
func resolveToken(ctx context.Context) (string, error) {
	if token := os.Getenv("ACCESS_TOKEN"); token != "" {
		return token, nil
	}

	appID := os.Getenv("GITHUB_APP_ID")
	installationID := os.Getenv("GITHUB_APP_INSTALLATION_ID")
	privateKeyPath := os.Getenv("GITHUB_APP_PRIVATE_KEY_PATH")
	if appID != "" && installationID != "" && privateKeyPath != "" {
		token, err := auth.AppInstallationToken(ctx, appID, installationID, privateKeyPath, auth.TokenRequest{})
		if err != nil {
			return "", fmt.Errorf("unable to mint app installation token err:%w", err)
		}
		return token.Token, nil
	}

	return "", fmt.Errorf("ACCESS_TOKEN or GitHub App credentials (GITHUB_APP_ID, GITHUB_APP_INSTALLATION_ID, GITHUB_APP_PRIVATE_KEY_PATH) required")
}
