package credstore

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// SSOSettings is the subset of an AWS config profile needed to drive an
// SSO login.
type SSOSettings struct {
	StartURL string
	Region   string
}

// StaticCredentials reports which static keys a shared-credentials
// profile carries. Values are deliberately not retained.
type StaticCredentials struct {
	HasAccessKey    bool
	HasSecretKey    bool
	HasSessionToken bool
}

// SSOConfig reads sso_start_url and sso_region for the given profile
// from an AWS config file. The default profile lives in a [default]
// section; named profiles in [profile name] sections.
func SSOConfig(path, profile string) (SSOSettings, error) {
	section := "profile " + profile
	if profile == "default" {
		section = "default"
	}

	values, err := readSection(path, section)
	if err != nil {
		return SSOSettings{}, err
	}
	if values == nil {
		return SSOSettings{}, fmt.Errorf("profile %q not found in %s", profile, path)
	}

	settings := SSOSettings{
		StartURL: values["sso_start_url"],
		Region:   values["sso_region"],
	}
	if settings.StartURL == "" || settings.Region == "" {
		return SSOSettings{}, fmt.Errorf("profile %q has no SSO configuration", profile)
	}
	return settings, nil
}

// SharedCredentials inspects the shared-credentials file for the given
// profile. A missing file or profile yields a zero value, not an error.
func SharedCredentials(path, profile string) StaticCredentials {
	values, err := readSection(path, profile)
	if err != nil || values == nil {
		return StaticCredentials{}
	}
	return StaticCredentials{
		HasAccessKey:    values["aws_access_key_id"] != "",
		HasSecretKey:    values["aws_secret_access_key"] != "",
		HasSessionToken: values["aws_session_token"] != "",
	}
}

// readSection parses the INI-style key/value file at path and returns
// the entries of the named section, or nil if the section is absent.
// The AWS file format is flat enough that a full INI library is not
// warranted: sections, key = value pairs, and # or ; comments.
func readSection(path, section string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values map[string]string
	inSection := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			inSection = name == section
			if inSection && values == nil {
				values = make(map[string]string)
			}
			continue
		}
		if !inSection {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		values[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
