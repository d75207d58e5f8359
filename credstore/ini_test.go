package credstore_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorbucket/credmon/credstore"
)

const sampleConfig = `# AWS config
[default]
region = us-east-1

[profile build]
sso_start_url = https://corp.awsapps.com/start
sso_region = us-west-2
sso_account_id = 123456789012
sso_role_name = ArtifactReader
region = us-west-2
`

const sampleCredentials = `[default]
aws_access_key_id = AKIAEXAMPLE
aws_secret_access_key = secret

[build]
aws_access_key_id = ASIAEXAMPLE
aws_secret_access_key = secret
aws_session_token = token
`

func TestSSOConfig_NamedProfile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config", sampleConfig)

	sso, err := credstore.SSOConfig(path, "build")

	require.NoError(t, err)
	assert.Equal(t, "https://corp.awsapps.com/start", sso.StartURL)
	assert.Equal(t, "us-west-2", sso.Region)
}

func TestSSOConfig_ProfileWithoutSSO(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config", sampleConfig)

	_, err := credstore.SSOConfig(path, "default")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no SSO configuration")
}

func TestSSOConfig_UnknownProfile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config", sampleConfig)

	_, err := credstore.SSOConfig(path, "nonexistent")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSSOConfig_MissingFile(t *testing.T) {
	_, err := credstore.SSOConfig(filepath.Join(t.TempDir(), "config"), "build")
	require.Error(t, err)
}

func TestSharedCredentials_Present(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "credentials", sampleCredentials)

	creds := credstore.SharedCredentials(path, "build")

	assert.True(t, creds.HasAccessKey)
	assert.True(t, creds.HasSecretKey)
	assert.True(t, creds.HasSessionToken)

	creds = credstore.SharedCredentials(path, "default")
	assert.True(t, creds.HasAccessKey)
	assert.False(t, creds.HasSessionToken)
}

func TestSharedCredentials_MissingFileOrProfile(t *testing.T) {
	creds := credstore.SharedCredentials(filepath.Join(t.TempDir(), "credentials"), "default")
	assert.False(t, creds.HasAccessKey)

	dir := t.TempDir()
	path := writeFile(t, dir, "credentials", sampleCredentials)
	creds = credstore.SharedCredentials(path, "other")
	assert.False(t, creds.HasAccessKey)
}
