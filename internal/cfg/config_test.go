package cfg

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	const content = `
log_format = "json"
log_level = "debug"
github_api_url = "https://github.example.com/api/v3"
http_client_timeout = "20s"
pull_request_title = "chore: sync {{ .Target }} with {{ .Source }}"
notification_icon_emoji = ":robot_face:"
prometheus_pushgateway_url = "http://pushgateway:9091"
`

	config, err := Load(strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, "json", config.LogFormat)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, DefLogTimeKey, config.LogTimeKey)
	assert.Equal(t, "https://github.example.com/api/v3", config.GithubAPIURL)
	assert.Equal(t, 20*time.Second, config.HTTPTimeout())
	assert.Equal(t, "chore: sync {{ .Target }} with {{ .Source }}", config.PullRequestTitle)
	assert.Empty(t, config.PullRequestBody)
	assert.Equal(t, ":robot_face:", config.NotificationIconEmoji)
	assert.Equal(t, "http://pushgateway:9091", config.PrometheusPushgatewayURL)
}

func TestDefault(t *testing.T) {
	config := Default()

	assert.Equal(t, DefLogFormat, config.LogFormat)
	assert.Equal(t, DefLogLevel, config.LogLevel)
	assert.Equal(t, DefLogTimeKey, config.LogTimeKey)
	assert.Equal(t, DefHTTPClientTimeout, config.HTTPTimeout())
}

func TestLoadEmpty(t *testing.T) {
	config, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestLoadInvalid(t *testing.T) {
	for _, content := range []string{
		`log_format = "xml"`,
		`http_client_timeout = "soon"`,
		`http_client_timeout = "-1s"`,
		`log_level = `,
	} {
		_, err := Load(strings.NewReader(content))
		assert.Error(t, err, content)
	}
}

func TestMarshalRoundtrip(t *testing.T) {
	config := Default()
	config.GithubAPIURL = "https://github.example.com/api/v3"

	var buf bytes.Buffer
	require.NoError(t, config.Marshal(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}
