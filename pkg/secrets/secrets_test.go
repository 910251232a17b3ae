package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLookupOrder(t *testing.T) {
	keyring.MockInit()
	r := NewResolver(WithGetenv(env(map[string]string{"FEISHU_APP_SECRET": "from-env"})))

	v, src, err := r.Lookup(FeishuAppSecret, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
	assert.Equal(t, SourceEnvironment, src)

	require.NoError(t, r.Set(FeishuAppSecret, "from-keyring"))
	v, src, err = r.Lookup(FeishuAppSecret, "")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", v)
	assert.Equal(t, SourceKeyring, src)

	v, src, err = r.Lookup(FeishuAppSecret, "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", v)
	assert.Equal(t, SourceConfig, src)

	require.NoError(t, r.Delete(FeishuAppSecret))
	assert.Equal(t, "from-env", r.Get(FeishuAppSecret, ""))
}

func TestLookupMissing(t *testing.T) {
	keyring.MockInit()
	r := NewResolver(WithGetenv(env(nil)))

	_, _, err := r.Lookup(FeishuUserID, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorContains(t, err, "FEISHU_USER_ID")
	assert.Equal(t, "", r.Get(FeishuUserID, ""))

	assert.ErrorIs(t, r.Delete(FeishuUserID), ErrNotFound)
	assert.Error(t, r.Set(FeishuUserID, ""))
}

func TestKeyringUnavailable(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)
	r := NewResolver(WithGetenv(env(map[string]string{"FEISHU_APP_ID": "cli_x"})))

	v, src, err := r.Lookup(FeishuAppID, "")
	require.NoError(t, err)
	assert.Equal(t, "cli_x", v)
	assert.Equal(t, SourceEnvironment, src)
	assert.ErrorIs(t, r.Set(FeishuAppID, "x"), assert.AnError)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "FEISHU_APP_ID", EnvName(FeishuAppID))
	assert.Equal(t, "LIFEOPS_OTHER", EnvName("other"))
	assert.Equal(t, []string{FeishuAppID, FeishuAppSecret, FeishuUserID}, Names())
}
