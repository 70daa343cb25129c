package i18n

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	require.NoError(t, Initialize())

	assert.Equal(t, []string{"ar", "en"}, GetSupportedLanguages())
	assert.True(t, IsSupported("ar"))
	assert.False(t, IsSupported("fr"))

	assert.Equal(t, "The pricing deadline has passed", T("en", KeyTooLateToQuote))
	assert.Equal(t, "انتهت مهلة التسعير", T("ar", KeyTooLateToQuote))
	assert.Equal(t, "Invalid broadcast id", T("en", KeyInvalidID, "broadcast"))

	// unknown language falls back to English, unknown key to the key
	assert.Equal(t, "Broadcast not found", T("fr", KeyBroadcastNotFound))
	assert.Equal(t, "no.such.key", T("en", "no.such.key"))
}

func TestLocalesCarrySameKeys(t *testing.T) {
	load := func(name string) map[string]string {
		data, err := localeFS.ReadFile("locales/" + name)
		require.NoError(t, err)
		var out map[string]string
		require.NoError(t, json.Unmarshal(data, &out))
		return out
	}

	en, ar := load("en.json"), load("ar.json")
	for key := range en {
		assert.Contains(t, ar, key)
	}
	assert.Len(t, ar, len(en))
}
