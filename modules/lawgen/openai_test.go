package lawgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDraft(t *testing.T) {
	t.Parallel()

	t.Run("plain json object", func(t *testing.T) {
		t.Parallel()
		draft, err := parseDraft(`{
			"title": "The Mandatory Siesta Act",
			"summary": "Establishes a national nap.",
			"content": "Article 1. All citizens shall nap.",
			"tags": ["rest", "productivity"]
		}`)
		require.NoError(t, err)
		assert.Equal(t, "The Mandatory Siesta Act", draft.Title)
		assert.Equal(t, []string{"rest", "productivity"}, draft.Tags)
	})

	t.Run("json wrapped in a markdown fence", func(t *testing.T) {
		t.Parallel()
		draft, err := parseDraft("```json\n{\"title\":\"T\",\"summary\":\"S\",\"content\":\"C\",\"tags\":[]}\n```")
		require.NoError(t, err)
		assert.Equal(t, "T", draft.Title)
	})

	t.Run("not json", func(t *testing.T) {
		t.Parallel()
		_, err := parseDraft("Here is your law: be kind to each other.")
		assert.ErrorIs(t, err, ErrInvalidDraft)
	})

	t.Run("missing required fields", func(t *testing.T) {
		t.Parallel()
		_, err := parseDraft(`{"summary": "no title or content"}`)
		assert.ErrorIs(t, err, ErrInvalidDraft)
	})
}

func TestParseConstitutionDraft(t *testing.T) {
	t.Parallel()

	t.Run("decodes a complete framework", func(t *testing.T) {
		t.Parallel()
		draft, err := parseConstitutionDraft(`{
			"preamble": "We the people.",
			"rights": "Article 1.",
			"structure": "Article 2.",
			"amendments": "Article 3."
		}`)
		require.NoError(t, err)
		assert.Equal(t, "We the people.", draft.Preamble)
		assert.Equal(t, "Article 2.", draft.Structure)
	})

	t.Run("rejects a framework without preamble or structure", func(t *testing.T) {
		t.Parallel()
		_, err := parseConstitutionDraft(`{"rights": "Article 1."}`)
		assert.ErrorIs(t, err, ErrInvalidDraft)
	})
}
