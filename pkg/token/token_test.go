package token_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexforge/lexforge/pkg/token"
)

type payload struct {
	Email     string `json:"e"`
	ExpiresAt int64  `json:"x"`
}

func TestGenerateParse(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		tok, err := token.Generate(payload{Email: "ada@example.com", ExpiresAt: 42}, "secret")
		require.NoError(t, err)
		assert.Contains(t, tok, ".")

		got, err := token.Parse[payload](tok, "secret")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", got.Email)
		assert.Equal(t, int64(42), got.ExpiresAt)
	})

	t.Run("wrong secret", func(t *testing.T) {
		t.Parallel()
		tok, err := token.Generate(payload{Email: "ada@example.com"}, "secret")
		require.NoError(t, err)

		_, err = token.Parse[payload](tok, "other")
		assert.ErrorIs(t, err, token.ErrSignatureInvalid)
	})

	t.Run("tampered payload", func(t *testing.T) {
		t.Parallel()
		tok, err := token.Generate(payload{Email: "ada@example.com"}, "secret")
		require.NoError(t, err)

		head, tail, _ := strings.Cut(tok, ".")
		forged := head[:len(head)-2] + "xx." + tail

		_, err = token.Parse[payload](forged, "secret")
		assert.Error(t, err)
	})

	t.Run("missing separator", func(t *testing.T) {
		t.Parallel()
		_, err := token.Parse[payload]("nodotsatall", "secret")
		assert.ErrorIs(t, err, token.ErrInvalidToken)
	})

	t.Run("garbage base64", func(t *testing.T) {
		t.Parallel()
		_, err := token.Parse[payload]("!!!.???", "secret")
		assert.ErrorIs(t, err, token.ErrInvalidToken)
	})
}
