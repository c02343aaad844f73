package redact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash"`
}

func TestMap_RemovesCanonicalFields(t *testing.T) {
	in := map[string]any{
		"id":               7,
		"name":             "New",
		"password":         "plain",
		"password_hash":    "$2a$...",
		"confirm_password": "plain",
		"token":            "a.b.c",
		"refresh_token":    "d.e.f",
	}
	out := Map(in)
	require.NotNil(t, out)
	assert.Equal(t, map[string]any{"id": float64(7), "name": "New"}, out)
}

func TestMap_CaseAndSeparatorVariants(t *testing.T) {
	out := Map(map[string]any{
		"refreshToken":     "x",
		"AccessToken":      "x",
		"PasswordHash":     "x",
		"confirm-password": "x",
		"tokenizer":        "kept",
	})
	assert.Equal(t, map[string]any{"tokenizer": "kept"}, out)
}

func TestMap_Nested(t *testing.T) {
	out := Map(map[string]any{
		"user":      account{ID: 1, Name: "admin", PasswordHash: "h"},
		"items":     []any{map[string]any{"password": "p", "k": 1}},
		"expiredAt": 123,
	})
	require.NotNil(t, out)
	user := out["user"].(map[string]any)
	assert.NotContains(t, user, "password_hash")
	assert.Equal(t, "admin", user["name"])
	item := out["items"].([]any)[0].(map[string]any)
	assert.NotContains(t, item, "password")
	assert.Contains(t, item, "k")
}

func TestMap_Struct(t *testing.T) {
	out := Map(&account{ID: 3, Name: "n", PasswordHash: "h"})
	assert.Equal(t, map[string]any{"id": float64(3), "name": "n"}, out)
}

func TestMap_RawJSON(t *testing.T) {
	out := Map(json.RawMessage(`{"name":"x","password":"y"}`))
	assert.Equal(t, map[string]any{"name": "x"}, out)
}

func TestMap_OpaqueValuesAreDropped(t *testing.T) {
	for _, v := range []any{nil, "password=secret", 42, []any{1, 2}, []byte("not json"), make(chan int)} {
		assert.Nil(t, Map(v), "%T should be dropped", v)
	}
}

func TestMap_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"password": "p", "name": "n"}
	_ = Map(in)
	assert.Contains(t, in, "password")
}

func TestIsSensitive(t *testing.T) {
	for _, f := range []string{"password", "password_hash", "confirm_password", "token", "refresh_token", "access_token"} {
		assert.True(t, IsSensitive(f), f)
	}
	assert.False(t, IsSensitive("username"))
}
