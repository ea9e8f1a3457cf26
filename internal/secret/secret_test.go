package secret

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef_SchemeAndID(t *testing.T) {
	ref, err := ParseRef("secrets://api-key")
	require.NoError(t, err)
	assert.Equal(t, "secrets", ref.Scheme)
	assert.Equal(t, "api-key", ref.ID)
	assert.Nil(t, ref.Query)
}

func TestParseRef_WithQuery(t *testing.T) {
	ref, err := ParseRef("vault://db/password?version=3&rotate=true")
	require.NoError(t, err)
	assert.Equal(t, "vault", ref.Scheme)
	assert.Equal(t, "db/password", ref.ID)
	assert.Equal(t, "3", ref.Query["version"])
	assert.Equal(t, "true", ref.Query["rotate"])
}

func TestParseRef_RejectsEmptyID(t *testing.T) {
	_, err := ParseRef("secrets://")
	assert.Error(t, err)
}

func TestParseRef_RejectsMissingScheme(t *testing.T) {
	_, err := ParseRef("not-a-ref")
	assert.Error(t, err)
}

func TestIsLikelyRef(t *testing.T) {
	assert.True(t, IsLikelyRef("secrets://api-key"))
	assert.True(t, IsLikelyRef("file-secrets://creds/token"))
	assert.False(t, IsLikelyRef("https://example.com/api"))
	assert.False(t, IsLikelyRef("http://example.com"))
	assert.False(t, IsLikelyRef("plain-string-value"))
}

func TestValue_NeverPrintsBytes(t *testing.T) {
	v := NewValue([]byte("super-secret"))
	assert.Equal(t, "<redacted>", v.String())
	assert.Equal(t, "<redacted>", v.GoString())
	assert.Equal(t, []byte("super-secret"), v.Bytes())
}

func TestValue_ZeroOverwritesBytes(t *testing.T) {
	v := NewValue([]byte("super-secret"))
	v.Zero()
	for _, b := range v.Bytes() {
		assert.Equal(t, byte(0), b)
	}
}

func TestCompositeProvider_FallsThroughOnNotFound(t *testing.T) {
	calls := 0
	first := ProviderFunc(func(_ context.Context, _ Ref) (Value, error) {
		calls++
		return Value{}, ErrNotFound
	})
	second := ProviderFunc(func(_ context.Context, ref Ref) (Value, error) {
		calls++
		return NewValue([]byte("found:" + ref.ID)), nil
	})
	composite := NewCompositeProvider(first, second)

	ref, err := ParseRef("secrets://token")
	require.NoError(t, err)
	v, err := composite.Get(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "found:token", string(v.Bytes()))
	assert.Equal(t, 2, calls)
}

func TestCompositeProvider_StopsOnNonNotFoundError(t *testing.T) {
	boom := assert.AnError
	first := ProviderFunc(func(_ context.Context, _ Ref) (Value, error) {
		return Value{}, boom
	})
	second := ProviderFunc(func(_ context.Context, _ Ref) (Value, error) {
		t.Fatal("second provider should not be called")
		return Value{}, nil
	})
	composite := NewCompositeProvider(first, second)

	ref, err := ParseRef("secrets://token")
	require.NoError(t, err)
	_, err = composite.Get(context.Background(), ref)
	assert.ErrorIs(t, err, boom)
}
