package directory

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thavlik/tsmeta/tsfile"
)

func sampleRecord(t *testing.T) *tsfile.Record {
	rec, err := tsfile.ParseString(
		"Stoichiometry: A2B2\nAuthor: MultiFOLD2\nMethod: Method text\nScore: 0.9110\nModel: 1",
		"H0232_TS",
	)
	require.NoError(t, err)
	return rec
}

func TestRegisterLookup(t *testing.T) {
	d := New()
	rec := sampleRecord(t)
	d.Register("H0232_TS", rec)

	got, err := d.Lookup("H0232_TS")
	require.NoError(t, err)
	assert.Same(t, rec, got)

	one := 1
	assert.Equal(t, &tsfile.Record{
		SourceName:    "H0232_TS",
		Stoichiometry: "A2B2",
		Author:        "MultiFOLD2",
		Method:        "Method text",
		Scores:        []string{"0.9110"},
		ModelNumber:   &one,
	}, got)
}

func TestLookupMissing(t *testing.T) {
	d := New()
	_, err := d.Lookup("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestKeysAreLiteral(t *testing.T) {
	d := New()
	d.Register("H0232_TS", sampleRecord(t))
	_, err := d.Lookup("h0232_ts")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegisterOverwrites(t *testing.T) {
	d := New()
	first := sampleRecord(t)
	second, err := tsfile.ParseString("Author: Other", "H0232_TS")
	require.NoError(t, err)

	d.Register("H0232_TS", first)
	d.Register("H0232_TS", second)

	got, err := d.Lookup("H0232_TS")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Empty(t, got.Stoichiometry)
	assert.Equal(t, 1, d.Len())
}

func TestRegisterAlias(t *testing.T) {
	d := New()
	rec := sampleRecord(t)
	d.Register("A", rec)
	require.NoError(t, d.RegisterAlias("A", "B"))

	a, err := d.Lookup("A")
	require.NoError(t, err)
	b, err := d.Lookup("B")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"A", "B"}, d.Keys())
}

func TestRegisterAliasMissing(t *testing.T) {
	d := New()
	err := d.RegisterAlias("A", "B")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyNotFound))
	_, err = d.Lookup("B")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReregisterDoesNotFollowAlias(t *testing.T) {
	d := New()
	old := sampleRecord(t)
	d.Register("H0232_TS", old)
	require.NoError(t, d.RegisterAlias("H0232_TS", "Model_H0232"))

	fresh, err := tsfile.ParseString("Author: Reparsed", "H0232_TS")
	require.NoError(t, err)
	d.Register("H0232_TS", fresh)

	alias, err := d.Lookup("Model_H0232")
	require.NoError(t, err)
	assert.Same(t, old, alias)
}

func TestResolveImplicit(t *testing.T) {
	d := New()
	rec := sampleRecord(t)
	d.Register("X", rec)

	key, got, err := d.ResolveImplicit([]string{"X"})
	require.NoError(t, err)
	assert.Equal(t, "X", key)
	assert.Same(t, rec, got)
}

func TestResolveImplicitDerivedKey(t *testing.T) {
	d := New()
	rec := sampleRecord(t)
	d.Register("H0232_TS", rec)

	key, got, err := d.ResolveImplicit([]string{"H0232"})
	require.NoError(t, err)
	assert.Equal(t, "H0232_TS", key)
	assert.Same(t, rec, got)

	d.Register("model", rec)
	key, _, err = d.ResolveImplicit([]string{"model.pdb"})
	require.NoError(t, err)
	assert.Equal(t, "model", key)
}

func TestResolveImplicitFailures(t *testing.T) {
	d := New()
	d.Register("X", sampleRecord(t))

	_, _, err := d.ResolveImplicit(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousOrMissing))
	var re *ResolveError
	require.True(t, errors.As(err, &re))
	assert.True(t, re.NoCandidates())

	_, _, err = d.ResolveImplicit([]string{"X", "Y"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousOrMissing))
	require.True(t, errors.As(err, &re))
	assert.True(t, re.MultipleCandidates())
	assert.Equal(t, []string{"X"}, re.Cached)

	_, _, err = d.ResolveImplicit([]string{"Z"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousOrMissing))
	require.True(t, errors.As(err, &re))
	assert.False(t, re.NoCandidates())
	assert.False(t, re.MultipleCandidates())
}

func TestResolveImplicitDuplicateNames(t *testing.T) {
	d := New()
	d.Register("X", sampleRecord(t))
	key, _, err := d.ResolveImplicit([]string{"X", "X"})
	require.NoError(t, err)
	assert.Equal(t, "X", key)
}

func TestConcurrentRegister(t *testing.T) {
	d := New()
	rec := sampleRecord(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			d.Register(key, rec)
			assert.NoError(t, d.RegisterAlias(key, key+"-alias"))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 32, d.Len())
}
