package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/nartool/internal/nar"
)

func TestSelectEntries(t *testing.T) {
	t.Parallel()

	entries := []*nar.Entry{
		{Path: "maps/de_dust.bsp"},
		{Path: "maps/cs_office.bsp"},
		{Path: "maps/de_dust.txt"},
		{Path: "sound/radio/go.wav"},
	}
	paths := func(es []*nar.Entry) []string {
		var out []string
		for _, e := range es {
			out = append(out, e.Path)
		}
		return out
	}

	all, err := selectEntries(entries, nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	got, err := selectEntries(entries, []string{"maps/*.bsp"})
	require.NoError(t, err)
	assert.Equal(t, []string{"maps/de_dust.bsp", "maps/cs_office.bsp"}, paths(got))

	got, err = selectEntries(entries, []string{"/maps/de_*", "sound/*/*.wav"})
	require.NoError(t, err)
	assert.Equal(t, []string{"maps/de_dust.bsp", "maps/de_dust.txt", "sound/radio/go.wav"}, paths(got))

	got, err = selectEntries(entries, []string{"models/*"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = selectEntries(entries, []string{"maps/[.bsp"})
	assert.Error(t, err)
}
