package id

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []string{PrefixTool, PrefixAssociation, PrefixAccount, PrefixSession} {
		t.Run(prefix, func(t *testing.T) {
			v, err := Generate(prefix)
			require.NoError(t, err)

			require.True(t, strings.HasPrefix(v, prefix+"-"))
			nid := strings.TrimPrefix(v, prefix+"-")
			assert.Len(t, nid, 21)
			for _, c := range nid {
				assert.True(t,
					(c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-',
					"character %c should be URL-safe", c)
			}
		})
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		v := MustGenerate(PrefixTool)
		assert.False(t, seen[v], "duplicate id %s", v)
		seen[v] = true
	}
}

func TestStamp_Monotonic(t *testing.T) {
	prev := Stamp()
	for range 500 {
		next := Stamp()
		require.Equal(t, 1, next.Compare(prev), "stamps must strictly increase")
		prev = next
	}
}

func TestStampAt_OrdersByTime(t *testing.T) {
	base := time.Now()
	early := StampAt(base.Add(-time.Hour))
	late := StampAt(base)

	assert.Equal(t, -1, early.Compare(late))
	assert.Equal(t, uint64(base.UnixMilli()), late.Time())
}
