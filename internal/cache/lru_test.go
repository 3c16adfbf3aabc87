package cache

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidSize(t *testing.T) {
	_, err := New[string, int]("bad", 0)
	assert.Error(t, err)
}

func TestEvictionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("inserting N+1 keys evicts exactly the oldest", prop.ForAll(
		func(n int) bool {
			c, err := New[int, int]("prop", n)
			if err != nil {
				return false
			}
			for i := 0; i <= n; i++ {
				c.Add(i, i)
			}
			if c.Len() != n || c.Contains(0) {
				return false
			}
			for i := 1; i <= n; i++ {
				if !c.Contains(i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 64),
	))

	properties.Property("accessing a key protects it from the next eviction", prop.ForAll(
		func(n int, touched int) bool {
			touched %= n
			c, err := New[int, int]("prop", n)
			if err != nil {
				return false
			}
			for i := 0; i < n; i++ {
				c.Add(i, i)
			}
			if _, ok := c.Get(touched); !ok {
				return false
			}
			c.Add(n, n)

			victim := 0
			if touched == 0 {
				victim = 1
			}
			if n == 1 {
				// The only key was touched and then evicted by the insert.
				return !c.Contains(0) && c.Contains(1)
			}
			return c.Contains(touched) && !c.Contains(victim) && c.Len() == n
		},
		gen.IntRange(1, 64),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func TestPeekDoesNotPromote(t *testing.T) {
	c, err := New[string, int]("peek", 2)
	require.NoError(t, err)

	c.Add("a", 1)
	c.Add("b", 2)
	v, ok := c.Peek("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.Add("c", 3)
	assert.False(t, c.Contains("a"))
	assert.Equal(t, []string{"b", "c"}, c.Keys())
}

func TestRemoveWhereAndClear(t *testing.T) {
	c, err := New[string, int]("prefix", 10)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		c.Add(fmt.Sprintf("photos|%d", i), i)
		c.Add(fmt.Sprintf("scans|%d", i), i)
	}

	removed := c.RemoveWhere(func(k string) bool { return strings.HasPrefix(k, "photos|") })
	assert.Equal(t, 3, removed)
	assert.Equal(t, 3, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("scans|0")
	assert.False(t, ok)
}
