package building

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-map/internal/model"
)

func TestCache_Reload(t *testing.T) {
	calls := 0
	fetch := FetchFunc(func(context.Context) ([]model.Building, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("sf: session expired")
		}
		return []model.Building{{ID: "a0B1", Name: "Meir Tower"}}, nil
	})

	var loaded []*Set
	c := NewCache(NewSource(fetch, WithFallback(false)), func(s *Set) { loaded = append(loaded, s) })
	assert.Nil(t, c.Current())

	first, err := c.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, c.Current())
	assert.Equal(t, OriginCRM, first.Origin)

	_, err = c.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, first, c.Current(), "failed reload keeps the previous set")
	assert.Len(t, loaded, 1)

	third, err := c.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, third, c.Current())
	assert.Len(t, loaded, 2)
}

func TestCache_SampleWithoutFetcher(t *testing.T) {
	c := NewCache(NewSource(nil), nil)

	set, err := c.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OriginSample, set.Origin)
	assert.Len(t, set.Buildings, 6)
}
