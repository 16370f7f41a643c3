package polymarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/updownbot/internal/domain"
)

func TestToDomainMarket_UpDownOutcomes(t *testing.T) {
	m := APIMarket{
		ConditionID:  "0xcond",
		Slug:         "sol-updown-15m-1700000000",
		Active:       true,
		EndDateISO:   "2026-08-26T15:15:00Z",
		Outcomes:     `["Up","Down"]`,
		ClobTokenIDs: `["111","222"]`,
	}

	dm, err := m.ToDomainMarket("SOL-15m")
	require.NoError(t, err)

	assert.Equal(t, "0xcond", dm.ConditionID)
	assert.Equal(t, "SOL-15m", dm.Label)
	assert.Equal(t, "111", dm.Up.ID)
	assert.Equal(t, domain.SideUp, dm.Up.Side)
	assert.Equal(t, "222", dm.Down.ID)
	assert.Equal(t, domain.SideDown, dm.Down.Side)
	assert.True(t, dm.Active)
	assert.True(t, dm.Ready())
	assert.Equal(t, 2026, dm.EndDate.Year())
}

func TestToDomainMarket_YesNoOutcomes(t *testing.T) {
	m := APIMarket{
		ConditionID:  "0xcond",
		Active:       true,
		Outcomes:     `["Yes","No"]`,
		ClobTokenIDs: `["111","222"]`,
	}

	dm, err := m.ToDomainMarket("SOL-15m")
	require.NoError(t, err)
	assert.Equal(t, "111", dm.Up.ID)
	assert.Equal(t, "222", dm.Down.ID)
}

func TestToDomainMarket_MismatchedArrays(t *testing.T) {
	m := APIMarket{
		ConditionID:  "0xcond",
		Outcomes:     `["Up","Down"]`,
		ClobTokenIDs: `["111"]`,
	}

	_, err := m.ToDomainMarket("SOL-15m")
	assert.Error(t, err)
}

func TestToDomainMarket_UnknownOutcomes(t *testing.T) {
	m := APIMarket{
		ConditionID:  "0xcond",
		Outcomes:     `["Red","Blue"]`,
		ClobTokenIDs: `["111","222"]`,
	}

	_, err := m.ToDomainMarket("SOL-15m")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFlexBool(t *testing.T) {
	var f flexBool
	require.NoError(t, f.UnmarshalJSON([]byte(`true`)))
	assert.True(t, bool(f))

	require.NoError(t, f.UnmarshalJSON([]byte(`"false"`)))
	assert.False(t, bool(f))

	require.NoError(t, f.UnmarshalJSON([]byte(`"True"`)))
	assert.True(t, bool(f))
}
