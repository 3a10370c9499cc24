package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolExclude(t *testing.T) {
	p := Pool{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	out := p.Exclude("b")
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)

	// Unknown ID leaves the pool unchanged.
	out = p.Exclude("z")
	assert.Len(t, out, 3)
}

func TestPoolNamed(t *testing.T) {
	p := Pool{
		{ID: "a", Name: "Alandi"},
		{ID: "b", Name: ""},
		{ID: "c", Name: "Charholi"},
	}

	out := p.Named()
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestSelectorMatches(t *testing.T) {
	r := Region{
		ID:   "v1",
		Name: "Alandi",
		Attrs: map[string]string{
			KeyState:    "Maharashtra",
			KeyDistrict: "Pune",
			KeyVillage:  "Alandi",
		},
	}

	assert.True(t, Selector{KeyDistrict: "Pune"}.Matches(&r))
	assert.True(t, Selector{KeyState: "Maharashtra", KeyDistrict: "Pune"}.Matches(&r))
	assert.False(t, Selector{KeyDistrict: "Nashik"}.Matches(&r))
	assert.False(t, Selector{KeySubdistrict: "Haveli"}.Matches(&r))

	// Empty selector matches everything.
	assert.True(t, Selector{}.Matches(&r))
}

func TestAttrMissing(t *testing.T) {
	r := Region{ID: "v1"}
	assert.Equal(t, "", r.Attr(KeyState))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Uttar Pradesh", Normalize("  uttar   pradesh "))
	assert.Equal(t, "Pune", Normalize("PUNE"))
	assert.Equal(t, "", Normalize("   "))
}

func TestUniqueName(t *testing.T) {
	got := UniqueName("Maharashtra", "Pune", "Haveli ", "Alandi")
	assert.Equal(t, "maharashtra pune haveli alandi", got)
}
