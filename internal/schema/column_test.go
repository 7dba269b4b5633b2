package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType_AllNamesRoundTrip(t *testing.T) {
	for _, typ := range Types() {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	got, err := ParseType("  BOOL ")
	require.NoError(t, err)
	assert.Equal(t, TypeBool, got)

	_, err = ParseType("decimal")
	assert.Error(t, err)
}

func TestColumn_JSON(t *testing.T) {
	in := `[{"name":"id","type":"int"},{"name":"meta","type":"object","columns":[{"name":"tag","type":"string"}]}]`

	var cols []Column
	require.NoError(t, json.Unmarshal([]byte(in), &cols))
	require.Len(t, cols, 2)
	assert.Equal(t, TypeInt, cols[0].Type)
	assert.Equal(t, TypeObject, cols[1].Type)
	assert.Equal(t, []Column{{Name: "tag", Type: TypeString}}, cols[1].Columns)

	out, err := json.Marshal(cols)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestColumn_UnknownTypeRejected(t *testing.T) {
	var c Column
	err := json.Unmarshal([]byte(`{"name":"x","type":"money"}`), &c)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cols    []Column
		wantErr bool
	}{
		{name: "ok", cols: []Column{{Name: "a"}, {Name: "b", Type: TypeBool}}},
		{name: "empty name", cols: []Column{{Name: " "}}, wantErr: true},
		{name: "duplicate", cols: []Column{{Name: "a"}, {Name: "a"}}, wantErr: true},
		{name: "bad type", cols: []Column{{Name: "a", Type: Type(42)}}, wantErr: true},
		{name: "nested on non-object", cols: []Column{{Name: "a", Columns: []Column{{Name: "b"}}}}, wantErr: true},
		{name: "nested duplicate", cols: []Column{{Name: "a", Type: TypeObject, Columns: []Column{{Name: "b"}, {Name: "b"}}}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cols)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	orig := []Column{{Name: "o", Type: TypeObject, Columns: []Column{{Name: "n"}}}}
	cp := Clone(orig)
	cp[0].Columns[0].Name = "changed"
	assert.Equal(t, "n", orig[0].Columns[0].Name)
	assert.Equal(t, []string{"o"}, Names(cp))
}
