package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text    string
		wantNS  Namespace
		want    string
		wantErr bool
	}{
		{text: "db.orders", wantNS: Namespace{"db"}, want: "orders"},
		{text: "a.b.c.orders", wantNS: Namespace{"a", "b", "c"}, want: "orders"},
		{text: "orders", wantErr: true},
		{text: "", wantErr: true},
		{text: "db.", wantErr: true},
		{text: ".orders", wantErr: true},
		{text: "a..orders", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			id, err := Parse(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedIdentifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNS, id.Namespace)
			assert.Equal(t, tt.want, id.Name)
		})
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	for _, text := range []string{"db.orders", "a.b.orders", "x.y.z.w"} {
		id, err := Parse(text)
		require.NoError(t, err)
		assert.Equal(t, text, id.String())

		again, err := Parse(id.String())
		require.NoError(t, err)
		assert.True(t, id.Equal(again))
		assert.Equal(t, id.Key(), again.Key())
	}
}

func TestFromServiceEntry(t *testing.T) {
	id, err := FromServiceEntry([]string{"db", "sales"}, "orders")
	require.NoError(t, err)
	assert.Equal(t, "db.sales.orders", id.String())

	_, err = FromServiceEntry(nil, "orders")
	assert.ErrorIs(t, err, ErrMalformedIdentifier)

	_, err = FromServiceEntry([]string{"db"}, "")
	assert.ErrorIs(t, err, ErrMalformedIdentifier)

	_, err = FromServiceEntry([]string{""}, "orders")
	assert.ErrorIs(t, err, ErrMalformedIdentifier)
}

func TestNamespaceKey(t *testing.T) {
	dotted := Namespace{"a.b"}
	split := Namespace{"a", "b"}

	// The dotted forms collide; keys do not.
	assert.Equal(t, dotted.String(), split.String())
	assert.NotEqual(t, dotted.Key(), split.Key())

	back, err := NamespaceFromKey(dotted.Key())
	require.NoError(t, err)
	assert.Equal(t, dotted, back)

	_, err = NamespaceFromKey("")
	assert.ErrorIs(t, err, ErrMalformedIdentifier)
}

func TestNamespaceHierarchy(t *testing.T) {
	root := Namespace{"db"}
	child := Namespace{"db", "sales"}
	grandchild := Namespace{"db", "sales", "eu"}

	assert.True(t, root.IsChildOf(nil))
	assert.False(t, child.IsChildOf(nil))
	assert.True(t, child.IsChildOf(root))
	assert.False(t, grandchild.IsChildOf(root))
	assert.False(t, Namespace{"other", "sales"}.IsChildOf(root))

	assert.Nil(t, root.Parent())
	assert.Equal(t, root, child.Parent())

	// Parent does not alias the receiver.
	p := grandchild.Parent()
	p[0] = "changed"
	assert.Equal(t, "db", grandchild[0])
}

func TestSegments(t *testing.T) {
	id := TableIdentifier{Namespace: Namespace{"db", "sales"}, Name: "orders"}
	segs := id.Segments()
	assert.Equal(t, []string{"db", "sales", "orders"}, segs)

	segs[0] = "changed"
	assert.Equal(t, "db", id.Namespace[0])
}
