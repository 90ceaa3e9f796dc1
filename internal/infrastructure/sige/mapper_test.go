package sige

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCatalogPage_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"top-level array", `[{"id":1,"codigo":"A"}]`, 1},
		{"dados wrapper", `{"dados":[{"id":1,"codigo":"A"},{"id":2,"codigo":"B"}]}`, 2},
		{"produtos wrapper", `{"total": 2, "produtos":[{"id":1,"codigo":"A"}]}`, 1},
		{"empty wrapper", `{"content":[]}`, 0},
		{"null body", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, rowCount, err := ParseCatalogPage([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, products, tt.want)
			assert.Equal(t, tt.want, rowCount)
		})
	}
}

func TestParseCatalogPage_KeepsOrder(t *testing.T) {
	products, _, err := ParseCatalogPage([]byte(`[{"id":3,"codigo":"C"},{"id":1,"codigo":"A"},{"id":2,"codigo":"B"}]`))
	require.NoError(t, err)

	ids := []string{}
	for _, p := range products {
		ids = append(ids, p.RemoteID)
	}
	assert.Equal(t, []string{"3", "1", "2"}, ids)
}

func TestParseCatalogPage_CountsDroppedRows(t *testing.T) {
	products, rowCount, err := ParseCatalogPage([]byte(`[{"descricao":"sem id"},{"id":1,"codigo":"A"},{"id":2,"codigo":"B"}]`))
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, 3, rowCount)
}

func TestMapRemoteProduct(t *testing.T) {
	var row map[string]any
	dec := json.NewDecoder(strings.NewReader(`{"IdProduto": 12345678901, "Codigo": " 00123 ", "descricao": "Pastilha", "marca": "Bosch", "ativo": true}`))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&row))

	p, ok := MapRemoteProduct(row)
	require.True(t, ok)

	assert.Equal(t, "12345678901", p.RemoteID, "large ids keep every digit")
	assert.Equal(t, "00123", p.Code)
	assert.Equal(t, "Pastilha", p.Description)
	assert.Empty(t, p.TypeCode)
	assert.Equal(t, "Bosch", p.RawFields["marca"])
	assert.Equal(t, true, p.RawFields["ativo"])
	assert.NotContains(t, p.RawFields, "descricao")
}

func TestMapRemoteProduct_DropsRowsWithoutIdentity(t *testing.T) {
	_, ok := MapRemoteProduct(map[string]any{"descricao": "sem codigo"})
	assert.False(t, ok)

	p, ok := MapRemoteProduct(map[string]any{"code": "ONLY-CODE"})
	assert.True(t, ok)
	assert.Equal(t, "ONLY-CODE", p.Code)
	assert.Empty(t, p.RemoteID)
}

func TestTokenSources(t *testing.T) {
	t.Run("static", func(t *testing.T) {
		token, err := StaticTokenSource("abc").Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "abc", token)

		_, err = StaticTokenSource(" ").Token(context.Background())
		assert.ErrorIs(t, err, domain.ErrAuthentication)
	})

	t.Run("request token wins over fallback", func(t *testing.T) {
		src := ContextTokenSource{Fallback: StaticTokenSource("static")}

		token, err := src.Token(WithToken(context.Background(), "forwarded"))
		require.NoError(t, err)
		assert.Equal(t, "forwarded", token)

		token, err = src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "static", token)
	})

	t.Run("no token anywhere", func(t *testing.T) {
		_, err := ContextTokenSource{}.Token(WithToken(context.Background(), ""))
		assert.ErrorIs(t, err, domain.ErrAuthentication)
	})
}
