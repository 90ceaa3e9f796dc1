package sige

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/autopecas/sigesync/internal/domain"
)

// pageListKeys are the wrapper keys a catalog page may carry its rows under
var pageListKeys = []string{"data", "dados", "items", "itens", "content", "conteudo", "resultado", "produtos"}

// Field names SIGE has used for each product attribute, tried in order
var (
	idFields          = []string{"id", "idProduto", "productId", "codigoInterno"}
	codeFields        = []string{"codigo", "code", "codigoProduto", "referencia", "reference"}
	descriptionFields = []string{"descricao", "description", "nome", "name"}
	typeFields        = []string{"tipo", "tipoProduto", "type", "typeCode"}
)

// ParseCatalogPage maps one /produtos page into RemoteProducts in page order. rowCount is
// the number of rows the page carried, including rows dropped for having no id or code.
func ParseCatalogPage(body []byte) (products []domain.RemoteProduct, rowCount int, err error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrCatalogParse, err)
	}

	rows, err := locateRows(doc)
	if err != nil {
		return nil, 0, err
	}

	products = make([]domain.RemoteProduct, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			return nil, 0, fmt.Errorf("%w: catalog row is %T, not an object", domain.ErrCatalogParse, row)
		}
		if p, ok := MapRemoteProduct(obj); ok {
			products = append(products, p)
		}
	}
	return products, len(rows), nil
}

// locateRows finds the row list of a decoded page: a top-level array or the first
// array under a known wrapper key
func locateRows(doc any) ([]any, error) {
	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range pageListKeys {
			if _, val, ok := lookupFold(v, key); ok {
				if arr, ok := val.([]any); ok {
					return arr, nil
				}
			}
		}
		return nil, fmt.Errorf("%w: no product list in page", domain.ErrCatalogParse)
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: page is %T", domain.ErrCatalogParse, doc)
}

// MapRemoteProduct converts one catalog row. Rows without an id and a code are dropped.
func MapRemoteProduct(row map[string]any) (domain.RemoteProduct, bool) {
	used := map[string]bool{}
	pick := func(names []string) string {
		for _, name := range names {
			key, val, ok := lookupFold(row, name)
			if !ok {
				continue
			}
			if s := stringify(val); s != "" {
				used[key] = true
				return s
			}
		}
		return ""
	}

	p := domain.RemoteProduct{
		RemoteID:    pick(idFields),
		Code:        pick(codeFields),
		Description: pick(descriptionFields),
		TypeCode:    pick(typeFields),
	}
	if p.RemoteID == "" && p.Code == "" {
		return domain.RemoteProduct{}, false
	}

	for k, v := range row {
		if used[k] {
			continue
		}
		if p.RawFields == nil {
			p.RawFields = make(map[string]any)
		}
		p.RawFields[k] = v
	}
	return p, true
}

func lookupFold(obj map[string]any, name string) (string, any, bool) {
	if v, ok := obj[name]; ok {
		return name, v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, name) {
			return k, v, true
		}
	}
	return "", nil, false
}

// stringify renders scalar JSON values; identifiers arrive both as numbers and strings
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	return ""
}
