package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/shopspring/decimal"
)

// listKeys are the wrapper keys SIGE has used for balance rows, tried in order
var listKeys = []string{"data", "dados", "items", "itens", "content", "conteudo", "resultado"}

// quantityFields are the known names of the on-hand quantity, tried in order.
// The first one present with a non-zero value wins.
var quantityFields = []string{
	"quantity", "quantidade",
	"balance", "saldo",
	"physicalBalance", "saldoFisico",
	"currentBalance", "saldoAtual",
	"stock", "estoque", "estoqueAtual", "qtdEstoque",
	"qtd", "qty",
}

// reservedFields are the known names of the reserved quantity, tried in order
var reservedFields = []string{
	"reserved", "reservedQuantity",
	"reservado", "qtdReservado", "qtdReservada", "quantidadeReservada", "saldoReservado",
}

// nonQuantityFieldPattern matches field names that never hold an on-hand quantity:
// identifiers, paging, grid/division/unit codes, reserved figures and prices.
var nonQuantityFieldPattern = regexp.MustCompile(
	`(?i)(^id|id$|^cod|code|pagina|page|grade|grid|divis|unidade|^unit|unit$|empresa|company|deposito|warehouse|filial|branch|reserv|preco|price|valor|value|custo|cost|peso|weight|count|total(pag|elem|item|reg)|size|tamanho|ncm|cest|ean|gtin)`,
)

// BalanceResolver turns a schema-unstable SIGE balance payload into a BalanceReading.
// It never returns an error: unusable payloads come back as Found=false readings.
type BalanceResolver struct{}

// NewBalanceResolver creates a balance resolver
func NewBalanceResolver() *BalanceResolver {
	return &BalanceResolver{}
}

// ResolveBalance resolves a payload without tracing
func ResolveBalance(raw json.RawMessage) domain.BalanceReading {
	return NewBalanceResolver().Resolve(raw, nil)
}

// itemFigures is what one balance row contributed
type itemFigures struct {
	quantity     decimal.Decimal
	reserved     decimal.Decimal
	knownPresent bool
	autoDetected bool
}

// Resolve locates the balance rows and sums their quantity and reserved figures
func (r *BalanceResolver) Resolve(raw json.RawMessage, trace Tracer) domain.BalanceReading {
	if trace == nil {
		trace = func(string, ...any) {}
	}
	reading := domain.FailedReading(nil)
	if len(raw) > 0 {
		reading.Raw = append(json.RawMessage(nil), raw...)
	}

	doc, err := decodeOrdered(raw)
	if err != nil {
		reading.Error = fmt.Sprintf("unparseable balance payload: %v", err)
		trace("payload is not valid JSON: %v", err)
		return reading
	}

	items, source, ok := locateItems(doc)
	if !ok {
		reading.Error = "unrecognized balance payload shape"
		trace("payload is neither an object nor an array")
		return reading
	}
	trace("located %d balance row(s) via %s", len(items), source)

	var (
		quantity     = decimal.Zero
		reserved     = decimal.Zero
		knownPresent bool
		autoDetected bool
	)
	for i, item := range items {
		f := extractItem(item, i, trace)
		quantity = quantity.Add(f.quantity)
		reserved = reserved.Add(f.reserved)
		knownPresent = knownPresent || f.knownPresent
		autoDetected = autoDetected || f.autoDetected
	}

	if !knownPresent && !autoDetected {
		keys := collectKeys(items)
		if obj, isObj := doc.(*jsonObject); isObj && len(items) == 0 {
			// an empty wrapper: report the envelope's own keys
			keys = collectKeys([]*jsonObject{obj})
		}
		reading.Diagnostic = &domain.Diagnostic{
			Message: "no known quantity field found; payload looks empty",
			Keys:    keys,
		}
		trace("no quantity field recognised; payload keys: %s", strings.Join(keys, ", "))
		return reading
	}

	reading.Found = true
	reading.Quantity = quantity
	reading.Reserved = reserved
	reading.Available = quantity.Sub(reserved)
	trace("quantity=%s reserved=%s available=%s", reading.Quantity, reading.Reserved, reading.Available)
	return reading
}

// locateItems finds the list of balance rows in a decoded payload. An object carrying a
// wrapper key yields that wrapper's rows, possibly none; only an object without any wrapper
// key is read as a single record.
func locateItems(doc any) ([]*jsonObject, string, bool) {
	switch v := doc.(type) {
	case []any:
		return objectsOf(v), "top-level array", true
	case *jsonObject:
		if items, key, present := findListRows(v); present {
			return items, fmt.Sprintf("key %q", key), true
		}
		for _, name := range quantityFields {
			if _, _, ok := v.lookupFold(name); ok {
				return []*jsonObject{v}, "single record with known quantity key", true
			}
		}
		return []*jsonObject{v}, "single record (no list found)", true
	}
	return nil, "", false
}

// findListRows returns the rows under the first wrapper key holding a non-empty array.
// A wrapper holding another wrapper object is searched one level down, and a wrapper holding a
// plain object is that single record. present reports whether any wrapper key was seen; when
// every wrapper is empty or null the rows are empty and present is still true.
func findListRows(obj *jsonObject) (items []*jsonObject, key string, present bool) {
	var firstKey string
	for _, k := range listKeys {
		_, val, ok := obj.lookupFold(k)
		if !ok {
			continue
		}
		if !present {
			present, firstKey = true, k
		}
		switch inner := val.(type) {
		case []any:
			if len(inner) > 0 {
				return objectsOf(inner), k, true
			}
		case *jsonObject:
			nestedList := false
			for _, nested := range listKeys {
				if _, nv, ok := inner.lookupFold(nested); ok {
					nestedList = true
					if arr, ok := nv.([]any); ok && len(arr) > 0 {
						return objectsOf(arr), k + "." + nested, true
					}
				}
			}
			if !nestedList {
				return []*jsonObject{inner}, k, true
			}
		}
	}
	return nil, firstKey, present
}

func objectsOf(arr []any) []*jsonObject {
	out := make([]*jsonObject, 0, len(arr))
	for _, el := range arr {
		if obj, ok := el.(*jsonObject); ok {
			out = append(out, obj)
		}
	}
	return out
}

// extractItem reads the quantity and reserved figures of one row
func extractItem(item *jsonObject, n int, trace Tracer) itemFigures {
	f := itemFigures{quantity: decimal.Zero, reserved: decimal.Zero}

	if field, qty, present := firstKnown(item, quantityFields); present {
		f.knownPresent = true
		if !qty.IsZero() {
			f.quantity = qty
			trace("row %d: quantity %s from known field %q", n, qty, field)
		}
	}
	if f.quantity.IsZero() {
		if field, qty, ok := autoDetect(item); ok {
			f.quantity = qty
			f.autoDetected = true
			trace("row %d: quantity %s auto-detected from field %q", n, qty, field)
		} else if f.knownPresent {
			trace("row %d: known quantity field present with zero value", n)
		} else {
			trace("row %d: no quantity field", n)
		}
	}

	if field, res, present := firstKnown(item, reservedFields); present && !res.IsZero() {
		f.reserved = res
		trace("row %d: reserved %s from field %q", n, res, field)
	}
	return f
}

// firstKnown returns the first listed field whose value is a non-zero number.
// present reports whether any listed field held a number at all.
func firstKnown(item *jsonObject, names []string) (string, decimal.Decimal, bool) {
	present := false
	for _, name := range names {
		key, val, ok := item.lookupFold(name)
		if !ok {
			continue
		}
		d, ok := toDecimal(val)
		if !ok {
			continue
		}
		present = true
		if !d.IsZero() {
			return key, d, true
		}
	}
	return "", decimal.Zero, present
}

// autoDetect returns the first field, in payload order, that is not a known non-quantity
// field and holds a positive number
func autoDetect(item *jsonObject) (string, decimal.Decimal, bool) {
	for _, key := range item.keys {
		if nonQuantityFieldPattern.MatchString(key) {
			continue
		}
		d, ok := toDecimal(item.values[key])
		if ok && d.IsPositive() {
			return key, d, true
		}
	}
	return "", decimal.Zero, false
}

// toDecimal accepts JSON numbers and numeric strings, including "1.234,5" style decimals
func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		return d, err == nil
	case string:
		return parseLocalizedNumber(t)
	}
	return decimal.Zero, false
}

func parseLocalizedNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// collectKeys lists the distinct field names across rows in first-seen order
func collectKeys(items []*jsonObject) []string {
	seen := make(map[string]bool)
	keys := []string{}
	for _, item := range items {
		for _, k := range item.keys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}
